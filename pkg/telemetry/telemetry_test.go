package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/flyingrobots/echo/pkg/ids"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	tracer := nooptrace.NewTracerProvider().Tracer("echo-test")
	meter := noopmetric.NewMeterProvider().Meter("echo-test")
	r, err := New(tracer, meter, logr.Discard())
	require.NoError(t, err)
	return r
}

func TestTickPhaseDoesNotPanic(t *testing.T) {
	r := newTestRecorder(t)
	r.TickPhase(ids.Zero, 1, "execute", 5*time.Millisecond)
}

func TestTickCommittedDoesNotPanic(t *testing.T) {
	r := newTestRecorder(t)
	r.TickCommitted(ids.Zero, 1, ids.Zero)
}

func TestTickAbortedDoesNotPanic(t *testing.T) {
	r := newTestRecorder(t)
	r.TickAborted(ids.Zero, 1, errors.New("boom"))
}
