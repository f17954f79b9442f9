// Package telemetry implements engine.Telemetry on top of OpenTelemetry
// tracing/metrics and a structured logr.Logger, mirroring how other
// graph-execution engines in this ecosystem report per-step observations
// as spans rather than bespoke log lines.
//
// Every method here is strictly observational: nothing it does
// participates in any canonical hash. The engine skips a nil
// engine.Telemetry; a nil *Recorder is not skipped, and its methods
// dereference the receiver.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/flyingrobots/echo/pkg/ids"
	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Recorder implements engine.Telemetry by turning each tick phase into an
// immediately-ended span (the phase already ran to completion by the time
// the engine reports it; there is nothing left to bracket) and each
// commit/abort into a counter increment plus a log line.
type Recorder struct {
	tracer trace.Tracer
	log    logr.Logger

	tickCommitted metric.Int64Counter
	tickAborted   metric.Int64Counter
	phaseDuration metric.Float64Histogram
}

// New builds a Recorder from a tracer and meter, typically obtained via
// otel.Tracer("echo") and otel.Meter("echo") after the caller has wired
// its own TracerProvider/MeterProvider (Jaeger, Prometheus, or a noop
// provider in tests). log receives one line per committed or aborted
// tick; logr.Discard() is a valid choice when no logger is configured.
func New(tracer trace.Tracer, meter metric.Meter, log logr.Logger) (*Recorder, error) {
	committed, err := meter.Int64Counter("echo.tick.committed",
		metric.WithDescription("ticks committed, per warp"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating committed counter: %w", err)
	}
	aborted, err := meter.Int64Counter("echo.tick.aborted",
		metric.WithDescription("ticks aborted, per warp"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating aborted counter: %w", err)
	}
	phase, err := meter.Float64Histogram("echo.tick.phase_duration_ms",
		metric.WithDescription("duration of one tick phase in milliseconds"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating phase histogram: %w", err)
	}

	return &Recorder{
		tracer:        tracer,
		log:           log,
		tickCommitted: committed,
		tickAborted:   aborted,
		phaseDuration: phase,
	}, nil
}

// TickPhase records one completed phase (schedule, reserve, execute,
// merge, commit) of a tick as an ended span plus a histogram sample.
func (r *Recorder) TickPhase(warpID ids.WarpId, tick uint64, phase string, d time.Duration) {
	ctx := context.Background()
	_, span := r.tracer.Start(ctx, "echo.tick."+phase)
	span.SetAttributes(
		attribute.String("echo.warp_id", warpID.String()),
		attribute.Int64("echo.tick", int64(tick)),
		attribute.String("echo.phase", phase),
	)
	span.End()

	r.phaseDuration.Record(ctx, float64(d.Milliseconds()),
		metric.WithAttributes(
			attribute.String("echo.warp_id", warpID.String()),
			attribute.String("echo.phase", phase),
		))
}

// TickCommitted records a successful commit.
func (r *Recorder) TickCommitted(warpID ids.WarpId, tick uint64, commitHash ids.Hash) {
	ctx := context.Background()
	r.tickCommitted.Add(ctx, 1, metric.WithAttributes(attribute.String("echo.warp_id", warpID.String())))

	_, span := r.tracer.Start(ctx, "echo.tick.committed")
	span.SetAttributes(
		attribute.String("echo.warp_id", warpID.String()),
		attribute.Int64("echo.tick", int64(tick)),
		attribute.String("echo.commit_hash", commitHash.String()),
	)
	span.SetStatus(codes.Ok, "")
	span.End()

	r.log.Info("tick committed", "warp_id", warpID.String(), "tick", tick, "commit_hash", commitHash.String())
}

// TickAborted records a fatal abort of the named tick. Every abort in
// Echo is, by spec, a halt-worthy condition — there is no retry path —
// so this is always logged at error level.
func (r *Recorder) TickAborted(warpID ids.WarpId, tick uint64, err error) {
	ctx := context.Background()
	r.tickAborted.Add(ctx, 1, metric.WithAttributes(attribute.String("echo.warp_id", warpID.String())))

	_, span := r.tracer.Start(ctx, "echo.tick.aborted")
	span.SetAttributes(
		attribute.String("echo.warp_id", warpID.String()),
		attribute.Int64("echo.tick", int64(tick)),
	)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()

	r.log.Error(err, "tick aborted", "warp_id", warpID.String(), "tick", tick)
}
