package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelope(payload string) []byte {
	return append([]byte{envelopeVersion}, []byte(payload)...)
}

func TestIngestIntentAssignsIncreasingSeq(t *testing.T) {
	l := NewLog()
	a1, err := l.IngestIntent(envelope("one"))
	require.NoError(t, err)
	a2, err := l.IngestIntent(envelope("two"))
	require.NoError(t, err)

	assert.Equal(t, Fresh, a1.Status)
	assert.Equal(t, Fresh, a2.Status)
	assert.Equal(t, uint64(0), a1.Seq)
	assert.Equal(t, uint64(1), a2.Seq)
}

func TestIngestIntentDedupesByContent(t *testing.T) {
	l := NewLog()
	first, err := l.IngestIntent(envelope("same"))
	require.NoError(t, err)
	second, err := l.IngestIntent(envelope("same"))
	require.NoError(t, err)

	assert.Equal(t, Fresh, first.Status)
	assert.Equal(t, Duplicate, second.Status)
	assert.Equal(t, first.Seq, second.Seq)
	assert.Equal(t, first.IntentID, second.IntentID)
	assert.Equal(t, 1, l.Len())
}

func TestIngestIntentRejectsMalformedEnvelope(t *testing.T) {
	l := NewLog()
	_, err := l.IngestIntent([]byte{})
	assert.ErrorIs(t, err, ErrMalformedIntent)

	_, err = l.IngestIntent([]byte{0xFF, 'x'})
	assert.ErrorIs(t, err, ErrMalformedIntent)

	assert.Equal(t, 0, l.Len(), "a malformed intent must never be assigned a seq")
}

func TestIngestIntentsBatchPreservesOrderAndErrors(t *testing.T) {
	l := NewLog()
	acks, errs := l.IngestIntents([][]byte{envelope("a"), {}, envelope("b")})

	require.NoError(t, errs[0])
	assert.Error(t, errs[1])
	require.NoError(t, errs[2])
	assert.Equal(t, uint64(0), acks[0].Seq)
	assert.Equal(t, uint64(1), acks[2].Seq)
}

func TestDrainForTickPaginatesAndAdvancesCursor(t *testing.T) {
	l := NewLog()
	for _, s := range []string{"a", "b", "c"} {
		_, err := l.IngestIntent(envelope(s))
		require.NoError(t, err)
	}

	first := l.DrainForTick(2)
	require.Len(t, first, 2)
	assert.Equal(t, uint64(0), first[0].Seq)
	assert.Equal(t, uint64(1), first[1].Seq)

	second := l.DrainForTick(2)
	require.Len(t, second, 1)
	assert.Equal(t, uint64(2), second[0].Seq)

	assert.Empty(t, l.DrainForTick(10))
}

func TestDrainForTickUnboundedWhenMaxNonPositive(t *testing.T) {
	l := NewLog()
	for _, s := range []string{"a", "b"} {
		_, err := l.IngestIntent(envelope(s))
		require.NoError(t, err)
	}

	drained := l.DrainForTick(0)
	assert.Len(t, drained, 2)
}
