// Package intent implements spec §4.2: the write boundary of the engine.
// Intent bytes come in, are content-addressed, deduplicated by that
// address, and assigned a monotonically increasing sequence number before
// anything downstream ever sees them.
package intent

import (
	"errors"
	"sync"

	"github.com/flyingrobots/echo/pkg/hashing"
	"github.com/flyingrobots/echo/pkg/ids"
)

// AckStatus reports whether an ingested intent was newly recorded or had
// already been seen.
type AckStatus int

const (
	Fresh AckStatus = iota + 1
	Duplicate
)

func (s AckStatus) String() string {
	if s == Fresh {
		return "Fresh"
	}
	return "Duplicate"
}

// Ack is the result of ingest_intent, per spec §4.2.
type Ack struct {
	Seq      uint64
	IntentID ids.Hash
	Status   AckStatus
}

// ErrMalformedIntent is returned when the envelope fails to decode. A
// malformed intent is never assigned a seq and never logged.
var ErrMalformedIntent = errors.New("intent: malformed envelope")

// envelopeVersion is the one canonical envelope tag this core validates;
// everything past the version byte is opaque payload owned by the
// registered rule matchers, which live outside this core.
const envelopeVersion byte = 1

func validateEnvelope(b []byte) error {
	if len(b) < 1 || b[0] != envelopeVersion {
		return ErrMalformedIntent
	}
	return nil
}

// LoggedIntent is one entry of the append-only intent log.
type LoggedIntent struct {
	Seq      uint64
	IntentID ids.Hash
	Bytes    []byte
}

// Log is the IntentLog of spec §4.2: an append-only, seq-ordered record of
// every intent ever ingested, with at-most-once semantics keyed by
// content-addressed IntentID.
//
// The dedupe index below is a plain Go map, which spec §9's design notes
// explicitly carve out: it is never iterated to produce output (only
// membership-checked), so it cannot introduce non-determinism — the same
// allowance spec gives the rule-id → rule-record registry lookup.
type Log struct {
	mu          sync.Mutex
	nextSeq     uint64
	byIntentID  map[ids.Hash]uint64
	entries     []LoggedIntent
	pendingFrom int
}

// NewLog returns an empty intent log.
func NewLog() *Log {
	return &Log{byIntentID: make(map[ids.Hash]uint64)}
}

// IngestIntent computes intent_id, checks for a prior Fresh ingestion of
// the same bytes, and otherwise assigns the next seq and appends to the
// log. Returns ErrMalformedIntent without assigning a seq if the envelope
// fails to decode.
func (l *Log) IngestIntent(intentBytes []byte) (Ack, error) {
	if err := validateEnvelope(intentBytes); err != nil {
		return Ack{}, err
	}

	id := hashing.IntentID(intentBytes)

	l.mu.Lock()
	defer l.mu.Unlock()

	if seq, ok := l.byIntentID[id]; ok {
		return Ack{Seq: seq, IntentID: id, Status: Duplicate}, nil
	}

	seq := l.nextSeq
	l.nextSeq++
	cp := make([]byte, len(intentBytes))
	copy(cp, intentBytes)
	l.entries = append(l.entries, LoggedIntent{Seq: seq, IntentID: id, Bytes: cp})
	l.byIntentID[id] = seq

	return Ack{Seq: seq, IntentID: id, Status: Fresh}, nil
}

// IngestIntents ingests a batch in order, returning one Ack per input
// (spec §6.A's optional convenience call). A malformed entry still
// produces an error-carrying Ack slot: the caller distinguishes by
// checking the parallel errs slice.
func (l *Log) IngestIntents(batch [][]byte) ([]Ack, []error) {
	acks := make([]Ack, len(batch))
	errs := make([]error, len(batch))
	for i, b := range batch {
		ack, err := l.IngestIntent(b)
		acks[i] = ack
		errs[i] = err
	}
	return acks, errs
}

// DrainForTick returns up to max not-yet-drained intents in ascending seq
// order and advances the drain cursor past them. max <= 0 means unbounded
// — drain everything pending.
func (l *Log) DrainForTick(max int) []LoggedIntent {
	l.mu.Lock()
	defer l.mu.Unlock()

	pending := l.entries[l.pendingFrom:]
	n := len(pending)
	if max > 0 && max < n {
		n = max
	}

	out := make([]LoggedIntent, n)
	copy(out, pending[:n])
	l.pendingFrom += n
	return out
}

// Len returns the total number of intents ever logged (Fresh ingestions
// only).
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
