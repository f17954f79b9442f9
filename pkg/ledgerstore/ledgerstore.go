// Package ledgerstore provides a durable, append-only backing store for
// committed HistoryEntries (spec §4.12). It persists the encoded Patch of
// each tick's history.Entry under its (WarpId, tick) key in a BadgerDB
// instance, with zstd compression and optional password-derived at-rest
// encryption of the stored bytes. The entry's Snapshot and Receipt are not
// stored.
//
// This is an external collaborator, not part of the deterministic core:
// nothing here participates in any hash computation. An engine.Engine
// keeps its ledgers in memory; ledgerstore exists so a process can
// restart without losing committed history.
package ledgerstore

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/flyingrobots/echo/pkg/history"
	"github.com/flyingrobots/echo/pkg/ids"
)

// Key layout: a single byte-prefix per entity, then fixed-width fields,
// mirroring the prefixed-key convention the rest of this codebase's
// embedded-KV lineage uses.
const (
	prefixEntry  = byte(0x01) // entry:warp_id:tick_be -> encoded Patch
	prefixCursor = byte(0x02) // cursor:warp_id -> tick_count_be (last appended tick + 1)
)

func entryKey(warpID ids.WarpId, tick uint64) []byte {
	key := make([]byte, 0, 1+ids.Size+8)
	key = append(key, prefixEntry)
	key = append(key, warpID[:]...)
	var tb [8]byte
	binary.BigEndian.PutUint64(tb[:], tick)
	return append(key, tb[:]...)
}

func cursorKey(warpID ids.WarpId) []byte {
	key := make([]byte, 0, 1+ids.Size)
	key = append(key, prefixCursor)
	return append(key, warpID[:]...)
}

// ErrClosed is returned by any Store method called after Close.
var ErrClosed = errors.New("ledgerstore: store is closed")

// Options configures Open.
type Options struct {
	// Dir is the BadgerDB data directory. Required unless InMemory.
	Dir string
	// InMemory runs badger with no on-disk files, for tests.
	InMemory bool
	// Codec controls compression/encryption of stored entry bytes.
	// A zero-value Codec stores entries zstd-compressed and unencrypted.
	Codec Codec
}

// Store is a durable, append-only per-warp ledger backed by BadgerDB.
type Store struct {
	db    *badger.DB
	codec Codec
}

// Open opens (creating if necessary) the BadgerDB instance at opts.Dir.
func Open(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	badgerOpts = badgerOpts.WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("ledgerstore: open: %w", err)
	}
	return &Store{db: db, codec: opts.Codec}, nil
}

// Close releases the underlying BadgerDB handle.
func (s *Store) Close() error {
	if s.db == nil {
		return ErrClosed
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Append persists e as the next entry for warpID. Callers are expected to
// call this with strictly increasing e.Tick per warp — Append does not
// itself enforce contiguity, mirroring history.Ledger.
func (s *Store) Append(warpID ids.WarpId, e history.Entry) error {
	if s.db == nil {
		return ErrClosed
	}
	raw := e.Patch.Encode()
	encoded, err := s.codec.Encode(raw)
	if err != nil {
		return fmt.Errorf("ledgerstore: encode: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(entryKey(warpID, e.Tick), encoded); err != nil {
			return err
		}
		var tb [8]byte
		binary.BigEndian.PutUint64(tb[:], e.Tick+1)
		return txn.Set(cursorKey(warpID), tb[:])
	})
}

// Get retrieves the patch recorded for (warpID, tick). The returned
// history.Patch carries only what TickPatch v1 persists — a caller
// rebuilding a full history.Entry for replay must still supply the
// matching Snapshot from wherever it tracks commit hashes (typically the
// in-memory engine.Engine's own Ledger, which ledgerstore exists to back
// up, not replace).
func (s *Store) Get(warpID ids.WarpId, tick uint64) (history.Patch, error) {
	if s.db == nil {
		return history.Patch{}, ErrClosed
	}
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(warpID, tick))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			raw = append([]byte(nil), val...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return history.Patch{}, fmt.Errorf("ledgerstore: no entry for warp %s tick %d", warpID, tick)
	}
	if err != nil {
		return history.Patch{}, err
	}

	decoded, err := s.codec.Decode(raw)
	if err != nil {
		return history.Patch{}, fmt.Errorf("ledgerstore: decode: %w", err)
	}
	return history.Decode(decoded)
}

// Len returns the number of entries persisted for warpID (one past the
// highest appended tick), or 0 if none have been appended.
func (s *Store) Len(warpID ids.WarpId) (uint64, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	var n uint64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cursorKey(warpID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			n = binary.BigEndian.Uint64(val)
			return nil
		})
	})
	return n, err
}
