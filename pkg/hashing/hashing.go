// Package hashing wraps BLAKE3 with the domain-separated tags and
// little-endian encoding helpers the Echo engine's canonical hash
// computations depend on.
//
// Every hash produced anywhere in this engine — state roots, patch
// digests, commit hashes, and intent ids — goes through this package so
// the domain-separation and byte-order rules in spec §4.7 are enforced in
// exactly one place.
package hashing

import (
	"encoding/binary"
	"math"

	"github.com/flyingrobots/echo/pkg/ids"
	"lukechampine.com/blake3"
)

// Domain-separation tags. Each is a fixed 4-byte ASCII constant. They MUST
// remain pairwise distinct — see TestDomainSeparation — so that a byte
// string meaningful under one hash context can never collide with a
// different context's hash of the same bytes.
const (
	TagStateRoot  = "WRP2"
	TagPatch      = "PCH1"
	TagCommit     = "CMT2"
	TagIntent     = "INT1"
	TagStateMulti = "WRPM"
)

// Sum computes BLAKE3-256 over the concatenation of tag and the byte
// slices in parts, returning a 32-byte ids.Hash. tag is written first,
// verbatim, with no length prefix — callers are responsible for choosing
// one of the Tag constants above so cross-context collisions remain
// structurally impossible.
func Sum(tag string, parts ...[]byte) ids.Hash {
	h := blake3.New(32, nil)
	h.Write([]byte(tag))
	for _, p := range parts {
		h.Write(p)
	}
	var out ids.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// IntentID computes the content address of a canonical intent envelope:
// BLAKE3 tagged with TagIntent over the raw bytes.
func IntentID(intentBytes []byte) ids.Hash {
	return Sum(TagIntent, intentBytes)
}

// PutU64LE appends the little-endian encoding of v to dst and returns the
// extended slice. Every multi-byte integer in a canonical encoding is
// little-endian per spec §3; this is the one helper that writes one.
func PutU64LE(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

// PutU32LE appends the little-endian encoding of v to dst.
func PutU32LE(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

// PutBytesWithLen appends a u64-le length prefix followed by b itself —
// the shape used for key_bytes and value_bytes throughout the canonical
// op and state-root encodings.
func PutBytesWithLen(dst []byte, b []byte) []byte {
	dst = PutU64LE(dst, uint64(len(b)))
	return append(dst, b...)
}

// CanonicalFloat64Bits canonicalizes an IEEE-754 double for inclusion in
// hashed bytes, per spec §3:
//   - any NaN bit pattern collapses to a single canonical NaN pattern
//   - subnormals flush to +0
//   - negative zero becomes +0
//
// The result is the little-endian bit pattern ready to append to a
// canonical byte stream. Values that do not need this canonicalization
// (already-normal, non-negative-zero floats) pass through unchanged.
func CanonicalFloat64Bits(f float64) uint64 {
	switch {
	case math.IsNaN(f):
		return canonicalNaNBits
	case f == 0:
		return 0 // +0 and -0 both canonicalize to +0
	}
	bits := math.Float64bits(f)
	if isSubnormal64(bits) {
		return 0 // subnormals flush to +0 regardless of sign
	}
	return bits
}

// canonicalNaNBits is the single bit pattern every NaN flushes to: the
// IEEE-754 "quiet NaN" with an all-zero payload.
const canonicalNaNBits uint64 = 0x7FF8000000000000

const signBit64 uint64 = 1 << 63

func isSubnormal64(bits uint64) bool {
	const expMask = uint64(0x7FF) << 52
	exp := bits & expMask
	mantissa := bits &^ (expMask | signBit64)
	return exp == 0 && mantissa != 0
}
