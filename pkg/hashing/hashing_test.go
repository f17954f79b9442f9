package hashing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSumIsDeterministic(t *testing.T) {
	assert.Equal(t, Sum(TagCommit, []byte("a"), []byte("b")), Sum(TagCommit, []byte("a"), []byte("b")))
}

func TestSumDistinguishesConcatenationBoundary(t *testing.T) {
	a := Sum(TagCommit, []byte("ab"), []byte("c"))
	b := Sum(TagCommit, []byte("a"), []byte("bc"))
	assert.NotEqual(t, a, b, "parts are written verbatim with no separator, so boundary placement matters")
}

func TestDomainSeparation(t *testing.T) {
	tags := []string{TagStateRoot, TagPatch, TagCommit, TagIntent, TagStateMulti}
	seen := map[string]bool{}
	for _, tag := range tags {
		assert.False(t, seen[tag], "tag %q duplicated", tag)
		seen[tag] = true
	}

	payload := []byte("same bytes under every tag")
	hashes := map[string]bool{}
	for _, tag := range tags {
		h := Sum(tag, payload)
		key := string(h[:])
		assert.False(t, hashes[key], "tag %q collided with another tag's hash of identical bytes", tag)
		hashes[key] = true
	}
}

func TestPutU64LEAppends(t *testing.T) {
	got := PutU64LE([]byte{0xFF}, 1)
	assert.Equal(t, []byte{0xFF, 1, 0, 0, 0, 0, 0, 0, 0}, got)
}

func TestPutU32LEAppends(t *testing.T) {
	got := PutU32LE(nil, 0x01020304)
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, got)
}

func TestPutBytesWithLenRoundTripsLength(t *testing.T) {
	got := PutBytesWithLen(nil, []byte("hi"))
	assert.Equal(t, []byte{2, 0, 0, 0, 0, 0, 0, 0, 'h', 'i'}, got)
}

func TestCanonicalFloat64BitsCollapsesNaN(t *testing.T) {
	a := CanonicalFloat64Bits(math.NaN())
	b := CanonicalFloat64Bits(math.Float64frombits(0x7FF0000000000001))
	assert.Equal(t, a, b)
}

func TestCanonicalFloat64BitsCollapsesSignedZero(t *testing.T) {
	assert.Equal(t, CanonicalFloat64Bits(0), CanonicalFloat64Bits(math.Copysign(0, -1)))
}

func TestCanonicalFloat64BitsPassesThroughNormalValues(t *testing.T) {
	assert.Equal(t, math.Float64bits(1.5), CanonicalFloat64Bits(1.5))
}

func TestCanonicalFloat64BitsFlushesSubnormalsToZeroRegardlessOfSign(t *testing.T) {
	positive := math.Float64frombits(0x0000000000000001)
	negative := math.Float64frombits(0x8000000000000001)

	assert.Equal(t, uint64(0), CanonicalFloat64Bits(positive))
	assert.Equal(t, uint64(0), CanonicalFloat64Bits(negative))
}
