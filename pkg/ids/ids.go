// Package ids defines the fixed-width, byte-comparable identifiers used
// throughout the Echo engine.
//
// Every identifier in the WARP graph — NodeId, EdgeId, TypeId, WarpId, and
// Hash itself — is a 32-byte value. Identifiers are either content
// addressed (BLAKE3 of a labeled byte string, see pkg/hashing) or assigned
// deterministically by a rewrite rule. They participate in every canonical
// encoding as raw bytes, so their only required property beyond fixed width
// is lexicographic (byte-order) comparability.
package ids

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// Size is the fixed width, in bytes, of every identifier in this package.
const Size = 32

// ID is a 32-byte content- or rule-assigned identifier. The zero value is
// the all-zero ID, used as a sentinel root for BFS traversal when no root
// is supplied.
type ID [Size]byte

// NodeId, EdgeId, TypeId, WarpId, and Hash are all plain aliases of ID.
// The names document intent at call sites only: being aliases, they are
// the same type to the compiler, so a NodeId is accepted wherever an
// EdgeId is expected, and all share ID's comparison, sorting, and
// encoding behavior.
type (
	NodeId = ID
	EdgeId = ID
	TypeId = ID
	WarpId = ID
	Hash   = ID
)

// Zero is the all-zero identifier.
var Zero ID

// FromBytes copies the first Size bytes of b into a new ID. It panics if b
// is shorter than Size — callers at canonical-decode boundaries MUST
// validate length before calling this; ids package never produces a
// partially-populated ID.
func FromBytes(b []byte) ID {
	if len(b) < Size {
		panic(fmt.Sprintf("ids: FromBytes requires %d bytes, got %d", Size, len(b)))
	}
	var id ID
	copy(id[:], b[:Size])
	return id
}

// Bytes returns the identifier's underlying bytes as a slice. The returned
// slice aliases the array's storage only through a copy, so callers may
// mutate it freely without affecting id.
func (id ID) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, id[:])
	return out
}

// Compare returns -1, 0, or 1 as id is lexicographically less than, equal
// to, or greater than other. This is the canonical ordering used by every
// ascending iteration in the graph store, scheduler, and merge stage.
func (id ID) Compare(other ID) int {
	return bytes.Compare(id[:], other[:])
}

// Less reports whether id sorts strictly before other under Compare. It is
// the LessFunc shape required by github.com/google/btree's generic tree.
func Less(a, b ID) bool {
	return a.Compare(b) < 0
}

// IsZero reports whether id is the all-zero sentinel.
func (id ID) IsZero() bool {
	return id == Zero
}

// String renders the identifier as lowercase hex, for logs and errors only
// — never for canonical encoding or comparison.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}
