package history

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/flyingrobots/echo/pkg/hashing"
	"github.com/flyingrobots/echo/pkg/ids"
	"github.com/flyingrobots/echo/pkg/ops"
)

// patchMagic is the 4-byte ASCII magic spec §6.D fixes for TickPatch v1.
var patchMagic = [4]byte{'P', 'T', 'C', 'H'}

const patchVersion uint16 = 1

// FootprintSummary is a compact, order-independent accounting of how many
// resources this tick's accepted rewrites declared, carried in the patch
// for audit purposes. It never affects replay or hashing beyond its own
// encoded bytes being part of the patch payload.
type FootprintSummary struct {
	NodesRead, NodesWritten           uint64
	EdgesRead, EdgesWritten           uint64
	AttachmentsRead, AttachmentsWritten uint64
}

func (s FootprintSummary) encode() []byte {
	var buf []byte
	buf = hashing.PutU64LE(buf, s.NodesRead)
	buf = hashing.PutU64LE(buf, s.NodesWritten)
	buf = hashing.PutU64LE(buf, s.EdgesRead)
	buf = hashing.PutU64LE(buf, s.EdgesWritten)
	buf = hashing.PutU64LE(buf, s.AttachmentsRead)
	buf = hashing.PutU64LE(buf, s.AttachmentsWritten)
	return buf
}

func decodeFootprintSummary(b []byte) (FootprintSummary, error) {
	if len(b) != 48 {
		return FootprintSummary{}, fmt.Errorf("history: footprint summary must be 48 bytes, got %d", len(b))
	}
	return FootprintSummary{
		NodesRead:          binary.LittleEndian.Uint64(b[0:8]),
		NodesWritten:       binary.LittleEndian.Uint64(b[8:16]),
		EdgesRead:          binary.LittleEndian.Uint64(b[16:24]),
		EdgesWritten:       binary.LittleEndian.Uint64(b[24:32]),
		AttachmentsRead:    binary.LittleEndian.Uint64(b[32:40]),
		AttachmentsWritten: binary.LittleEndian.Uint64(b[40:48]),
	}, nil
}

// Patch is spec §6.D's TickPatch v1: the canonical, replayable byte
// record of a committed tick.
type Patch struct {
	WarpID      ids.WarpId
	Tick        uint64
	Ops         []ops.WarpOp
	Footprint   FootprintSummary
	PatchDigest ids.Hash
	PolicyID    uint32
}

// ErrMalformedPatch is returned by Decode when the byte stream does not
// match the TickPatch v1 wire shape (bad magic, truncated, etc).
var ErrMalformedPatch = errors.New("history: malformed tick patch")

// Encode serializes p into the exact byte layout spec §6.D specifies.
func (p Patch) Encode() []byte {
	var buf []byte
	buf = append(buf, patchMagic[:]...)
	buf = appendU16LE(buf, patchVersion)
	buf = appendU16LE(buf, 0) // FLAGS, reserved
	buf = append(buf, p.WarpID[:]...)
	buf = hashing.PutU64LE(buf, p.Tick)
	buf = hashing.PutU64LE(buf, uint64(len(p.Ops)))
	for _, op := range p.Ops {
		buf = append(buf, op.CanonicalBytes()...)
	}
	buf = append(buf, p.Footprint.encode()...)
	buf = append(buf, p.PatchDigest[:]...)
	buf = hashing.PutU32LE(buf, p.PolicyID)
	return buf
}

func appendU16LE(dst []byte, v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return append(dst, b[:]...)
}

// Decode parses the TickPatch v1 wire format Encode produces. Op payloads
// are variable-length per tag, so decoding walks op_count ops using each
// tag's known field widths.
func Decode(b []byte) (Patch, error) {
	r := &reader{buf: b}

	var magic [4]byte
	if !r.read(magic[:]) || magic != patchMagic {
		return Patch{}, ErrMalformedPatch
	}
	version, ok := r.u16()
	if !ok || version != patchVersion {
		return Patch{}, ErrMalformedPatch
	}
	if _, ok := r.u16(); !ok { // FLAGS, ignored
		return Patch{}, ErrMalformedPatch
	}

	var warpID ids.WarpId
	if !r.read(warpID[:]) {
		return Patch{}, ErrMalformedPatch
	}
	tick, ok := r.u64()
	if !ok {
		return Patch{}, ErrMalformedPatch
	}
	opCount, ok := r.u64()
	if !ok {
		return Patch{}, ErrMalformedPatch
	}

	decodedOps := make([]ops.WarpOp, 0, opCount)
	for i := uint64(0); i < opCount; i++ {
		op, ok := decodeOp(r)
		if !ok {
			return Patch{}, ErrMalformedPatch
		}
		decodedOps = append(decodedOps, op)
	}

	summaryBytes := r.take(48)
	if summaryBytes == nil {
		return Patch{}, ErrMalformedPatch
	}
	summary, err := decodeFootprintSummary(summaryBytes)
	if err != nil {
		return Patch{}, ErrMalformedPatch
	}

	var digest ids.Hash
	if !r.read(digest[:]) {
		return Patch{}, ErrMalformedPatch
	}
	policyID, ok := r.u32()
	if !ok {
		return Patch{}, ErrMalformedPatch
	}

	return Patch{
		WarpID:      warpID,
		Tick:        tick,
		Ops:         decodedOps,
		Footprint:   summary,
		PatchDigest: digest,
		PolicyID:    policyID,
	}, nil
}

func decodeOp(r *reader) (ops.WarpOp, bool) {
	tagByte, ok := r.u8()
	if !ok {
		return ops.WarpOp{}, false
	}
	tag := ops.Tag(tagByte)
	var op ops.WarpOp
	op.Tag = tag

	switch tag {
	case ops.TagUpsertNode:
		if !r.read(op.NodeID[:]) || !r.read(op.NodeType[:]) {
			return op, false
		}
	case ops.TagDeleteNode:
		if !r.read(op.NodeID[:]) {
			return op, false
		}
	case ops.TagUpsertEdge:
		if !r.read(op.EdgeID[:]) || !r.read(op.EdgeType[:]) || !r.read(op.From[:]) || !r.read(op.To[:]) {
			return op, false
		}
	case ops.TagDeleteEdge:
		if !r.read(op.EdgeID[:]) {
			return op, false
		}
	case ops.TagSetAttachment:
		ownerTag, ok := r.u8()
		if !ok {
			return op, false
		}
		op.OwnerTag = ownerTag
		if !r.read(op.OwnerID[:]) {
			return op, false
		}
		keyLen, ok := r.u64()
		if !ok {
			return op, false
		}
		keyBytes := r.take(int(keyLen))
		if keyBytes == nil {
			return op, false
		}
		op.Key = string(keyBytes)
		if !r.read(op.ValueType[:]) {
			return op, false
		}
		valLen, ok := r.u64()
		if !ok {
			return op, false
		}
		val := r.take(int(valLen))
		if val == nil {
			return op, false
		}
		op.ValueBytes = append([]byte(nil), val...)
	case ops.TagRemoveAttachment:
		ownerTag, ok := r.u8()
		if !ok {
			return op, false
		}
		op.OwnerTag = ownerTag
		if !r.read(op.OwnerID[:]) {
			return op, false
		}
		keyLen, ok := r.u64()
		if !ok {
			return op, false
		}
		keyBytes := r.take(int(keyLen))
		if keyBytes == nil {
			return op, false
		}
		op.Key = string(keyBytes)
	default:
		return op, false
	}
	return op, true
}

// reader is a tiny cursor over a canonical byte buffer, used only by
// Decode — it has no bearing on any canonical encoding decision, purely a
// parsing convenience.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) read(dst []byte) bool {
	if r.pos+len(dst) > len(r.buf) {
		return false
	}
	copy(dst, r.buf[r.pos:r.pos+len(dst)])
	r.pos += len(dst)
	return true
}

func (r *reader) take(n int) []byte {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out
}

func (r *reader) u8() (byte, bool) {
	if r.pos+1 > len(r.buf) {
		return 0, false
	}
	v := r.buf[r.pos]
	r.pos++
	return v, true
}

func (r *reader) u16() (uint16, bool) {
	if r.pos+2 > len(r.buf) {
		return 0, false
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos : r.pos+2])
	r.pos += 2
	return v, true
}

func (r *reader) u32() (uint32, bool) {
	if r.pos+4 > len(r.buf) {
		return 0, false
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, true
}

func (r *reader) u64() (uint64, bool) {
	if r.pos+8 > len(r.buf) {
		return 0, false
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, true
}
