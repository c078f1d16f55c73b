package wabbitlearn

import (
	"encoding/binary"
	"io"
	"math"
)

// Feature is one (hashed-key, weight) pair within a namespace
// sub-segment. The parser never exposes the original string; only
// the 32-bit hash and its value survive into a Frame.
type Feature struct {
	Key   uint32
	Value float32
}

// Segment is one namespace's (possibly empty) contribution to a
// Frame, identified by its dense field index (not its declared
// namespace id; see NamespaceMap.FieldIndex and Instance.FieldOf).
type Segment struct {
	FieldID int // dense field index: declared namespaces first, then transforms
	Feats   []Feature
}

// Frame is the parsed, binary-stable representation of one training
// or serving example: a label, an importance weight, and one
// sub-segment per field (declared namespace or transform output),
// always present even when empty (spec invariant 1).
//
// A Frame is reused across Parse/Replay calls: Reset truncates
// Segments' backing arrays rather than reallocating them, so
// steady-state operation is allocation-free.
type Frame struct {
	Label      float32
	Importance float32
	Segments   []Segment
}

// NewFrame allocates a Frame with numFields empty segments, field ids
// 0..numFields-1 in order.
func NewFrame(numFields int) *Frame {
	f := &Frame{Segments: make([]Segment, numFields)}
	for i := range f.Segments {
		f.Segments[i].FieldID = i
	}
	return f
}

// Reset clears a Frame for reuse without shrinking its backing
// arrays.
func (f *Frame) Reset() {
	f.Label = 0
	f.Importance = 1
	for i := range f.Segments {
		f.Segments[i].Feats = f.Segments[i].Feats[:0]
	}
}

// Append adds one feature to the sub-segment for fieldID, growing the
// segment's backing array only if its capacity is exhausted.
func (f *Frame) Append(fieldID int, key uint32, value float32) {
	s := &f.Segments[fieldID]
	s.Feats = append(s.Feats, Feature{Key: key, Value: value})
}

// encodedLen returns an upper bound on the byte length that Encode
// will write, counting every varint at its maximum width.
func (f *Frame) encodedLen() int {
	n := 4 + 4 + binary.MaxVarintLen64 // label, importance, segment count
	for _, s := range f.Segments {
		n += binary.MaxVarintLen64 // field id
		n += binary.MaxVarintLen64 // feature count
		n += len(s.Feats) * 8      // key(4) + value(4)
	}
	return n
}

// Encode serializes f into buf (reusing its capacity when possible)
// and returns the encoded slice. This is the frame format used by the
// Record Cache (§3 "Record Cache File").
func (f *Frame) Encode(buf []byte) []byte {
	need := f.encodedLen()
	if cap(buf) < need {
		buf = make([]byte, need)
	}
	buf = buf[:need]
	off := 0
	binary.BigEndian.PutUint32(buf[off:], math.Float32bits(f.Label))
	off += 4
	binary.BigEndian.PutUint32(buf[off:], math.Float32bits(f.Importance))
	off += 4
	off += binary.PutUvarint(buf[off:], uint64(len(f.Segments)))
	for _, s := range f.Segments {
		off += binary.PutUvarint(buf[off:], uint64(s.FieldID))
		off += binary.PutUvarint(buf[off:], uint64(len(s.Feats)))
		for _, feat := range s.Feats {
			binary.BigEndian.PutUint32(buf[off:], feat.Key)
			off += 4
			binary.BigEndian.PutUint32(buf[off:], math.Float32bits(feat.Value))
			off += 4
		}
	}
	return buf[:off]
}

// Decode populates f from a byte slice previously produced by Encode.
// f's existing Segments backing arrays are reused when large enough.
func (f *Frame) Decode(buf []byte) error {
	if len(buf) < 8 {
		return newErr(CacheIncompatible, "frame too short", nil)
	}
	off := 0
	f.Label = math.Float32frombits(binary.BigEndian.Uint32(buf[off:]))
	off += 4
	f.Importance = math.Float32frombits(binary.BigEndian.Uint32(buf[off:]))
	off += 4
	numSegs, n := binary.Uvarint(buf[off:])
	if n <= 0 {
		return newErr(CacheIncompatible, "bad segment count", nil)
	}
	off += n
	if cap(f.Segments) < int(numSegs) {
		f.Segments = make([]Segment, numSegs)
	} else {
		f.Segments = f.Segments[:numSegs]
	}
	for i := range f.Segments {
		fieldID, n := binary.Uvarint(buf[off:])
		if n <= 0 {
			return newErr(CacheIncompatible, "bad field id", nil)
		}
		off += n
		count, n := binary.Uvarint(buf[off:])
		if n <= 0 {
			return newErr(CacheIncompatible, "bad feature count", nil)
		}
		off += n
		seg := &f.Segments[i]
		seg.FieldID = int(fieldID)
		if cap(seg.Feats) < int(count) {
			seg.Feats = make([]Feature, count)
		} else {
			seg.Feats = seg.Feats[:count]
		}
		for j := range seg.Feats {
			if off+8 > len(buf) {
				return newErr(CacheIncompatible, "truncated feature data", nil)
			}
			seg.Feats[j].Key = binary.BigEndian.Uint32(buf[off:])
			off += 4
			seg.Feats[j].Value = math.Float32frombits(binary.BigEndian.Uint32(buf[off:]))
			off += 4
		}
	}
	return nil
}

// writeFrame writes a length-prefixed frame to w, the unit used by
// the Record Cache file (§6 "Cache file").
func writeFrame(w io.Writer, buf []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(buf)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(buf)
	return err
}

// readFrameLen reads the 4-byte length prefix, returning io.EOF
// unchanged so callers can detect end of stream.
func readFrameLen(r io.Reader) (int, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint32(lenBuf[:])), nil
}
