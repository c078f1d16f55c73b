package wabbitlearn

import "github.com/cespare/xxhash/v2"

// LinearEntry is one linear-block input: an absolute index into the
// Arena's linear region and its value.
type LinearEntry struct {
	Index int
	Value float32
}

// FFMEntry is one FFM-block input: the field it belongs to and the
// absolute Arena index of the first weight in its k-slice.
type FFMEntry struct {
	Field int
	Base  int
	Value float32
}

// FeatureBuffer is the per-example input to the block graph (§3
// "Feature Buffer"): linear slots, FFM slots grouped by field, label,
// and importance weight. Every index satisfies
// 0 <= idx < arena.Len() and every value is finite (invariant 2).
type FeatureBuffer struct {
	Label      float32
	Importance float32
	Linear     []LinearEntry
	FFM        []FFMEntry
}

// Translator converts a Frame into a FeatureBuffer against a fixed
// Instance layout (§4.5). A Translator owns a single reusable
// FeatureBuffer; Translate is allocation-free after its first few
// calls reach steady-state slice capacity.
type Translator struct {
	inst *Instance
	out  *FeatureBuffer
}

// NewTranslator creates a Translator bound to inst.
func NewTranslator(inst *Instance) *Translator {
	return &Translator{inst: inst, out: &FeatureBuffer{}}
}

// Translate fills the Translator's reusable FeatureBuffer from frame.
// The returned buffer is only valid until the next Translate call.
func (tr *Translator) Translate(frame *Frame) *FeatureBuffer {
	inst := tr.inst
	b := tr.out
	b.Label = frame.Label
	b.Importance = frame.Importance
	b.Linear = b.Linear[:0]
	b.FFM = b.FFM[:0]

	lrMask := uint32(inst.LinearSize() - 1)
	ffmMask := uint32((1 << inst.FfmBits) - 1)
	k := inst.K
	numFields := inst.NumFields()
	ffmRegionStart := inst.LinearSize()

	for _, seg := range frame.Segments {
		if len(seg.Feats) == 0 {
			continue
		}
		nsID := inst.FieldNamespaceID(seg.FieldID)
		weight := float32(1)
		if nsID >= 0 {
			weight = inst.NamespaceWeight(nsID)
		}
		for _, feat := range seg.Feats {
			idx := int(feat.Key & lrMask)
			b.Linear = append(b.Linear, LinearEntry{Index: idx, Value: feat.Value * weight})

			h := ffmHash(seg.FieldID, feat.Key)
			base := ffmRegionStart + int(h&ffmMask)*k*numFields
			b.FFM = append(b.FFM, FFMEntry{Field: seg.FieldID, Base: base, Value: feat.Value})
		}
	}
	return b
}

// Clone returns a deep copy of fb, used by the training driver to hold
// onto a feature buffer across the `prediction_model_delay` examples
// separating its forward pass from its delayed weight update (§9
// "Delay d").
func (fb *FeatureBuffer) Clone() *FeatureBuffer {
	c := &FeatureBuffer{Label: fb.Label, Importance: fb.Importance}
	c.Linear = append([]LinearEntry(nil), fb.Linear...)
	c.FFM = append([]FFMEntry(nil), fb.FFM...)
	return c
}

const ffmHashSeed uint64 = 0xFFA3_1234_5678_9ABC

// ffmHash hashes (field, key) independently of the linear-region hash
// so linear and FFM collisions are decorrelated, then callers mask it
// to the FFM hash width.
func ffmHash(field int, key uint32) uint32 {
	var buf [8]byte
	buf[0] = byte(field)
	buf[1] = byte(field >> 8)
	buf[2] = byte(field >> 16)
	buf[3] = byte(field >> 24)
	buf[4] = byte(key)
	buf[5] = byte(key >> 8)
	buf[6] = byte(key >> 16)
	buf[7] = byte(key >> 24)
	d := xxhash.NewWithSeed(ffmHashSeed)
	d.Write(buf[:])
	return uint32(d.Sum64())
}
