package wabbitlearn

import "fmt"

// LossKind selects the loss block's link function and gradient.
type LossKind int

const (
	LossLogistic LossKind = iota
	LossSquared
)

func (k LossKind) String() string {
	if k == LossSquared {
		return "squared"
	}
	return "logistic"
}

// OptimizerKind selects the per-weight update rule computed by the
// Optimizer (C6). SGD and AdaGrad are the power=0 and power=0.5
// special cases of the generalized power-t rule; Power lets callers
// pick an arbitrary exponent.
type OptimizerKind int

const (
	OptimizerSGD OptimizerKind = iota
	OptimizerAdaGrad
	OptimizerPower
)

// Instance is the immutable (after construction) configuration shared
// by the translator, regressor, and persistence layers: hash widths,
// FFM dimension, optimizer hyperparameters, transform declarations,
// and the namespace map this instance is bound to.
type Instance struct {
	Namespaces *NamespaceMap
	Transforms []*Transform

	LrBits  uint // linear hash width: linear region is 2^LrBits
	FfmBits uint // FFM hash width: FFM region is 2^FfmBits * K * NumFields

	K int // FFM embedding dimension

	Optimizer OptimizerKind
	LR        float32 // learning rate eta
	Power     float32 // power-t exponent (ignored for SGD/AdaGrad)
	Epsilon   float32
	Loss      LossKind
	Clip      float32 // clip dL/dy to [-Clip, +Clip]

	// NamespaceWeights optionally scales a namespace's linear
	// contribution (Open Question #3: applied after hashing, i.e. it
	// scales the emitted value rather than the hash input). Namespaces
	// absent from the map use a multiplier of 1.
	NamespaceWeights map[int]float32

	// numFields is len(Namespaces.Ids()) + len(Transforms); computed
	// once at construction and reused by every component that lays out
	// the FFM region or a Frame.
	numFields int
	fieldNS   []int // fieldNS[fieldIdx] = declared namespace id, or -1 for a transform field
}

// DefaultInstance returns an Instance configured with spec.md's
// stated defaults: AdaGrad, logistic loss, clip=20.
func DefaultInstance(nm *NamespaceMap, transforms []*Transform, lrBits, ffmBits uint, k int) *Instance {
	return &Instance{
		Namespaces: nm,
		Transforms: transforms,
		LrBits:     lrBits,
		FfmBits:    ffmBits,
		K:          k,
		Optimizer:  OptimizerAdaGrad,
		LR:         0.1,
		Power:      0.5,
		Epsilon:    1e-8,
		Loss:       LossLogistic,
		Clip:       20,
		numFields:  nm.Len() + len(transforms),
	}
}

// NumFields returns the number of FFM fields: declared namespaces
// plus transform outputs, in the fixed order used throughout (declared
// namespaces first in id order, then transforms in declaration order).
func (inst *Instance) NumFields() int {
	if inst.numFields == 0 {
		inst.numFields = inst.Namespaces.Len() + len(inst.Transforms)
	}
	return inst.numFields
}

// FieldOf returns the dense field index for a namespace id (declared
// or transform-produced). Declared namespaces occupy
// [0, Namespaces.Len()); transforms occupy
// [Namespaces.Len(), NumFields()) in declaration order.
func (inst *Instance) FieldOf(namespaceID int) (int, bool) {
	if fi, ok := inst.Namespaces.FieldIndex(namespaceID); ok {
		return fi, true
	}
	for i, t := range inst.Transforms {
		if t.OutputNamespaceID == namespaceID {
			return inst.Namespaces.Len() + i, true
		}
	}
	return 0, false
}

// LinearSize returns the size of the linear weight region: 2^LrBits.
func (inst *Instance) LinearSize() int { return 1 << inst.LrBits }

// FFMSize returns the size of the FFM weight region:
// 2^FfmBits * K * NumFields.
func (inst *Instance) FFMSize() int {
	return (1 << inst.FfmBits) * inst.K * inst.NumFields()
}

// ArenaSize returns LinearSize()+FFMSize(), the total weight arena length.
func (inst *Instance) ArenaSize() int { return inst.LinearSize() + inst.FFMSize() }

// FieldNamespaceID returns the declared namespace id backing
// fieldIdx, or -1 if fieldIdx is a transform-derived field.
func (inst *Instance) FieldNamespaceID(fieldIdx int) int {
	if inst.fieldNS == nil {
		ids := inst.Namespaces.Ids()
		inst.fieldNS = make([]int, inst.NumFields())
		for i := range inst.fieldNS {
			inst.fieldNS[i] = -1
		}
		copy(inst.fieldNS, ids)
	}
	if fieldIdx < 0 || fieldIdx >= len(inst.fieldNS) {
		return -1
	}
	return inst.fieldNS[fieldIdx]
}

// NamespaceWeight returns the configured multiplier for namespaceID,
// defaulting to 1 when unset.
func (inst *Instance) NamespaceWeight(namespaceID int) float32 {
	if inst.NamespaceWeights == nil {
		return 1
	}
	if w, ok := inst.NamespaceWeights[namespaceID]; ok {
		return w
	}
	return 1
}

func (inst *Instance) String() string {
	return fmt.Sprintf("Instance{lr_bits=%d ffm_bits=%d k=%d fields=%d loss=%s opt=%v}",
		inst.LrBits, inst.FfmBits, inst.K, inst.NumFields(), inst.Loss, inst.Optimizer)
}
