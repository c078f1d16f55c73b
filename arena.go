package wabbitlearn

// Arena is the single contiguous weight vector owned by the
// Regressor, laid out as a linear region of size 2^LrBits followed by
// an FFM region of size 2^FfmBits*K*NumFields (§3 "Weight Arena").
// Accum is the parallel optimizer-state vector, equal length,
// index-aligned with Weights. Arena is created at model init or on
// load, mutated only by the regressor's backward pass, and has a
// single writer at a time (§5).
type Arena struct {
	Weights []float32
	Accum   []float32
}

// NewArena allocates a zeroed arena sized for inst.
func NewArena(inst *Instance) *Arena {
	n := inst.ArenaSize()
	return &Arena{
		Weights: make([]float32, n),
		Accum:   make([]float32, n),
	}
}

// Len returns the arena's total length.
func (a *Arena) Len() int { return len(a.Weights) }

// LinearRegion returns the bounded sub-view covering the linear
// weights, indices [0, linearSize).
func (a *Arena) LinearRegion(linearSize int) []float32 { return a.Weights[:linearSize] }

// FFMRegion returns the bounded sub-view covering the FFM weights,
// indices [linearSize, len(a.Weights)).
func (a *Arena) FFMRegion(linearSize int) []float32 { return a.Weights[linearSize:] }

// Equal reports whether two arenas hold identical weights and
// accumulators, used by tests asserting invariant 3 ("no-update
// forward pass leaves the arena untouched").
func (a *Arena) Equal(o *Arena) bool {
	if len(a.Weights) != len(o.Weights) || len(a.Accum) != len(o.Accum) {
		return false
	}
	for i := range a.Weights {
		if a.Weights[i] != o.Weights[i] {
			return false
		}
	}
	for i := range a.Accum {
		if a.Accum[i] != o.Accum[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy, used by tests to snapshot the arena
// before a no-update Learn call.
func (a *Arena) Clone() *Arena {
	c := &Arena{
		Weights: make([]float32, len(a.Weights)),
		Accum:   make([]float32, len(a.Accum)),
	}
	copy(c.Weights, a.Weights)
	copy(c.Accum, a.Accum)
	return c
}
