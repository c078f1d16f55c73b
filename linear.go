package wabbitlearn

import "math"

// linearForward computes y_lin = sum_i w[idx_i] * v_i over the
// buffer's linear entries (§4.7 "Linear block").
func linearForward(fb *FeatureBuffer, arena *Arena) float32 {
	var y float32
	for _, e := range fb.Linear {
		y += arena.Weights[e.Index] * e.Value
	}
	return y
}

// linearBackward applies one optimizer step per linear entry. Linear
// indices within one example are not guaranteed distinct (the same
// hash slot can recur for two different features), so gradients to
// the same index are applied cumulatively in encounter order rather
// than batched; each iteration reads the arena's current weight and
// accumulator, so a repeated index receives one step per occurrence
// and ends with the sum of those steps.
func linearBackward(fb *FeatureBuffer, arena *Arena, dLdy float32, opt Optimizer) error {
	for _, e := range fb.Linear {
		g := e.Value * dLdy
		delta := opt.Step(g, &arena.Accum[e.Index])
		w := arena.Weights[e.Index] - delta
		if !isFinite32(w) {
			return newErrf(ArithmeticError, nil, "non-finite linear weight at index %d", e.Index)
		}
		arena.Weights[e.Index] = w
	}
	return nil
}

func isFinite32(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
