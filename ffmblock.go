package wabbitlearn

// ffmBlock computes the FFM term of the regressor (§4.7 "FFM block").
// Forward/backward iterate over unordered pairs of buffer entries
// belonging to distinct fields; it skips pairs within the same field
// (a field never interacts with itself). A weight address can be
// touched by more than one pair in the same example whenever a field
// has more than one active feature, so backward accumulates into a
// scratch map before applying a single optimizer step per touched
// address (§9 "avoid aliasing").
type ffmBlock struct {
	k        int
	gradAcc  map[int]float32
	touchOrd []int
}

func newFFMBlock(k int) *ffmBlock {
	return &ffmBlock{k: k, gradAcc: make(map[int]float32)}
}

// Forward returns y_ffm = sum over distinct-field entry pairs (i,j),
// sum_{d<k} W[base_i + field_j*k + d] * W[base_j + field_i*k + d] * v_i * v_j.
func (blk *ffmBlock) Forward(fb *FeatureBuffer, arena *Arena) float32 {
	entries := fb.FFM
	k := blk.k
	var y float32
	for i := 0; i < len(entries); i++ {
		ei := entries[i]
		for j := i + 1; j < len(entries); j++ {
			ej := entries[j]
			if ei.Field == ej.Field {
				continue
			}
			vProd := ei.Value * ej.Value
			baseA := ei.Base + ej.Field*k
			baseB := ej.Base + ei.Field*k
			for d := 0; d < k; d++ {
				y += arena.Weights[baseA+d] * arena.Weights[baseB+d] * vProd
			}
		}
	}
	return y
}

// Backward accumulates the gradient of every touched weight into a
// scratch map, then applies one optimizer step per address.
func (blk *ffmBlock) Backward(fb *FeatureBuffer, arena *Arena, dLdy float32, opt Optimizer) error {
	entries := fb.FFM
	k := blk.k
	for idx := range blk.gradAcc {
		delete(blk.gradAcc, idx)
	}
	blk.touchOrd = blk.touchOrd[:0]

	for i := 0; i < len(entries); i++ {
		ei := entries[i]
		for j := i + 1; j < len(entries); j++ {
			ej := entries[j]
			if ei.Field == ej.Field {
				continue
			}
			vProd := ei.Value * ej.Value * dLdy
			baseA := ei.Base + ej.Field*k
			baseB := ej.Base + ei.Field*k
			for d := 0; d < k; d++ {
				idxA, idxB := baseA+d, baseB+d
				wa := arena.Weights[idxA]
				wb := arena.Weights[idxB]
				blk.accumulate(idxA, wb*vProd)
				blk.accumulate(idxB, wa*vProd)
			}
		}
	}
	for _, idx := range blk.touchOrd {
		g := blk.gradAcc[idx]
		delta := opt.Step(g, &arena.Accum[idx])
		w := arena.Weights[idx] - delta
		if !isFinite32(w) {
			return newErrf(ArithmeticError, nil, "non-finite FFM weight at index %d", idx)
		}
		arena.Weights[idx] = w
	}
	return nil
}

func (blk *ffmBlock) accumulate(idx int, g float32) {
	if _, ok := blk.gradAcc[idx]; !ok {
		blk.touchOrd = append(blk.touchOrd, idx)
	}
	blk.gradAcc[idx] += g
}
