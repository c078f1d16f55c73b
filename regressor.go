package wabbitlearn

// Regressor composes the linear block, FFM block, and loss block over
// one shared Arena (§4.7). Its public contract is Learn(fb, update):
// Ready → Forward → (if update) Backward → Ready, with no partial
// state surviving across examples. A *Error with Kind ArithmeticError
// during Backward is fatal per §7 and is delivered as a panic, since
// at that point the arena may be left inconsistent and the caller has
// no way to make a meaningful partial-state decision (§9 "a panic in
// Backward is fatal").
type Regressor struct {
	Inst  *Instance
	Arena *Arena

	opt Optimizer
	ffm *ffmBlock
}

// NewRegressor builds a Regressor over a fresh zeroed Arena sized for inst.
func NewRegressor(inst *Instance) *Regressor {
	return &Regressor{
		Inst:  inst,
		Arena: NewArena(inst),
		opt:   NewOptimizer(inst),
		ffm:   newFFMBlock(inst.K),
	}
}

// NewRegressorWithArena builds a Regressor over an existing Arena,
// e.g. one restored from a snapshot (§4.8).
func NewRegressorWithArena(inst *Instance, arena *Arena) *Regressor {
	return &Regressor{
		Inst:  inst,
		Arena: arena,
		opt:   NewOptimizer(inst),
		ffm:   newFFMBlock(inst.K),
	}
}

// Learn runs one forward pass and, if update is true, one backward
// pass, returning the example's prediction. The call is deterministic
// for fixed fb contents and Arena state.
func (r *Regressor) Learn(fb *FeatureBuffer, update bool) float32 {
	yLin := linearForward(fb, r.Arena)
	yFfm := r.ffm.Forward(fb, r.Arena)
	pred, dLdy := lossForward(r.Inst.Loss, yLin+yFfm, fb.Label, fb.Importance, r.Inst.Clip)

	if update {
		if err := linearBackward(fb, r.Arena, dLdy, r.opt); err != nil {
			panic(err)
		}
		if err := r.ffm.Backward(fb, r.Arena, dLdy, r.opt); err != nil {
			panic(err)
		}
	}
	return pred
}
