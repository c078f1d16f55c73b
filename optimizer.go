package wabbitlearn

import "math"

// Optimizer computes the per-weight adaptive update described in
// §4.6: given gradient g and accumulated state s, s' = s + g^2,
// step = eta * g * (s' + eps)^(-p). It is pure, stateless code; all
// mutable state lives in the Arena's parallel accumulator vector so
// forward and backward stay cache-friendly.
type Optimizer struct {
	Kind    OptimizerKind
	LR      float32
	Power   float32 // ignored for SGD/AdaGrad, which fix p at 0 and 0.5
	Epsilon float32
	MinAcc  float32 // 0 disables clamping
	MaxAcc  float32 // 0 disables clamping
}

// NewOptimizer builds an Optimizer from an Instance's hyperparameters.
func NewOptimizer(inst *Instance) Optimizer {
	return Optimizer{
		Kind:    inst.Optimizer,
		LR:      inst.LR,
		Power:   inst.Power,
		Epsilon: inst.Epsilon,
	}
}

// Step applies one update given gradient g and a pointer to the
// weight's accumulator slot (mutated in place, except for SGD, which
// doesn't use it). It returns the delta to subtract from the weight.
func (o Optimizer) Step(g float32, acc *float32) float32 {
	if o.Kind == OptimizerSGD {
		return o.LR * g
	}
	p := o.Power
	if o.Kind == OptimizerAdaGrad {
		p = 0.5
	}
	s := *acc + g*g
	if o.MaxAcc > 0 && s > o.MaxAcc {
		s = o.MaxAcc
	}
	if o.MinAcc > 0 && s < o.MinAcc {
		s = o.MinAcc
	}
	*acc = s
	denom := float32(math.Pow(float64(s+o.Epsilon), float64(-p)))
	return o.LR * g * denom
}
