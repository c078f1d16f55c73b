package wabbitlearn

import "math"

// lossForward composes y = y_lin + y_ffm into a final prediction and
// dL/dy (§4.7 "Loss block"). logistic maps y through a branchy,
// sign-safe sigmoid so the result is exactly in (0,1) regardless of
// |y|; squared loss uses the identity link. dL/dy is clipped to
// [-clip, +clip] to bound the effect of misspecified labels.
func lossForward(loss LossKind, y, label, importance, clip float32) (pred float32, dLdy float32) {
	switch loss {
	case LossSquared:
		pred = y
		dLdy = (pred - label) * importance
	default: // LossLogistic
		pred = sigmoid(y)
		target := (label + 1) / 2
		dLdy = (pred - target) * importance
	}
	if clip > 0 {
		if dLdy > clip {
			dLdy = clip
		} else if dLdy < -clip {
			dLdy = -clip
		}
	}
	return
}

// sigmoid computes 1/(1+exp(-y)) without overflowing exp for large
// |y|, by branching on the sign of y so the exponent argument is
// always non-positive. Results that round to 0 or 1 in float32 are
// pulled to the nearest representable value strictly inside (0,1).
func sigmoid(y float32) float32 {
	var s float32
	if y >= 0 {
		z := float32(math.Exp(float64(-y)))
		s = 1 / (1 + z)
	} else {
		z := float32(math.Exp(float64(y)))
		s = z / (1 + z)
	}
	if s >= 1 {
		return math.Nextafter32(1, 0)
	}
	if s <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return s
}
