package wabbitlearn

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testInstance(t *testing.T) *Instance {
	t.Helper()
	nm, err := parseNamespaceMap(strings.NewReader("user,0\nad,1\n"))
	require.NoError(t, err)
	return DefaultInstance(nm, nil, 10, 8, 4)
}

func TestRegressorLearnNoUpdateLeavesArenaUntouched(t *testing.T) {
	inst := testInstance(t)
	r := NewRegressor(inst)
	p := NewParser(inst)
	tr := NewTranslator(inst)

	frame, err := p.Parse([]byte("1 |user a b |ad c"))
	require.NoError(t, err)
	fb := tr.Translate(frame)

	before := r.Arena.Clone()
	_ = r.Learn(fb, false)
	require.True(t, before.Equal(r.Arena), "forward-only Learn must not mutate the arena")
}

func TestRegressorLearnUpdateChangesArena(t *testing.T) {
	inst := testInstance(t)
	r := NewRegressor(inst)
	p := NewParser(inst)
	tr := NewTranslator(inst)

	frame, err := p.Parse([]byte("1 |user a b |ad c"))
	require.NoError(t, err)
	fb := tr.Translate(frame)

	before := r.Arena.Clone()
	_ = r.Learn(fb, true)
	require.False(t, before.Equal(r.Arena), "update Learn must mutate the arena")
}

func TestRegressorPredictionIsDeterministic(t *testing.T) {
	inst := testInstance(t)
	r := NewRegressor(inst)
	p := NewParser(inst)
	tr := NewTranslator(inst)

	frame, err := p.Parse([]byte("1 |user a b |ad c"))
	require.NoError(t, err)

	fb1 := tr.Translate(frame)
	p1 := r.Learn(fb1, false)

	fb2 := tr.Translate(frame)
	p2 := r.Learn(fb2, false)

	require.Equal(t, p1, p2)
}

func TestRegressorLogisticPredictionInUnitInterval(t *testing.T) {
	inst := testInstance(t)
	r := NewRegressor(inst)
	p := NewParser(inst)
	tr := NewTranslator(inst)

	frame, err := p.Parse([]byte("1 |user a b c d e |ad f g h"))
	require.NoError(t, err)
	fb := tr.Translate(frame)

	pred := r.Learn(fb, false)
	require.Greater(t, pred, float32(0))
	require.Less(t, pred, float32(1))
}

func TestRegressorRepeatedLearnReducesLoss(t *testing.T) {
	inst := testInstance(t)
	r := NewRegressor(inst)
	p := NewParser(inst)
	tr := NewTranslator(inst)

	frame, err := p.Parse([]byte("1 |user a b |ad c"))
	require.NoError(t, err)

	var first, last float32
	for i := 0; i < 50; i++ {
		fb := tr.Translate(frame)
		pred := r.Learn(fb, true)
		if i == 0 {
			first = pred
		}
		last = pred
	}
	require.Greater(t, last, first, "prediction should move toward the positive label with repeated updates")
}

func TestRegressorBackwardPanicsOnArithmeticError(t *testing.T) {
	inst := testInstance(t)
	r := NewRegressor(inst)
	p := NewParser(inst)
	tr := NewTranslator(inst)

	frame, err := p.Parse([]byte("1 |user a |ad c"))
	require.NoError(t, err)
	fb := tr.Translate(frame)

	r.Arena.Weights[fb.Linear[0].Index] = float32(1e38)
	r.opt.LR = float32(math.Inf(1))

	require.Panics(t, func() {
		r.Learn(fb, true)
	})
}
