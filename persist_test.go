package wabbitlearn

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTripFullPrecision(t *testing.T) {
	inst := testInstance(t)
	arena := NewArena(inst)
	for i := range arena.Weights {
		arena.Weights[i] = float32(i) * 0.125
		arena.Accum[i] = float32(i) * 0.5
	}

	path := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, SaveSnapshot(path, inst, arena, false, true))

	got, err := LoadSnapshot(path, inst)
	require.NoError(t, err)
	require.True(t, arena.Equal(got))
}

func TestSnapshotWithoutOptimizerOmitsAccum(t *testing.T) {
	inst := testInstance(t)
	arena := NewArena(inst)
	arena.Weights[0] = 1.5
	arena.Accum[0] = 99

	path := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, SaveSnapshot(path, inst, arena, false, false))

	got, err := LoadSnapshot(path, inst)
	require.NoError(t, err)
	require.Equal(t, float32(1.5), got.Weights[0])
	require.Equal(t, float32(0), got.Accum[0])
}

func TestSnapshotQuantizedFFMIsLossy(t *testing.T) {
	inst := testInstance(t)
	arena := NewArena(inst)
	linearSize := inst.LinearSize()
	for i := linearSize; i < len(arena.Weights); i++ {
		arena.Weights[i] = 0.123456789
	}

	path := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, SaveSnapshot(path, inst, arena, true, false))

	got, err := LoadSnapshot(path, inst)
	require.NoError(t, err)
	require.NotEqual(t, arena.Weights[linearSize], got.Weights[linearSize], "quantization must be lossy")
	require.InDelta(t, arena.Weights[linearSize], got.Weights[linearSize], 1e-2)
}

func TestLoadSnapshotRejectsFingerprintMismatch(t *testing.T) {
	inst := testInstance(t)
	arena := NewArena(inst)

	path := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, SaveSnapshot(path, inst, arena, false, false))

	otherNM, err := parseNamespaceMap(strings.NewReader("user,0\nad,1\nextra,2\n"))
	require.NoError(t, err)
	otherInst := DefaultInstance(otherNM, nil, inst.LrBits, inst.FfmBits, inst.K)

	_, err = LoadSnapshot(path, otherInst)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, SnapshotIncompatible, kind)
}

func TestLoadSnapshotRejectsBadMagic(t *testing.T) {
	inst := testInstance(t)
	path := filepath.Join(t.TempDir(), "bad.bin")
	require.NoError(t, os.WriteFile(path, []byte("not-a-snapshot-file-at-all"), 0o644))

	_, err := LoadSnapshot(path, inst)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, SnapshotIncompatible, kind)
}
