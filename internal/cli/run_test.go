package cli

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	wl "github.com/wabbitlearn/wabbitlearn"
)

func writeNamespaceCSV(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "ns.csv")
	require.NoError(t, os.WriteFile(path, []byte("user,0\nad,1\n"), 0o644))
	return path
}

func TestRunTrainingProducesOnePredictionPerLine(t *testing.T) {
	dir := t.TempDir()
	nsPath := writeNamespaceCSV(t, dir)

	dataPath := filepath.Join(dir, "data.txt")
	lines := []string{
		"1 |user a |ad b",
		"-1 |user c |ad d",
		"1 |user a |ad e",
	}
	require.NoError(t, os.WriteFile(dataPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	nm, err := wl.NewNamespaceMap(nsPath)
	require.NoError(t, err)
	inst := wl.DefaultInstance(nm, nil, 10, 8, 4)
	reg := wl.NewRegressor(inst)

	oldOpts := opts
	defer func() { opts = oldOpts }()
	opts.data = dataPath
	opts.predictions = filepath.Join(dir, "preds.txt")
	opts.holdoutAfter = -1

	require.NoError(t, runTraining(inst, reg))

	f, err := os.Open(opts.predictions)
	require.NoError(t, err)
	defer f.Close()
	scanner := bufio.NewScanner(f)
	var count int
	for scanner.Scan() {
		count++
	}
	require.Equal(t, len(lines), count)
}

func TestRunTrainingHoldoutAfterStopsUpdates(t *testing.T) {
	dir := t.TempDir()
	nsPath := writeNamespaceCSV(t, dir)
	nm, err := wl.NewNamespaceMap(nsPath)
	require.NoError(t, err)

	allLines := []string{
		"1 |user a",
		"1 |user a",
		"1 |user a",
		"1 |user a",
	}
	fullPath := filepath.Join(dir, "full.txt")
	require.NoError(t, os.WriteFile(fullPath, []byte(strings.Join(allLines, "\n")+"\n"), 0o644))
	firstTwoPath := filepath.Join(dir, "first_two.txt")
	require.NoError(t, os.WriteFile(firstTwoPath, []byte(strings.Join(allLines[:2], "\n")+"\n"), 0o644))

	oldOpts := opts
	defer func() { opts = oldOpts }()

	instHeld := wl.DefaultInstance(nm, nil, 10, 8, 4)
	regHeld := wl.NewRegressor(instHeld)
	opts.data = fullPath
	opts.holdoutAfter = 2
	require.NoError(t, runTraining(instHeld, regHeld))

	opts.holdoutAfter = -1

	instRef := wl.DefaultInstance(nm, nil, 10, 8, 4)
	regRef := wl.NewRegressor(instRef)
	opts.data = firstTwoPath
	require.NoError(t, runTraining(instRef, regRef))

	require.True(t, regRef.Arena.Equal(regHeld.Arena),
		"examples with index >= holdout_after must never update weights")
}
