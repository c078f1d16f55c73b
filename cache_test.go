package wabbitlearn

import (
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCacheRoundTrip(t *testing.T) {
	inst := testInstance(t)
	p := NewParser(inst)

	lines := []string{
		"1 |user a b |ad c",
		"-1 2.0 |user x |ad y z",
		"0 |user only",
	}

	path := filepath.Join(t.TempDir(), "records.cache")
	cw, err := NewCacheWriter(path, inst.Namespaces)
	require.NoError(t, err)
	for _, line := range lines {
		frame, err := p.Parse([]byte(line))
		require.NoError(t, err)
		require.NoError(t, cw.Append(frame))
	}
	require.NoError(t, cw.Close())

	cr, err := NewCacheReader(path, inst.Namespaces)
	require.NoError(t, err)
	defer cr.Close()

	dst := NewFrame(inst.NumFields())
	var got []float32
	for {
		err := cr.Next(dst)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, dst.Label)
	}
	require.Equal(t, []float32{1, -1, 0}, got)
}

func TestCacheReaderRejectsFingerprintMismatch(t *testing.T) {
	inst := testInstance(t)
	path := filepath.Join(t.TempDir(), "records.cache")
	cw, err := NewCacheWriter(path, inst.Namespaces)
	require.NoError(t, err)
	require.NoError(t, cw.Close())

	otherNM, err := parseNamespaceMap(strings.NewReader("user,0\nad,1\nextra,2\n"))
	require.NoError(t, err)

	_, err = NewCacheReader(path, otherNM)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, CacheIncompatible, kind)
}
