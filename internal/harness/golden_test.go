package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGoldenScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		s, err := LoadScenario(path)
		require.NoError(t, err, path)
		t.Run(s.Name, func(t *testing.T) {
			res, err := RunWithGolden(t, s)
			require.NoError(t, err)
			require.True(t, res.Pass, "errors: %v", res.Errors)
		})
	}
}

func TestMarshalTrace_Deterministic(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "kernel_batching.yaml"))
	require.NoError(t, err)

	h := New(nil)
	first, err := h.Run(t.Context(), s)
	require.NoError(t, err)
	second, err := h.Run(t.Context(), s)
	require.NoError(t, err)

	a, err := MarshalTrace(s.Name, first)
	require.NoError(t, err)
	b, err := MarshalTrace(s.Name, second)
	require.NoError(t, err)
	require.Equal(t, string(a), string(b))
}
