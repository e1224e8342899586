package testing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/fsbroker/pkg/store"
)

func mustMkdirs(t *testing.T, s store.Store, path string) {
	t.Helper()
	require.NoError(t, s.Mkdirs(testContext(), path), "Mkdirs %s should succeed", path)
}

func mustCreate(t *testing.T, s store.Store, path string) {
	t.Helper()
	require.NoError(t, s.Create(testContext(), path, true), "Create %s should succeed", path)
}

// mustWriteFile creates path (truncating it) and appends data.
func mustWriteFile(t *testing.T, s store.Store, path string, data []byte) {
	t.Helper()
	mustCreate(t, s, path)
	if len(data) > 0 {
		_, err := s.Append(testContext(), path, data)
		require.NoError(t, err, "Append %s should succeed", path)
	}
}

func mustReadAll(t *testing.T, s store.Store, path string) []byte {
	t.Helper()
	info, err := s.Stat(testContext(), path)
	require.NoError(t, err, "Stat %s should succeed", path)
	data, err := s.ReadAt(testContext(), path, 0, uint32(info.Size))
	require.NoError(t, err, "ReadAt %s should succeed", path)
	return data
}

func mustExist(t *testing.T, s store.Store, path string, want bool) {
	t.Helper()
	ok, err := s.Exists(testContext(), path)
	require.NoError(t, err)
	require.Equal(t, want, ok, "Exists(%s)", path)
}
