//go:build e2e

package e2e

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// FileSize represents a test file size
type FileSize struct {
	Name  string
	Bytes int
}

var (
	Size4KB   = FileSize{Name: "4KB", Bytes: 4 * 1024}
	Size500KB = FileSize{Name: "500KB", Bytes: 500 * 1024}
	Size1MB   = FileSize{Name: "1MB", Bytes: 1 * 1024 * 1024}
	Size10MB  = FileSize{Name: "10MB", Bytes: 10 * 1024 * 1024}

	StandardFileSizes = []FileSize{Size4KB, Size500KB, Size1MB, Size10MB}
)

// appendChunk is the size of each APPEND request when writing test files.
const appendChunk = 256 * 1024

// TestCreateFilesBySize writes files in several APPENDs and verifies their
// length and content.
func TestCreateFilesBySize(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		for _, size := range StandardFileSizes {
			t.Run(size.Name, func(t *testing.T) {
				testCreateFileOfSize(t, tc, size)
			})
		}
	})
}

// TestSingleLargeAppend sends a whole 10MB file in one request, under the
// default payload limit.
func TestSingleLargeAppend(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		data := randomBytes(t, Size10MB.Bytes)
		writeFile(t, tc, "/big", data)

		n, err := tc.Client.Length(tc.Context(), "/big")
		require.NoError(t, err)
		assert.Equal(t, uint64(len(data)), n)
	})
}

func testCreateFileOfSize(t *testing.T, tc *TestContext, size FileSize) {
	t.Helper()
	ctx := tc.Context()
	path := "/size-" + size.Name
	data := randomBytes(t, size.Bytes)

	fd, err := tc.Client.Create(ctx, path, 0)
	require.NoError(t, err)
	for off := 0; off < len(data); off += appendChunk {
		end := min(off+appendChunk, len(data))
		got, err := tc.Client.Append(ctx, fd, data[off:end], false)
		require.NoError(t, err)
		require.Equal(t, uint64(off), got)
	}
	require.NoError(t, tc.Client.Flush(ctx, fd))
	require.NoError(t, tc.Client.CloseFile(ctx, fd))

	n, err := tc.Client.Length(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, uint64(size.Bytes), n)

	got := readAll(t, tc, tc.Client, path)
	assert.True(t, bytes.Equal(data, got), "content mismatch for %s", size.Name)
}

func randomBytes(t testing.TB, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	_, err := rand.Read(data)
	require.NoError(t, err)
	return data
}
