//go:build e2e

package e2e

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
)

// TestCreateFolder tests creating a single folder
func TestCreateFolder(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		ctx := tc.Context()

		require.NoError(t, tc.Client.Mkdirs(ctx, "/testfolder"))

		ok, err := tc.Client.Exists(ctx, "/testfolder")
		require.NoError(t, err)
		assert.True(t, ok)

		names, err := tc.Client.Readdir(ctx, "/")
		require.NoError(t, err)
		assert.Equal(t, []string{"testfolder"}, names)
	})
}

// TestCreateNestedFolders creates 20 nested folders with a single MKDIRS.
func TestCreateNestedFolders(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		ctx := tc.Context()

		path := ""
		for i := 0; i < 20; i++ {
			path += fmt.Sprintf("/nested%d", i)
		}
		require.NoError(t, tc.Client.Mkdirs(ctx, path))

		ok, err := tc.Client.Exists(ctx, path)
		require.NoError(t, err)
		assert.True(t, ok)

		names, err := tc.Client.Readdir(ctx, "/nested0/nested1")
		require.NoError(t, err)
		assert.Equal(t, []string{"nested2"}, names)
	})
}

// TestCreateEmptyFile tests creating a single empty file
func TestCreateEmptyFile(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		ctx := tc.Context()

		fd, err := tc.Client.Create(ctx, "/empty.txt", 0)
		require.NoError(t, err)
		require.NoError(t, tc.Client.CloseFile(ctx, fd))

		n, err := tc.Client.Length(ctx, "/empty.txt")
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

// TestCreateFileWithContent writes a file and reads it back on a second
// connection.
func TestCreateFileWithContent(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		content := []byte("Hello, fsbroker!")
		writeFile(t, tc, "/hello.txt", content)

		other := tc.Dial()
		assert.Equal(t, content, readAll(t, tc, other, "/hello.txt"))
	})
}

// TestCreateManyFiles creates 50 files in one directory and lists them.
func TestCreateManyFiles(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		ctx := tc.Context()
		require.NoError(t, tc.Client.Mkdirs(ctx, "/many"))

		var want []string
		for i := 0; i < 50; i++ {
			name := fmt.Sprintf("file%02d", i)
			writeFile(t, tc, "/many/"+name, []byte(name))
			want = append(want, name)
		}

		names, err := tc.Client.Readdir(ctx, "/many")
		require.NoError(t, err)
		assert.Equal(t, want, names)
	})
}

// TestCreateInMissingDirectory expects FILE_NOT_FOUND when the parent does
// not exist.
func TestCreateInMissingDirectory(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		_, err := tc.Client.Create(tc.Context(), "/nope/file", 0)
		require.Error(t, err)
		assert.Equal(t, types.FileNotFound, clientCode(err))
	})
}

// TestHiddenEntriesNotListed checks that dot-prefixed names stay out of
// READDIR results.
func TestHiddenEntriesNotListed(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		ctx := tc.Context()
		require.NoError(t, tc.Client.Mkdirs(ctx, "/dir/.hidden"))
		writeFile(t, tc, "/dir/visible", []byte("x"))
		writeFile(t, tc, "/dir/.dotfile", []byte("x"))

		names, err := tc.Client.Readdir(ctx, "/dir")
		require.NoError(t, err)
		assert.Equal(t, []string{"visible"}, names)
	})
}
