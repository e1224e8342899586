package testing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fsbroker/pkg/store"
)

// RunRenameTests covers Rename of files and directory trees.
func (suite *StoreTestSuite) RunRenameTests(t *testing.T) {
	t.Run("File", suite.testRenameFile)
	t.Run("ReplaceFile", suite.testRenameReplaceFile)
	t.Run("DirectoryTree", suite.testRenameDirectoryTree)
	t.Run("NotFound", suite.testRenameNotFound)
	t.Run("MissingDestinationParent", suite.testRenameMissingParent)
	t.Run("IntoItself", suite.testRenameIntoItself)
}

func (suite *StoreTestSuite) testRenameFile(t *testing.T) {
	s := suite.newStore(t)
	mustMkdirs(t, s, "/a")
	mustMkdirs(t, s, "/b")
	mustWriteFile(t, s, "/a/f", []byte("payload"))

	require.NoError(t, s.Rename(testContext(), "/a/f", "/b/g"))

	mustExist(t, s, "/a/f", false)
	assert.Equal(t, []byte("payload"), mustReadAll(t, s, "/b/g"))
}

func (suite *StoreTestSuite) testRenameReplaceFile(t *testing.T) {
	s := suite.newStore(t)
	mustWriteFile(t, s, "/src", []byte("new"))
	mustWriteFile(t, s, "/dst", []byte("old and longer"))

	require.NoError(t, s.Rename(testContext(), "/src", "/dst"))
	assert.Equal(t, []byte("new"), mustReadAll(t, s, "/dst"))
}

func (suite *StoreTestSuite) testRenameDirectoryTree(t *testing.T) {
	s := suite.newStore(t)
	mustMkdirs(t, s, "/old/sub")
	mustWriteFile(t, s, "/old/sub/f", []byte("deep"))
	mustWriteFile(t, s, "/old/top", []byte("top"))

	require.NoError(t, s.Rename(testContext(), "/old", "/new"))

	mustExist(t, s, "/old", false)
	mustExist(t, s, "/old/sub/f", false)
	assert.Equal(t, []byte("deep"), mustReadAll(t, s, "/new/sub/f"))
	assert.Equal(t, []byte("top"), mustReadAll(t, s, "/new/top"))

	names, err := s.Readdir(testContext(), "/new")
	require.NoError(t, err)
	assert.Equal(t, []string{"sub", "top"}, names)
}

func (suite *StoreTestSuite) testRenameNotFound(t *testing.T) {
	s := suite.newStore(t)
	assert.ErrorIs(t, s.Rename(testContext(), "/missing", "/x"), store.ErrNotFound)
}

func (suite *StoreTestSuite) testRenameMissingParent(t *testing.T) {
	s := suite.newStore(t)
	mustWriteFile(t, s, "/f", nil)

	assert.ErrorIs(t, s.Rename(testContext(), "/f", "/no/such/g"), store.ErrNotFound)
	mustExist(t, s, "/f", true)
}

func (suite *StoreTestSuite) testRenameIntoItself(t *testing.T) {
	s := suite.newStore(t)
	mustMkdirs(t, s, "/d")

	assert.ErrorIs(t, s.Rename(testContext(), "/d", "/d/inner"), store.ErrInvalidPath)
}
