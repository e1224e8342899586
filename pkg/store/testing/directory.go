package testing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fsbroker/pkg/store"
)

// RunDirectoryTests covers Mkdirs, Rmdir, Readdir and Exists.
func (suite *StoreTestSuite) RunDirectoryTests(t *testing.T) {
	t.Run("Mkdirs_Nested", suite.testMkdirsNested)
	t.Run("Mkdirs_Idempotent", suite.testMkdirsIdempotent)
	t.Run("Mkdirs_OverFile", suite.testMkdirsOverFile)
	t.Run("Readdir_Sorted", suite.testReaddirSorted)
	t.Run("Readdir_NotFound", suite.testReaddirNotFound)
	t.Run("Readdir_File", suite.testReaddirFile)
	t.Run("Rmdir_Recursive", suite.testRmdirRecursive)
	t.Run("Rmdir_Missing", suite.testRmdirMissing)
	t.Run("Rmdir_File", suite.testRmdirFile)
	t.Run("Rmdir_Root", suite.testRmdirRoot)
}

func (suite *StoreTestSuite) testMkdirsNested(t *testing.T) {
	s := suite.newStore(t)

	mustMkdirs(t, s, "/a/b/c")

	mustExist(t, s, "/a", true)
	mustExist(t, s, "/a/b", true)
	info, err := s.Stat(testContext(), "/a/b/c")
	require.NoError(t, err)
	assert.True(t, info.IsDir)
	assert.Equal(t, "c", info.Name)
}

func (suite *StoreTestSuite) testMkdirsIdempotent(t *testing.T) {
	s := suite.newStore(t)

	mustMkdirs(t, s, "/tmp")
	mustMkdirs(t, s, "/tmp")

	names, err := s.Readdir(testContext(), "/")
	require.NoError(t, err)
	assert.Equal(t, []string{"tmp"}, names)
}

func (suite *StoreTestSuite) testMkdirsOverFile(t *testing.T) {
	s := suite.newStore(t)

	mustWriteFile(t, s, "/f", []byte("x"))
	err := s.Mkdirs(testContext(), "/f/sub")
	assert.ErrorIs(t, err, store.ErrNotDir)
}

func (suite *StoreTestSuite) testReaddirSorted(t *testing.T) {
	s := suite.newStore(t)

	mustMkdirs(t, s, "/d/zeta")
	mustMkdirs(t, s, "/d/alpha/deep")
	mustWriteFile(t, s, "/d/middle", []byte("m"))

	names, err := s.Readdir(testContext(), "/d")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "middle", "zeta"}, names)

	empty, err := s.Readdir(testContext(), "/d/zeta")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func (suite *StoreTestSuite) testReaddirNotFound(t *testing.T) {
	s := suite.newStore(t)

	_, err := s.Readdir(testContext(), "/missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func (suite *StoreTestSuite) testReaddirFile(t *testing.T) {
	s := suite.newStore(t)

	mustWriteFile(t, s, "/f", nil)
	_, err := s.Readdir(testContext(), "/f")
	assert.ErrorIs(t, err, store.ErrNotDir)
}

func (suite *StoreTestSuite) testRmdirRecursive(t *testing.T) {
	s := suite.newStore(t)

	mustMkdirs(t, s, "/r/x/y")
	mustWriteFile(t, s, "/r/x/file", []byte("data"))
	mustMkdirs(t, s, "/keep")

	require.NoError(t, s.Rmdir(testContext(), "/r"))

	mustExist(t, s, "/r", false)
	mustExist(t, s, "/r/x/file", false)
	mustExist(t, s, "/keep", true)

	names, err := s.Readdir(testContext(), "/")
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, names)
}

func (suite *StoreTestSuite) testRmdirMissing(t *testing.T) {
	s := suite.newStore(t)
	assert.NoError(t, s.Rmdir(testContext(), "/never"))
}

func (suite *StoreTestSuite) testRmdirFile(t *testing.T) {
	s := suite.newStore(t)

	mustWriteFile(t, s, "/f", nil)
	assert.ErrorIs(t, s.Rmdir(testContext(), "/f"), store.ErrNotDir)
	mustExist(t, s, "/f", true)
}

func (suite *StoreTestSuite) testRmdirRoot(t *testing.T) {
	s := suite.newStore(t)
	assert.ErrorIs(t, s.Rmdir(testContext(), "/"), store.ErrInvalidPath)
}
