package testing

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fsbroker/pkg/store"
)

// RunFileTests covers Create, Append, ReadAt, Stat, Sync and Remove.
func (suite *StoreTestSuite) RunFileTests(t *testing.T) {
	t.Run("Create_Empty", suite.testCreateEmpty)
	t.Run("Create_Truncate", suite.testCreateTruncate)
	t.Run("Create_KeepExisting", suite.testCreateKeepExisting)
	t.Run("Create_MissingParent", suite.testCreateMissingParent)
	t.Run("Create_OverDirectory", suite.testCreateOverDirectory)
	t.Run("Append_Offsets", suite.testAppendOffsets)
	t.Run("Append_NotFound", suite.testAppendNotFound)
	t.Run("Append_Concurrent", suite.testAppendConcurrent)
	t.Run("ReadAt_Ranges", suite.testReadAtRanges)
	t.Run("ReadAt_Directory", suite.testReadAtDirectory)
	t.Run("Sync", suite.testSync)
	t.Run("Remove_File", suite.testRemoveFile)
	t.Run("Remove_NotFound", suite.testRemoveNotFound)
	t.Run("Remove_Directory", suite.testRemoveDirectory)
}

func (suite *StoreTestSuite) testCreateEmpty(t *testing.T) {
	s := suite.newStore(t)

	mustCreate(t, s, "/f")

	info, err := s.Stat(testContext(), "/f")
	require.NoError(t, err)
	assert.False(t, info.IsDir)
	assert.Equal(t, uint64(0), info.Size)
}

func (suite *StoreTestSuite) testCreateTruncate(t *testing.T) {
	s := suite.newStore(t)

	mustWriteFile(t, s, "/f", []byte("old contents"))
	require.NoError(t, s.Create(testContext(), "/f", true))

	info, err := s.Stat(testContext(), "/f")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), info.Size)
}

func (suite *StoreTestSuite) testCreateKeepExisting(t *testing.T) {
	s := suite.newStore(t)

	mustWriteFile(t, s, "/f", []byte("old"))
	require.NoError(t, s.Create(testContext(), "/f", false))

	assert.Equal(t, []byte("old"), mustReadAll(t, s, "/f"))
}

func (suite *StoreTestSuite) testCreateMissingParent(t *testing.T) {
	s := suite.newStore(t)

	err := s.Create(testContext(), "/no/such/dir/f", true)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func (suite *StoreTestSuite) testCreateOverDirectory(t *testing.T) {
	s := suite.newStore(t)

	mustMkdirs(t, s, "/d")
	assert.ErrorIs(t, s.Create(testContext(), "/d", true), store.ErrIsDir)
}

func (suite *StoreTestSuite) testAppendOffsets(t *testing.T) {
	s := suite.newStore(t)
	mustCreate(t, s, "/log")

	off, err := s.Append(testContext(), "/log", []byte("hello "))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), off)

	off, err = s.Append(testContext(), "/log", []byte("world"))
	require.NoError(t, err)
	assert.Equal(t, uint64(6), off)

	assert.Equal(t, []byte("hello world"), mustReadAll(t, s, "/log"))
}

func (suite *StoreTestSuite) testAppendNotFound(t *testing.T) {
	s := suite.newStore(t)

	_, err := s.Append(testContext(), "/missing", []byte("x"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func (suite *StoreTestSuite) testAppendConcurrent(t *testing.T) {
	s := suite.newStore(t)
	mustCreate(t, s, "/c")

	const writers = 8
	var wg sync.WaitGroup
	offsets := make(chan uint64, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			off, err := s.Append(testContext(), "/c", []byte("abcd"))
			if assert.NoError(t, err) {
				offsets <- off
			}
		}()
	}
	wg.Wait()
	close(offsets)

	seen := make(map[uint64]bool)
	for off := range offsets {
		assert.False(t, seen[off], "offset %d handed out twice", off)
		assert.Equal(t, uint64(0), off%4)
		seen[off] = true
	}
	info, err := s.Stat(testContext(), "/c")
	require.NoError(t, err)
	assert.Equal(t, uint64(4*writers), info.Size)
}

func (suite *StoreTestSuite) testReadAtRanges(t *testing.T) {
	s := suite.newStore(t)
	mustWriteFile(t, s, "/r", []byte("0123456789"))

	cases := []struct {
		offset uint64
		n      uint32
		want   string
	}{
		{0, 4, "0123"},
		{6, 100, "6789"},
		{10, 5, ""},
		{50, 5, ""},
		{3, 0, ""},
	}
	for _, tc := range cases {
		data, err := s.ReadAt(testContext(), "/r", tc.offset, tc.n)
		require.NoError(t, err, "offset=%d n=%d", tc.offset, tc.n)
		assert.Equal(t, tc.want, string(data), "offset=%d n=%d", tc.offset, tc.n)
	}

	_, err := s.ReadAt(testContext(), "/missing", 0, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func (suite *StoreTestSuite) testReadAtDirectory(t *testing.T) {
	s := suite.newStore(t)
	mustMkdirs(t, s, "/d")

	_, err := s.ReadAt(testContext(), "/d", 0, 1)
	assert.ErrorIs(t, err, store.ErrIsDir)
}

func (suite *StoreTestSuite) testSync(t *testing.T) {
	s := suite.newStore(t)
	mustWriteFile(t, s, "/f", []byte("x"))

	assert.NoError(t, s.Sync(testContext(), "/f"))
	assert.ErrorIs(t, s.Sync(testContext(), "/missing"), store.ErrNotFound)
}

func (suite *StoreTestSuite) testRemoveFile(t *testing.T) {
	s := suite.newStore(t)
	mustMkdirs(t, s, "/d")
	mustWriteFile(t, s, "/d/f", []byte("x"))

	require.NoError(t, s.Remove(testContext(), "/d/f"))
	mustExist(t, s, "/d/f", false)
	mustExist(t, s, "/d", true)
}

func (suite *StoreTestSuite) testRemoveNotFound(t *testing.T) {
	s := suite.newStore(t)
	assert.ErrorIs(t, s.Remove(testContext(), "/missing"), store.ErrNotFound)
}

func (suite *StoreTestSuite) testRemoveDirectory(t *testing.T) {
	s := suite.newStore(t)
	mustMkdirs(t, s, "/d")

	assert.ErrorIs(t, s.Remove(testContext(), "/d"), store.ErrIsDir)
	mustExist(t, s, "/d", true)
}
