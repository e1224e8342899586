package s3

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKeys(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		path    string
		fileKey string
		dirKey  string
	}{
		{"root without prefix", "", "/", "", ""},
		{"root with prefix", "fsbroker/", "/", "fsbroker/", "fsbroker/"},
		{"nested without prefix", "", "/tmp/logs", "tmp/logs", "tmp/logs/"},
		{"nested with prefix", "fsbroker/", "/tmp/logs", "fsbroker/tmp/logs", "fsbroker/tmp/logs/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &S3Store{keyPrefix: tt.prefix}
			if tt.path != "/" {
				assert.Equal(t, tt.fileKey, s.fileKey(tt.path))
			}
			assert.Equal(t, tt.dirKey, s.dirKey(tt.path))
		})
	}
}

func TestNormalizePrefix(t *testing.T) {
	assert.Equal(t, "", normalizePrefix(""))
	assert.Equal(t, "a/", normalizePrefix("a"))
	assert.Equal(t, "a/", normalizePrefix("/a/"))
	assert.Equal(t, "a/b/", normalizePrefix("a/b"))
}

func TestCopySourceEscapesSegments(t *testing.T) {
	s := &S3Store{bucket: "bucket"}
	assert.Equal(t, "bucket/dir/file%20name", s.copySource("dir/file name"))
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(context.Background(), Config{Bucket: "b"})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestLockPathSerializes(t *testing.T) {
	s := &S3Store{}

	unlock := s.lockPath("/f")
	acquired := make(chan struct{})
	go func() {
		release := s.lockPath("/f")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first was held")
	default:
	}
	unlock()
	<-acquired
}

func TestLockStripesAreFixed(t *testing.T) {
	s := &S3Store{}

	for i := 0; i < 4*pathLockStripes; i++ {
		p := fmt.Sprintf("/dir/file-%d", i)
		stripe := lockStripe(p)
		require.GreaterOrEqual(t, stripe, 0)
		require.Less(t, stripe, pathLockStripes)
		assert.Equal(t, stripe, lockStripe(p))

		unlock := s.lockPath(p)
		unlock()
	}

	assert.Len(t, s.pathLocks[:], pathLockStripes)
}
