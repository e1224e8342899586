package fs

import (
	"os"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/marmos91/fsbroker/internal/logger"
)

// fdCache keeps append handles open across APPEND requests.
//
// Handles are opened with O_APPEND and keyed by store path. Evicted handles
// are closed. The cache is not locked on its own: every caller holds the
// store's append lock, so no handle can be closed while it is being written.
type fdCache struct {
	files *lru.Cache[string, *os.File]
}

func newFDCache(size int) (*fdCache, error) {
	if size < 1 {
		size = 256
	}
	files, err := lru.NewWithEvict[string, *os.File](size, func(path string, f *os.File) {
		if err := f.Close(); err != nil {
			logger.Warn("fs store: close cached handle %s: %v", path, err)
		}
	})
	if err != nil {
		return nil, err
	}
	return &fdCache{files: files}, nil
}

func (c *fdCache) get(path string) (*os.File, bool) {
	return c.files.Get(path)
}

func (c *fdCache) put(path string, f *os.File) {
	c.files.Add(path, f)
}

// drop closes the handle of path and of anything below it.
func (c *fdCache) drop(path string) {
	for _, key := range c.files.Keys() {
		if key == path || strings.HasPrefix(key, path+"/") {
			c.files.Remove(key)
		}
	}
}

func (c *fdCache) len() int {
	return c.files.Len()
}

func (c *fdCache) close() {
	c.files.Purge()
}
