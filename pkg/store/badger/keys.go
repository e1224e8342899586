package badger

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Key Namespace
// =============
//
// Data Type   Prefix  Key Format                    Value
// ==========================================================
// Entry       "e:"    e:<path>                      entry (JSON)
// Chunk       "d:"    d:<path>\x00<offset u64 BE>   raw bytes
//
// Every file or directory has one entry key. A file's contents are the
// concatenation of its chunks in key order; each APPEND adds one chunk keyed
// by the offset it starts at. Store paths never contain NUL, so the chunk
// prefix d:<path>\x00 cannot match another file.
//
// Ranges used by the store:
//   - children of dir:         e:<dir>/ (direct children have no further "/")
//   - descendants of dir:      e:<dir>/ and d:<dir>/
//   - chunks of a file:        d:<path>\x00

const (
	prefixEntry = "e:"
	prefixChunk = "d:"
)

func keyEntry(p string) []byte {
	return []byte(prefixEntry + p)
}

// keyEntryChildren is the scan prefix for everything below dir.
func keyEntryChildren(dir string) []byte {
	if dir == "/" {
		return []byte(prefixEntry + "/")
	}
	return []byte(prefixEntry + dir + "/")
}

func keyChunkPrefix(p string) []byte {
	return []byte(prefixChunk + p + "\x00")
}

func keyChunk(p string, offset uint64) []byte {
	key := keyChunkPrefix(p)
	return binary.BigEndian.AppendUint64(key, offset)
}

// keyChunkDescendants is the scan prefix for chunks of every file below dir.
func keyChunkDescendants(dir string) []byte {
	return []byte(prefixChunk + dir + "/")
}

// chunkOffset extracts the starting offset from a chunk key.
func chunkOffset(key []byte) (uint64, error) {
	if len(key) < 8 {
		return 0, fmt.Errorf("chunk key too short: %d bytes", len(key))
	}
	return binary.BigEndian.Uint64(key[len(key)-8:]), nil
}

// childName returns the direct child name encoded in an entry key scanned
// under prefix, or false for deeper descendants.
func childName(key, prefix []byte) (string, bool) {
	rest := string(key[len(prefix):])
	if rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

// entry is the persisted description of a file or directory.
type entry struct {
	Dir     bool   `json:"dir"`
	Size    uint64 `json:"size"`
	ModTime int64  `json:"mtime"`
}

func newEntry(dir bool) *entry {
	return &entry{Dir: dir, ModTime: time.Now().UnixNano()}
}

func (e *entry) touch() {
	e.ModTime = time.Now().UnixNano()
}

func encodeEntry(e *entry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode entry: %w", err)
	}
	return data, nil
}

func decodeEntry(data []byte) (*entry, error) {
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	return &e, nil
}
