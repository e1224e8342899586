package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fsbroker/pkg/store"
	"github.com/marmos91/fsbroker/pkg/store/memory"
	storetesting "github.com/marmos91/fsbroker/pkg/store/testing"
)

type recordingMetrics struct {
	mu     sync.Mutex
	ops    map[string]int
	errors map[string]int
	bytes  map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		ops:    make(map[string]int),
		errors: make(map[string]int),
		bytes:  make(map[string]int),
	}
}

func (r *recordingMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[operation]++
	if err != nil {
		r.errors[operation]++
	}
}

func (r *recordingMetrics) RecordBytes(operation string, bytes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bytes[operation] += bytes
}

func TestInstrumentedStoreSuite(t *testing.T) {
	suite := &storetesting.StoreTestSuite{
		NewStore: func(t *testing.T) store.Store {
			return store.Instrument(memory.New(), newRecordingMetrics())
		},
	}
	suite.Run(t)
}

func TestInstrumentRecordsCalls(t *testing.T) {
	ctx := context.Background()
	m := newRecordingMetrics()
	s := store.Instrument(memory.New(), m)

	require.NoError(t, s.Mkdirs(ctx, "/a"))
	require.NoError(t, s.Create(ctx, "/a/f", false))
	_, err := s.Append(ctx, "/a/f", []byte("hello"))
	require.NoError(t, err)
	data, err := s.ReadAt(ctx, "/a/f", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, "ello", string(data))

	_, err = s.Stat(ctx, "/missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	assert.Equal(t, 1, m.ops["mkdirs"])
	assert.Equal(t, 1, m.ops["create"])
	assert.Equal(t, 1, m.ops["append"])
	assert.Equal(t, 1, m.ops["read"])
	assert.Equal(t, 1, m.errors["stat"])
	assert.Equal(t, 5, m.bytes["append"])
	assert.Equal(t, 4, m.bytes["read"])
}

func TestInstrumentNilMetrics(t *testing.T) {
	s := memory.New()
	assert.Same(t, s, store.Instrument(s, nil))
}
