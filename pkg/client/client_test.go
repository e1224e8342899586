package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
	"github.com/marmos91/fsbroker/pkg/adapter/fsbroker"
	"github.com/marmos91/fsbroker/pkg/broker"
	"github.com/marmos91/fsbroker/pkg/store/memory"
)

// startBroker runs an in-process broker on a free port and returns a
// connected client.
func startBroker(t *testing.T) (*Client, *broker.Broker) {
	t.Helper()

	b := broker.New(memory.New(), broker.Config{})
	a, err := fsbroker.New(fsbroker.Config{
		Host:            "127.0.0.1",
		ShutdownTimeout: 2 * time.Second,
	}, b, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = a.Serve(ctx)
		close(stopped)
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	addr, err := a.Addr(waitCtx)
	require.NoError(t, err)

	c, err := Dial(waitCtx, addr.String(), Options{})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = c.Close()
		cancel()
		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			t.Error("broker did not stop")
		}
	})
	return c, b
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestDirectoryOperations(t *testing.T) {
	c, _ := startBroker(t)
	ctx := testContext(t)

	require.NoError(t, c.Mkdirs(ctx, "/data/logs"))
	require.NoError(t, c.Mkdirs(ctx, "/data/.hidden"))

	ok, err := c.Exists(ctx, "/data/logs")
	require.NoError(t, err)
	assert.True(t, ok)

	names, err := c.Readdir(ctx, "/data")
	require.NoError(t, err)
	assert.Equal(t, []string{"logs"}, names)

	require.NoError(t, c.Rename(ctx, "/data/logs", "/data/archive"))
	ok, err = c.Exists(ctx, "/data/logs")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Rmdir(ctx, "/data"))
	ok, err = c.Exists(ctx, "/data")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileLifecycle(t *testing.T) {
	c, b := startBroker(t)
	ctx := testContext(t)

	fd, err := c.Create(ctx, "/f", types.OpenFlagOverwrite)
	require.NoError(t, err)

	off, err := c.Append(ctx, fd, []byte("hello "), false)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), off)

	off, err = c.Append(ctx, fd, []byte("world"), true)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), off)

	require.NoError(t, c.Flush(ctx, fd))
	require.NoError(t, c.CloseFile(ctx, fd))

	n, err := c.Length(ctx, "/f")
	require.NoError(t, err)
	assert.Equal(t, uint64(11), n)

	rfd, err := c.Open(ctx, "/f", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, b.OpenFiles())

	start, data, err := c.Read(ctx, rfd, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), start)
	assert.Equal(t, "hello", string(data))

	start, data, err = c.Read(ctx, rfd, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), start)
	assert.Equal(t, " world", string(data))

	_, data, err = c.Read(ctx, rfd, 100)
	require.NoError(t, err)
	assert.Empty(t, data)

	require.NoError(t, c.Seek(ctx, rfd, 6))
	_, data, err = c.Read(ctx, rfd, 5)
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))

	data, err = c.Pread(ctx, rfd, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, "llo", string(data))

	require.NoError(t, c.CloseFile(ctx, rfd))
	require.NoError(t, c.Remove(ctx, "/f"))

	_, err = c.Length(ctx, "/f")
	assert.True(t, IsNotFound(err))
}

func TestBrokerErrors(t *testing.T) {
	c, _ := startBroker(t)
	ctx := testContext(t)

	_, err := c.Open(ctx, "/missing", 0)
	var brokerErr *Error
	require.ErrorAs(t, err, &brokerErr)
	assert.Equal(t, types.CmdOpen, brokerErr.Op)
	assert.Equal(t, types.FileNotFound, brokerErr.Code)
	assert.NotEmpty(t, brokerErr.Message)
	assert.Contains(t, err.Error(), "FSBROKER_FILE_NOT_FOUND")

	err = c.CloseFile(ctx, 12345)
	assert.Equal(t, types.BadFileHandle, CodeOf(err))

	assert.Equal(t, types.OK, CodeOf(nil))
	assert.Equal(t, types.OK, CodeOf(errors.New("plain")))
}

func TestStatusAndShutdown(t *testing.T) {
	c, b := startBroker(t)
	ctx := testContext(t)

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.OK, st.Code)

	hooked := make(chan bool, 1)
	b.SetShutdownHook(func(immediate bool) { hooked <- immediate })

	require.NoError(t, c.Shutdown(ctx, true))
	select {
	case immediate := <-hooked:
		assert.True(t, immediate)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown hook not called")
	}

	st, err = c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.ServerShutdown, st.Code)
}

func TestConcurrentCalls(t *testing.T) {
	c, _ := startBroker(t)
	ctx := testContext(t)

	require.NoError(t, c.Mkdirs(ctx, "/c"))

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := c.Exists(ctx, "/c")
			if err == nil && !ok {
				err = errors.New("directory vanished")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestMkdirsAsync(t *testing.T) {
	c, _ := startBroker(t)
	ctx := testContext(t)

	require.NoError(t, c.MkdirsAsync("/async"))

	assert.Eventually(t, func() bool {
		ok, err := c.Exists(ctx, "/async")
		return err == nil && ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCallAfterClose(t *testing.T) {
	c, _ := startBroker(t)
	require.NoError(t, c.Close())

	err := c.Mkdirs(testContext(t), "/x")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCancelledCall(t *testing.T) {
	c, _ := startBroker(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Mkdirs(ctx, "/x")
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}

	// The connection stays usable after an abandoned call.
	ok, err := c.Exists(testContext(t), "/")
	require.NoError(t, err)
	assert.True(t, ok)
}
