package handlers

import "context"

// Broker performs filesystem operations on behalf of remote clients.
//
// Every method receives the ResponseChannel bound to the request and must
// complete it exactly once, either with a success result or with an error
// code and message. Methods may complete the channel before returning or
// hand it to another goroutine; dispatch units never wait on either.
type Broker interface {
	Open(ctx context.Context, rc *ResponseChannel, name string, flags, bufferSize uint32)
	Create(ctx context.Context, rc *ResponseChannel, name string, flags, bufferSize uint32, replication uint16, blockSize uint64)
	Close(ctx context.Context, rc *ResponseChannel, fd uint32)
	Read(ctx context.Context, rc *ResponseChannel, fd, amount uint32)
	Append(ctx context.Context, rc *ResponseChannel, fd uint32, data []byte, flush bool)
	Seek(ctx context.Context, rc *ResponseChannel, fd uint32, offset uint64)
	Remove(ctx context.Context, rc *ResponseChannel, name string)
	Length(ctx context.Context, rc *ResponseChannel, name string, accurate bool)
	Pread(ctx context.Context, rc *ResponseChannel, fd uint32, offset uint64, amount uint32, verify bool)
	Mkdirs(ctx context.Context, rc *ResponseChannel, name string)
	Rmdir(ctx context.Context, rc *ResponseChannel, name string)
	Readdir(ctx context.Context, rc *ResponseChannel, name string)
	Flush(ctx context.Context, rc *ResponseChannel, fd uint32)
	Status(ctx context.Context, rc *ResponseChannel)
	Shutdown(ctx context.Context, rc *ResponseChannel, flags uint16)
	Exists(ctx context.Context, rc *ResponseChannel, name string)
	Rename(ctx context.Context, rc *ResponseChannel, src, dst string)
}
