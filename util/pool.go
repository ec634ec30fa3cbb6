package util

import "sync"

// ReadChunkSize is the receive buffer size for one read on a device
// link.  Each read of up to this many bytes surfaces as one message.
const ReadChunkSize = 1024

// chunkPool provides reusable receive buffers so a reconnecting session
// does not allocate a fresh buffer per connection.
var chunkPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, ReadChunkSize)
		return &buf
	},
}

// GetChunk retrieves a buffer of at least size bytes.  Buffers of the
// default size come from the pool; callers must return them with
// [PutChunk].
func GetChunk(size int) *[]byte {
	if size <= 0 || size == ReadChunkSize {
		return chunkPool.Get().(*[]byte)
	}
	buf := make([]byte, size)
	return &buf
}

// PutChunk returns a buffer to the pool.  Odd-sized buffers are dropped.
func PutChunk(buf *[]byte) {
	if buf == nil || len(*buf) != ReadChunkSize {
		return
	}
	chunkPool.Put(buf)
}
