// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

import (
	"sync"

	"github.com/momentics/evsock/api"
)

// DefaultBufferSize is the receive buffer length used when none is configured.
const DefaultBufferSize = 4096

// BytePool hands out buffers of one fixed size.
type BytePool struct {
	size int
	p    *SyncPool[*[]byte]
}

var _ api.BytePool = (*BytePool)(nil)

// NewBytePool creates a pool of size-byte buffers. Non-positive sizes fall
// back to DefaultBufferSize.
func NewBytePool(size int) *BytePool {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &BytePool{
		size: size,
		p: NewSyncPool(func() *[]byte {
			b := make([]byte, size)
			return &b
		}),
	}
}

// GetBuffer returns a buffer from the pool.
func (b *BytePool) GetBuffer() []byte {
	return (*b.p.Get())[:b.size]
}

// PutBuffer returns a buffer to the pool. Buffers of a foreign size are dropped.
func (b *BytePool) PutBuffer(buf []byte) {
	if cap(buf) < b.size {
		return
	}
	buf = buf[:b.size]
	b.p.Put(&buf)
}

// Size reports the buffer length.
func (b *BytePool) Size() int {
	return b.size
}

var (
	sharedMu sync.Mutex
	shared   = map[int]*BytePool{}
)

// Shared returns a process-wide pool for size, creating it on first use.
func Shared(size int) *BytePool {
	if size <= 0 {
		size = DefaultBufferSize
	}
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if bp, ok := shared[size]; ok {
		return bp
	}
	bp := NewBytePool(size)
	shared[size] = bp
	return bp
}
