// File: api/pool.go
// Author: momentics <momentics@gmail.com>
//
// Defines the receive-buffer pooling contract.

package api

// BytePool provides reusable fixed-size []byte buffers for receive loops.
type BytePool interface {
	// GetBuffer returns a buffer of the pool's size.
	GetBuffer() []byte

	// PutBuffer returns a buffer to the pool.
	PutBuffer(buf []byte)

	// Size reports the length of buffers handed out.
	Size() int
}
