// File: pool/objpool.go
// Author: momentics <momentics@gmail.com>

package pool

import "sync"

// ObjectPool hands out reusable values of one type.
type ObjectPool[T any] interface {
	Get() T
	Put(T)
}

// SyncPool is a typed sync.Pool.
type SyncPool[T any] struct {
	p sync.Pool
}

var _ ObjectPool[int] = (*SyncPool[int])(nil)

// NewSyncPool creates a pool that builds missing values with create.
func NewSyncPool[T any](create func() T) *SyncPool[T] {
	sp := &SyncPool[T]{}
	sp.p.New = func() any { return create() }
	return sp
}

func (sp *SyncPool[T]) Get() T {
	return sp.p.Get().(T)
}

func (sp *SyncPool[T]) Put(v T) {
	sp.p.Put(v)
}
