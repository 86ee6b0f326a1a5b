// Package pool caches copy buffers between file copies.
//
// Buffers are bucketed by powers of two so a small file never pins a large
// buffer and a large file does not copy through a tiny one. Items in a
// sync.Pool are dropped on garbage collection, which is fine for buffers.
package pool

import (
	"math/bits"
	"sync"

	"gitlab.com/tozd/go/errors"
)

// CopyBufferPool hands out byte slices sized for copying a file of a given length.
type CopyBufferPool struct {
	minExp int
	maxExp int
	pools  []sync.Pool
}

// NewCopyBufferPool creates a pool whose buffers range from minSize to maxSize.
// Both sizes must be powers of two and minSize must be smaller than maxSize.
func NewCopyBufferPool(minSize, maxSize int64) (*CopyBufferPool, error) {
	if !isPowerOfTwo(minSize) || !isPowerOfTwo(maxSize) {
		return nil, errors.Errorf("buffer sizes must be powers of two (got %d, %d)", minSize, maxSize)
	}
	if maxSize <= minSize {
		return nil, errors.Errorf("maxSize %d must be greater than minSize %d", maxSize, minSize)
	}
	p := &CopyBufferPool{
		minExp: bits.TrailingZeros64(uint64(minSize)),
		maxExp: bits.TrailingZeros64(uint64(maxSize)),
	}
	p.pools = make([]sync.Pool, p.maxExp+1)
	for i := p.minExp; i <= p.maxExp; i++ {
		size := 1 << i
		p.pools[i].New = func() any {
			b := make([]byte, size)
			return &b
		}
	}
	return p, nil
}

// Get returns a buffer suited to copying fileSize bytes. Files larger than the
// largest bucket are copied through the largest bucket in chunks.
func (p *CopyBufferPool) Get(fileSize int64) *[]byte {
	idx := p.minExp
	if fileSize > 1 {
		idx = bits.Len64(uint64(fileSize - 1))
	}
	idx = max(p.minExp, min(idx, p.maxExp))
	return p.pools[idx].Get().(*[]byte)
}

// Put returns a buffer obtained from Get. Foreign buffers are dropped.
func (p *CopyBufferPool) Put(buf *[]byte) {
	if buf == nil {
		return
	}
	c := int64(cap(*buf))
	if !isPowerOfTwo(c) {
		return
	}
	idx := bits.TrailingZeros64(uint64(c))
	if idx < p.minExp || idx > p.maxExp {
		return
	}
	*buf = (*buf)[:c]
	p.pools[idx].Put(buf)
}

func isPowerOfTwo(n int64) bool {
	return n > 0 && n&(n-1) == 0
}
