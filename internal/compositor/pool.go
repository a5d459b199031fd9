package compositor

import (
	"context"
	"errors"
	"image"
	"sync"

	"cutroom/internal/memory"
)

// ErrPoolReleased is returned by Get after Release.
var ErrPoolReleased = errors.New("frame buffer pool released")

// BufferPool is a bounded pool of frame buffers. At most Capacity buffers
// exist at any time; Get blocks until one is returned when the pool is
// exhausted. Allocations and frees are reported to the tracker.
type BufferPool struct {
	width, height int
	tracker       *memory.Tracker
	frameBytes    uint64

	mu       sync.Mutex
	capacity int
	live     int
	idle     []*image.RGBA
	released bool
	// wake is closed and replaced whenever a buffer becomes available or
	// the pool is released.
	wake chan struct{}
}

// NewBufferPool returns a pool of width×height RGBA buffers. tracker may be nil.
func NewBufferPool(width, height, capacity int, tracker *memory.Tracker) *BufferPool {
	return &BufferPool{
		width:      width,
		height:     height,
		tracker:    tracker,
		frameBytes: memory.FrameBytes(width, height),
		capacity:   max(1, capacity),
		wake:       make(chan struct{}),
	}
}

// Get returns a buffer, blocking while the pool is at capacity.
func (p *BufferPool) Get(ctx context.Context) (*image.RGBA, error) {
	for {
		p.mu.Lock()
		if p.released {
			p.mu.Unlock()
			return nil, ErrPoolReleased
		}
		if n := len(p.idle); n > 0 {
			buf := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.mu.Unlock()
			return buf, nil
		}
		if p.live < p.capacity {
			p.live++
			p.mu.Unlock()
			if p.tracker != nil {
				p.tracker.Reserve(p.frameBytes)
			}
			return image.NewRGBA(image.Rect(0, 0, p.width, p.height)), nil
		}
		wake := p.wake
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
	}
}

// Put returns a buffer to the pool. Buffers above capacity are freed.
func (p *BufferPool) Put(buf *image.RGBA) {
	if buf == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released || p.live > p.capacity {
		p.free(1)
	} else {
		p.idle = append(p.idle, buf)
	}
	p.signal()
}

// Shrink lowers the capacity to n and frees idle buffers above it. Buffers
// in use above the new capacity are freed when they are returned.
func (p *BufferPool) Shrink(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n = max(1, n)
	if n >= p.capacity {
		return
	}
	p.capacity = n
	for p.live > p.capacity && len(p.idle) > 0 {
		p.idle = p.idle[:len(p.idle)-1]
		p.free(1)
	}
}

// Release frees every idle buffer and makes later Gets fail. Buffers still
// in use are freed as they are returned.
func (p *BufferPool) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return
	}
	p.released = true
	p.free(len(p.idle))
	p.idle = nil
	p.signal()
}

// Capacity returns the current capacity.
func (p *BufferPool) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

// Live returns the number of allocated buffers, idle or in use.
func (p *BufferPool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

func (p *BufferPool) free(n int) {
	if n <= 0 {
		return
	}
	p.live -= n
	if p.tracker != nil {
		p.tracker.Release(uint64(n) * p.frameBytes)
	}
}

func (p *BufferPool) signal() {
	close(p.wake)
	p.wake = make(chan struct{})
}
