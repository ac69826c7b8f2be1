//go:build unix

package shm

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"
	"unsafe"
)

// regionMagic marks a fully constructed channel header ("fanctl", layout v1).
const regionMagic uint64 = 0x66616e63746c0001

// Header state word.
const (
	stateEmpty uint32 = iota
	stateConstructing
	stateReady
)

// payloadOffset is where the payload starts; the header fits well below it.
const payloadOffset = 64

// attachPoll is the sleep between checks while waiting for a peer to finish construction.
const attachPoll = time.Millisecond

// header is stored at the beginning of every channel region.
type header struct {
	magic       uint64
	payloadSize uint64
	state       uint32
	capacity    uint32

	mutex  semaphore // 1: payload ownership
	empty  semaphore // capacity: publishes that may still be issued
	filled semaphore // 0: publishes not yet consumed
}

// Options configures one channel endpoint.
type Options struct {
	Dir      string // directory holding the object; DefaultDir() when empty
	Name     string // object name, identical in both processes
	Capacity int    // outstanding publishes allowed before Publish blocks
}

// Stats is a point-in-time view of the counting semaphores.
type Stats struct {
	Empty  uint32
	Filled uint32
}

// Channel is a whole-snapshot mailbox for one T shared between processes.
//
// Every Publish overwrites the entire payload; every Consume copies the entire
// payload out. The counting semaphores bound how many publishes may be
// outstanding and let the consumer sleep until one exists. They do not track
// which part of T changed.
//
// T must be a plain fixed-size value (no pointers, slices, strings, maps).
type Channel[T any] struct {
	region      *Region
	hdr         *header
	payload     *T
	capacity    uint32
	constructed bool
	closed      atomic.Bool
}

// RegionSize returns the number of bytes a Channel[T] maps.
func RegionSize[T any]() int {
	var zero T
	return payloadOffset + int(unsafe.Sizeof(zero))
}

// Open creates or attaches to the channel named by opts.
//
// An opener with no live peer constructs the header and stores initial as the
// payload, discarding anything a previous run left in the region. Later
// openers wait for construction to finish (bounded only by ctx) and then
// validate magic, payload size and capacity.
func Open[T any](ctx context.Context, opts Options, initial T) (*Channel[T], error) {
	if err := checkDirect(reflect.TypeOf((*T)(nil)).Elem()); err != nil {
		return nil, err
	}
	if opts.Capacity <= 0 || uint64(opts.Capacity) > uint64(^uint32(0)) {
		return nil, fmt.Errorf("%w: capacity %d", ErrInvalidSize, opts.Capacity)
	}

	r, err := openRegion(ctx, opts.Dir, opts.Name, RegionSize[T]())
	if err != nil {
		return nil, err
	}

	base := unsafe.Pointer(&r.data[0])
	c := &Channel[T]{
		region:   r,
		hdr:      (*header)(base),
		payload:  (*T)(unsafe.Add(base, payloadOffset)),
		capacity: uint32(opts.Capacity),
	}

	if r.Exclusive() {
		c.construct(c.capacity, initial)
		c.constructed = true
		if err := r.share(ctx); err != nil {
			_ = r.Close()
			return nil, err
		}
	}

	if err := c.attach(ctx, c.capacity); err != nil {
		_ = r.Close()
		return nil, err
	}

	return c, nil
}

// construct initialises the header and payload. The caller holds the region
// exclusively, so no peer observes the intermediate state.
func (c *Channel[T]) construct(capacity uint32, initial T) {
	h := c.hdr
	atomic.StoreUint32(&h.state, stateConstructing)

	h.mutex.init(1)
	h.empty.init(capacity)
	h.filled.init(0)
	*c.payload = initial

	atomic.StoreUint64(&h.payloadSize, uint64(unsafe.Sizeof(initial)))
	atomic.StoreUint32(&h.capacity, capacity)
	atomic.StoreUint64(&h.magic, regionMagic)

	// Publish the header: everything above happens-before a reader seeing stateReady.
	atomic.StoreUint32(&h.state, stateReady)
}

// attach waits for stateReady and validates the layout.
func (c *Channel[T]) attach(ctx context.Context, capacity uint32) error {
	h := c.hdr

	for atomic.LoadUint32(&h.state) != stateReady {
		select {
		case <-ctx.Done():
			return fmt.Errorf("shm: attach %s: %w", c.region.name, ctx.Err())
		case <-time.After(attachPoll):
		}
	}

	var zero T
	if m := atomic.LoadUint64(&h.magic); m != regionMagic {
		return fmt.Errorf("%w: %s magic %#x", ErrLayoutMismatch, c.region.name, m)
	}
	if sz := atomic.LoadUint64(&h.payloadSize); sz != uint64(unsafe.Sizeof(zero)) {
		return fmt.Errorf("%w: %s payload %d bytes, want %d", ErrLayoutMismatch, c.region.name, sz, unsafe.Sizeof(zero))
	}
	if got := atomic.LoadUint32(&h.capacity); got != capacity {
		return fmt.Errorf("%w: %s capacity %d, want %d", ErrLayoutMismatch, c.region.name, got, capacity)
	}
	return nil
}

// Publish overwrites the payload with v and signals one filled slot.
// It waits for a free slot first, so at most Capacity publishes are outstanding.
func (c *Channel[T]) Publish(ctx context.Context, v T) error {
	if c.closed.Load() {
		return ErrClosed
	}

	h := c.hdr
	if err := h.empty.wait(ctx); err != nil {
		return err
	}
	if err := h.mutex.wait(ctx); err != nil {
		h.empty.post()
		return err
	}

	*c.payload = v

	h.mutex.post()
	h.filled.post()
	return nil
}

// Consume waits for a publish and returns a copy of the whole payload.
func (c *Channel[T]) Consume(ctx context.Context) (T, error) {
	var v T
	if c.closed.Load() {
		return v, ErrClosed
	}

	h := c.hdr
	if err := h.filled.wait(ctx); err != nil {
		return v, err
	}
	if err := h.mutex.wait(ctx); err != nil {
		h.filled.post()
		return v, err
	}

	v = *c.payload

	h.mutex.post()
	h.empty.post()
	return v, nil
}

// Stats returns the current counting semaphore values.
func (c *Channel[T]) Stats() Stats {
	if c.closed.Load() {
		return Stats{}
	}
	return Stats{
		Empty:  c.hdr.empty.value(),
		Filled: c.hdr.filled.value(),
	}
}

// Name returns the shared object name.
func (c *Channel[T]) Name() string { return c.region.name }

// Capacity returns the configured capacity.
func (c *Channel[T]) Capacity() int { return int(c.capacity) }

// Created reports whether this handle constructed the shared header.
func (c *Channel[T]) Created() bool { return c.constructed }

// Close unmaps the region. It must not race with Publish or Consume:
// stop the loops using the channel first.
func (c *Channel[T]) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.region.Close()
}

// Remove unlinks the shared object name. Mappings stay valid until Close.
func (c *Channel[T]) Remove() error {
	return c.region.Remove()
}

// checkDirect rejects types whose values hold references into process memory.
func checkDirect(t reflect.Type) error {
	if t == nil {
		return fmt.Errorf("%w: nil type", ErrIndirectPayload)
	}

	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return nil
	case reflect.Array:
		return checkDirect(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if err := checkDirect(t.Field(i).Type); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrIndirectPayload, t)
	}
}
