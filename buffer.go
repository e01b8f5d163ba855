package objio

import (
	"encoding/binary"
	"io"
	"math/bits"
	"sync"
	"sync/atomic"
)

// Allocator hands out fixed-size byte regions for buffers. Free receives
// exactly the slice Allocate returned.
type Allocator interface {
	Allocate(n int) []byte
	Free(b []byte)
}

const (
	minPoolClass = 6  // 64 bytes
	maxPoolClass = 20 // 1 MiB
)

// poolAllocator keeps one sync.Pool per power-of-two size class; larger
// requests are served directly.
type poolAllocator struct {
	classes [maxPoolClass + 1]sync.Pool
}

// NewPoolAllocator returns the default Allocator.
func NewPoolAllocator() Allocator {
	a := &poolAllocator{}
	for i := minPoolClass; i <= maxPoolClass; i++ {
		size := 1 << i
		a.classes[i].New = func() any {
			b := make([]byte, size)
			return &b
		}
	}
	return a
}

func sizeClass(n int) int {
	if n <= 1<<minPoolClass {
		return minPoolClass
	}
	return bits.Len(uint(n - 1))
}

func (a *poolAllocator) Allocate(n int) []byte {
	c := sizeClass(n)
	if c > maxPoolClass {
		return make([]byte, n)
	}
	b := *(a.classes[c].Get().(*[]byte))
	return b[:n]
}

func (a *poolAllocator) Free(b []byte) {
	c := sizeClass(cap(b))
	if c > maxPoolClass || cap(b) != 1<<c {
		return
	}
	b = b[:cap(b)]
	clear(b)
	a.classes[c].Put(&b)
}

// Arena tracks buffers handed out from an Allocator.
type Arena struct {
	alloc  Allocator
	strict bool
	live   atomic.Int64
}

// NewArena returns an arena on top of alloc (nil means NewPoolAllocator).
// A strict arena panics on double release.
func NewArena(alloc Allocator, strict bool) *Arena {
	if alloc == nil {
		alloc = NewPoolAllocator()
	}
	return &Arena{alloc: alloc, strict: strict}
}

// Buffer allocates a buffer of exactly n bytes of capacity.
func (a *Arena) Buffer(n int) *Buffer {
	if n < 0 {
		panic("objio: negative buffer size")
	}
	a.live.Add(1)
	return &Buffer{arena: a, data: a.alloc.Allocate(n)}
}

// Live returns the number of allocated, not yet released buffers.
func (a *Arena) Live() int64 {
	return a.live.Load()
}

// Buffer is a fixed-capacity byte region with independent read and write
// cursors. Bytes between the read and write cursors are readable; bytes past
// the write cursor are writable. A Buffer never grows.
//
// Buffers are owned by exactly one entry or descriptor and must be released
// exactly once.
type Buffer struct {
	arena    *Arena
	data     []byte
	r, w     int
	released bool
}

var (
	_ io.Reader     = (*Buffer)(nil)
	_ io.Writer     = (*Buffer)(nil)
	_ io.ByteReader = (*Buffer)(nil)
	_ io.ByteWriter = (*Buffer)(nil)
)

func (b *Buffer) Cap() int       { return len(b.data) }
func (b *Buffer) Readable() int  { return b.w - b.r }
func (b *Buffer) Writable() int  { return len(b.data) - b.w }
func (b *Buffer) Released() bool { return b.released }

// Bytes returns the readable region without consuming it. The slice aliases
// the buffer and is invalid after Release.
func (b *Buffer) Bytes() []byte {
	return b.data[b.r:b.w]
}

// Reset rewinds both cursors.
func (b *Buffer) Reset() {
	b.r, b.w = 0, 0
}

// SetReadIndex moves the read cursor; i must not exceed the write cursor.
func (b *Buffer) SetReadIndex(i int) {
	if i < 0 || i > b.w {
		panic("objio: read index out of range")
	}
	b.r = i
}

func (b *Buffer) Write(p []byte) (int, error) {
	if b.released {
		return 0, ErrReleased
	}
	if len(p) > b.Writable() {
		return 0, io.ErrShortBuffer
	}
	b.w += copy(b.data[b.w:], p)
	return len(p), nil
}

func (b *Buffer) WriteByte(c byte) error {
	if b.released {
		return ErrReleased
	}
	if b.Writable() < 1 {
		return io.ErrShortBuffer
	}
	b.data[b.w] = c
	b.w++
	return nil
}

// WriteUint64 appends v in native byte order.
func (b *Buffer) WriteUint64(v uint64) error {
	if b.released {
		return ErrReleased
	}
	if b.Writable() < 8 {
		return io.ErrShortBuffer
	}
	binary.NativeEndian.PutUint64(b.data[b.w:], v)
	b.w += 8
	return nil
}

func (b *Buffer) Read(p []byte) (int, error) {
	if b.Readable() == 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, b.data[b.r:b.w])
	b.r += n
	return n, nil
}

func (b *Buffer) ReadByte() (byte, error) {
	if b.Readable() == 0 {
		return 0, io.EOF
	}
	c := b.data[b.r]
	b.r++
	return c, nil
}

// ReadUint64 consumes 8 bytes in native byte order.
func (b *Buffer) ReadUint64() (uint64, error) {
	if b.Readable() < 8 {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.NativeEndian.Uint64(b.data[b.r:])
	b.r += 8
	return v, nil
}

// Release returns the region to the arena. Releasing twice panics on a
// strict arena and is ignored otherwise.
func (b *Buffer) Release() {
	if b.released {
		if b.arena.strict {
			panic("objio: buffer released twice")
		}
		return
	}
	b.released = true
	b.arena.alloc.Free(b.data)
	b.arena.live.Add(-1)
	b.data, b.r, b.w = nil, 0, 0
}

func (b *Buffer) release() {
	if b != nil && !b.released {
		b.Release()
	}
}

// spare returns the writable region.
func (b *Buffer) spare() []byte {
	return b.data[b.w:]
}

// advance marks n bytes of the writable region as written.
func (b *Buffer) advance(n int) {
	b.w += n
}

// consume marks every readable byte as read.
func (b *Buffer) consume() {
	b.r = b.w
}
