package objio

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_Cursors(t *testing.T) {
	a := NewArena(nil, true)
	b := a.Buffer(16)
	defer b.Release()
	assert.Equal(t, 16, b.Cap())
	assert.Equal(t, 16, b.Writable())
	assert.Zero(t, b.Readable())

	n, err := b.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.NoError(t, b.WriteByte('!'))
	require.NoError(t, b.WriteUint64(0x0102030405060708))
	assert.Equal(t, 14, b.Readable())
	assert.Equal(t, 2, b.Writable())

	p := make([]byte, 5)
	n, err = b.Read(p)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(p[:n]))
	c, err := b.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('!'), c)
	v, err := b.ReadUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), v)

	_, err = b.ReadByte()
	assert.Equal(t, io.EOF, err)
	_, err = b.ReadUint64()
	assert.Equal(t, io.ErrUnexpectedEOF, err)

	b.SetReadIndex(0)
	assert.Equal(t, "hello!", string(b.Bytes()[:6]))
	assert.Panics(t, func() { b.SetReadIndex(15) })

	_, err = b.Write([]byte("xyz"))
	assert.Equal(t, io.ErrShortBuffer, err)
	assert.Equal(t, 14, b.Readable(), "failed writes leave the buffer alone")
	assert.Equal(t, io.ErrShortBuffer, b.WriteUint64(1))

	b.Reset()
	assert.Zero(t, b.Readable())
	assert.Equal(t, 16, b.Writable())
}

func TestBuffer_Release(t *testing.T) {
	a := NewArena(nil, true)
	b1, b2 := a.Buffer(8), a.Buffer(100)
	assert.Equal(t, int64(2), a.Live())

	b1.Release()
	assert.True(t, b1.Released())
	assert.Equal(t, int64(1), a.Live())
	assert.Panics(t, b1.Release)
	assert.Equal(t, ErrReleased, b1.WriteByte(1))
	_, err := b1.Write([]byte{1})
	assert.Equal(t, ErrReleased, err)
	assert.Zero(t, b1.Cap())

	b2.Release()
	assert.Zero(t, a.Live())

	lax := NewArena(nil, false)
	b := lax.Buffer(4)
	b.Release()
	assert.NotPanics(t, b.Release)
	assert.Zero(t, lax.Live())
}

func TestPoolAllocator(t *testing.T) {
	alloc := NewPoolAllocator()
	for _, n := range []int{0, 1, 64, 65, 1000, 1 << 20, 1<<20 + 1} {
		b := alloc.Allocate(n)
		assert.Len(t, b, n)
		alloc.Free(b)
	}

	b := alloc.Allocate(100)
	copy(b, "dirty")
	alloc.Free(b)
	b = alloc.Allocate(100)
	assert.Equal(t, make([]byte, 100), b, "freed regions are cleared")
	alloc.Free(b)
}

type countingAllocator struct {
	allocated, freed int
}

func (a *countingAllocator) Allocate(n int) []byte {
	a.allocated++
	return make([]byte, n)
}

func (a *countingAllocator) Free(b []byte) {
	a.freed++
}

func TestArena_CustomAllocator(t *testing.T) {
	alloc := &countingAllocator{}
	a := NewArena(alloc, true)
	a.Buffer(3).Release()
	a.Buffer(5).Release()
	assert.Equal(t, 2, alloc.allocated)
	assert.Equal(t, 2, alloc.freed)
}
