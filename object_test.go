package objio

import (
	"fmt"
	"sync"
	"testing"

	"github.com/andreyvit/objio/engine"
	"github.com/andreyvit/objio/engine/enginetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, kv *engine.KV) (*Client, *Object) {
	t.Helper()
	c, err := New(Options{
		Engine:        kv,
		Logger:        enginetest.Logger(t),
		Verbose:       true,
		StrictBuffers: true,
	})
	require.NoError(t, err)
	o := c.Object(must(RandomObjectID().Encode(ClassSingle, FeatureArray)))
	require.NoError(t, o.Open())
	t.Cleanup(func() {
		assert.NoError(t, o.Close())
		assert.Zero(t, c.Arena().Live(), "leaked buffers")
	})
	return c, o
}

func filled(c *Client, data []byte) *Buffer {
	buf := c.Buffer(len(data))
	must(buf.Write(data))
	return buf
}

func put(t *testing.T, c *Client, o *Object, dkey, akey string, kind Kind, recSize uint32, offset uint64, data []byte) {
	t.Helper()
	e, err := NewUpdateEntry(akey, kind, recSize, offset, filled(c, data))
	require.NoError(t, err)
	d, err := o.NewUpdateDesc(dkey, e)
	require.NoError(t, err)
	defer d.Release()
	require.NoError(t, o.Update(d))
}

func get(t *testing.T, o *Object, dkey, akey string, kind Kind, recSize uint32, offset uint64, capacity uint32) (*DataDesc, error) {
	t.Helper()
	e, err := NewFetchEntry(akey, kind, recSize, offset, capacity)
	require.NoError(t, err)
	d, err := o.NewFetchDesc(dkey, e)
	require.NoError(t, err)
	return d, o.Fetch(d)
}

func TestObject_UpdateFetch(t *testing.T) {
	enginetest.Engines(t, func(t *testing.T, kv *engine.KV) {
		c, o := setup(t, kv)
		data := enginetest.Data(30)
		put(t, c, o, "dkey1", "akey1", KindArray, 10, 0, data)

		d, err := get(t, o, "dkey1", "akey1", KindArray, 10, 10, 80)
		defer d.Release()
		require.NoError(t, err)
		e := d.Entry(0)
		assert.Equal(t, uint32(10), e.ActualRecSize())
		assert.Equal(t, uint32(20), e.ActualSize())
		assert.Equal(t, 20, e.Data().Readable())
		enginetest.BytesEq(t, e.Data().Bytes(), data[10:30])
	})
}

func TestObject_UpdateManyAkeys(t *testing.T) {
	c, o := setup(t, enginetest.Memory(t))
	var entries []*Entry
	for i := range 4 {
		e, err := NewUpdateEntry(fmt.Sprintf("akey%d", i), KindArray, uint32(i+1), 0, filled(c, enginetest.Data(12)))
		require.NoError(t, err)
		entries = append(entries, e)
	}
	d, err := o.NewUpdateDesc("dkey1", entries...)
	require.NoError(t, err)
	defer d.Release()
	require.NoError(t, o.Update(d))
	for _, e := range entries {
		assert.Zero(t, e.Data().Readable(), "consumed")
	}

	for i := range 4 {
		size, err := o.RecordSize("dkey1", fmt.Sprintf("akey%d", i))
		require.NoError(t, err)
		assert.Equal(t, uint32(i+1), size)
	}
}

func TestObject_RecordSizePinning(t *testing.T) {
	enginetest.Engines(t, func(t *testing.T, kv *engine.KV) {
		c, o := setup(t, kv)
		data := enginetest.Data(30)
		put(t, c, o, "dkey1", "akey1", KindArray, 10, 0, data)

		e, err := NewUpdateEntry("akey1", KindArray, 20, 0, filled(c, enginetest.Data(40)))
		require.NoError(t, err)
		d, err := o.NewUpdateDesc("dkey1", e)
		require.NoError(t, err)
		defer d.Release()
		err = o.Update(d)
		assert.Equal(t, CodeIllegalArgument, CodeOf(err), "%v", err)
		assert.Equal(t, 40, e.Data().Readable(), "not consumed")

		put(t, c, o, "dkey1", "akey2", KindArray, 20, 0, enginetest.Data(40))
		put(t, c, o, "dkey1", "akey1", KindArray, 10, 30, enginetest.Data(10))

		f, err := get(t, o, "dkey1", "akey1", KindArray, 10, 0, 64)
		defer f.Release()
		require.NoError(t, err)
		assert.Equal(t, uint32(40), f.Entry(0).ActualSize())
		enginetest.BytesEq(t, f.Entry(0).Data().Bytes()[:30], data)
	})
}

func TestObject_RejectedUpdateKeepsData(t *testing.T) {
	c, o := setup(t, enginetest.Memory(t))
	data := enginetest.Data(30)
	put(t, c, o, "dkey1", "akey1", KindArray, 10, 0, data)

	good, err := NewUpdateEntry("akey1", KindArray, 10, 0, filled(c, []byte("0123456789")))
	require.NoError(t, err)
	partial, err := NewUpdateEntry("akey2", KindArray, 10, 0, filled(c, []byte("abc")))
	require.NoError(t, err)
	d, err := o.NewUpdateDesc("dkey1", good, partial)
	require.NoError(t, err)
	defer d.Release()
	require.Equal(t, CodeIllegalArgument, CodeOf(o.Update(d)))

	f, err := get(t, o, "dkey1", "akey1", KindArray, 10, 0, 30)
	defer f.Release()
	require.NoError(t, err)
	enginetest.BytesEq(t, f.Entry(0).Data().Bytes(), data)

	size, err := o.RecordSize("dkey1", "akey2")
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestObject_FetchReconcile(t *testing.T) {
	data := enginetest.Data(30)
	tests := []struct {
		name     string
		akey     string
		kind     Kind
		recSize  uint32
		offset   uint64
		capacity uint32

		code      ErrorCode
		actualRec uint32
		want      []byte
	}{
		{"matching size", "arr", KindArray, 10, 10, 80, 0, 10, data[10:30]},
		{"bigger guess", "arr", KindArray, 20, 0, 25, 0, 10, data[0:20]},
		{"bigger guess at offset", "arr", KindArray, 20, 20, 10, 0, 10, data[10:20]},
		{"smaller guess", "arr", KindArray, 5, 0, 30, 0, 10, data},
		{"smaller guess at offset", "arr", KindArray, 5, 10, 30, 0, 10, data[20:30]},
		{"offset past end", "arr", KindArray, 10, 40, 10, 0, 10, []byte{}},
		{"capacity below one record", "arr", KindArray, 5, 0, 5, CodeRecordTooBig, 10, nil},
		{"single bigger guess", "one", KindSingle, 40, 0, 40, 0, 30, data},
		{"single smaller guess", "one", KindSingle, 20, 0, 20, CodeRecordTooBig, 30, nil},
		{"single short buffer", "one", KindSingle, 30, 0, 10, CodeRecordTooBig, 30, nil},
		{"absent akey", "none", KindArray, 10, 0, 10, 0, 0, []byte{}},
	}
	enginetest.Engines(t, func(t *testing.T, kv *engine.KV) {
		c, o := setup(t, kv)
		put(t, c, o, "dkey1", "arr", KindArray, 10, 0, data)
		put(t, c, o, "dkey1", "one", KindSingle, 30, 0, data)

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				d, err := get(t, o, "dkey1", tt.akey, tt.kind, tt.recSize, tt.offset, tt.capacity)
				defer d.Release()
				e := d.Entry(0)
				if tt.code != 0 {
					require.Error(t, err)
					var ioe *IOError
					require.ErrorAs(t, err, &ioe)
					assert.Equal(t, tt.code, ioe.Code)
					assert.Equal(t, tt.actualRec, ioe.ActualRecSize)
					assert.Equal(t, tt.akey, ioe.Akey)
					assert.Zero(t, e.ActualRecSize())
					assert.Zero(t, e.ActualSize())
					return
				}
				require.NoError(t, err)
				assert.Equal(t, tt.actualRec, e.ActualRecSize())
				assert.Equal(t, uint32(len(tt.want)), e.ActualSize())
				enginetest.BytesEq(t, e.Data().Bytes(), tt.want)
			})
		}
	})
}

func TestObject_FetchMixedEntries(t *testing.T) {
	c, o := setup(t, enginetest.Memory(t))
	data := enginetest.Data(30)
	put(t, c, o, "dkey1", "a10", KindArray, 10, 0, data)
	put(t, c, o, "dkey1", "a3", KindArray, 3, 0, data[:9])

	e1 := must(NewFetchEntry("a10", KindArray, 10, 0, 30))
	e2 := must(NewFetchEntry("a3", KindArray, 4, 4, 8))
	d, err := o.NewFetchDesc("dkey1", e1, e2)
	require.NoError(t, err)
	defer d.Release()
	require.NoError(t, o.Fetch(d))

	enginetest.BytesEq(t, e1.Data().Bytes(), data)
	assert.Equal(t, uint32(3), e2.ActualRecSize())
	// record index 1 in 4-byte records is byte 3 in 3-byte records
	enginetest.BytesEq(t, e2.Data().Bytes(), data[3:9])
}

func TestObject_StaleEntry(t *testing.T) {
	c, o := setup(t, enginetest.Memory(t))
	e, err := NewUpdateEntry("akey1", KindArray, 10, 0, filled(c, enginetest.Data(30)))
	require.NoError(t, err)
	d1, err := o.NewUpdateDesc("dkey1", e)
	require.NoError(t, err)
	defer d1.Release()
	require.NoError(t, o.Update(d1))

	d2, err := o.NewUpdateDesc("dkey1", e)
	require.NoError(t, err)
	defer d2.Release()
	err = o.Update(d2)
	require.Error(t, err)
	assert.Equal(t, CodeOperationFailed, CodeOf(err), "%v", err)
	assert.ErrorContains(t, err, "failed to update object")

	require.NoError(t, e.Rebind("akey1", 30, filled(c, enginetest.Data(10))))
	require.NoError(t, o.Update(d2))
	size, err := o.RecordSize("dkey1", "akey1")
	require.NoError(t, err)
	assert.Equal(t, uint32(10), size)
}

func TestObject_ReusableDesc(t *testing.T) {
	enginetest.Engines(t, func(t *testing.T, kv *engine.KV) {
		_, o := setup(t, kv)
		ud, err := o.NewReusableDesc(ModeUpdate, KindArray, 8, ReusableOptions{})
		require.NoError(t, err)
		defer ud.Release()
		fd, err := o.NewReusableDesc(ModeFetch, KindArray, 8, ReusableOptions{})
		require.NoError(t, err)
		defer fd.Release()
		require.Equal(t, 5, ud.Len())
		require.Equal(t, 5, fd.Len())

		for round := range 4 {
			dkey := fmt.Sprintf("dkey%d", round)
			n := 2 + round
			require.NoError(t, ud.SetDkey(dkey))
			for i := range n {
				e := ud.Entry(i)
				buf := e.ReuseBuffer()
				require.NoError(t, buf.WriteUint64(uint64(round*100+i)))
				require.NoError(t, e.Rebind(fmt.Sprintf("akey%d", i), 0, buf))
			}
			require.NoError(t, o.Update(ud))

			require.NoError(t, fd.SetDkey(dkey))
			for i := range n {
				e := fd.Entry(i)
				e.ReuseBuffer()
				require.NoError(t, e.RebindFetch(fmt.Sprintf("akey%d", i), 0, 8))
			}
			require.NoError(t, o.Fetch(fd))
			for i := range n {
				e := fd.Entry(i)
				assert.Equal(t, uint32(8), e.ActualRecSize())
				assert.Equal(t, uint32(8), e.ActualSize())
				v, err := e.Data().ReadUint64()
				require.NoError(t, err)
				assert.Equal(t, uint64(round*100+i), v)
			}
		}

		kd, err := o.NewAkeyDesc("dkey3", KeyDescOptions{})
		require.NoError(t, err)
		defer kd.Release()
		keys, err := o.ListAkeys(kd)
		require.NoError(t, err)
		assert.Equal(t, []string{"akey0", "akey1", "akey2", "akey3", "akey4"}, keys)
	})
}

func TestObject_ReusableDescMisuse(t *testing.T) {
	_, o := setup(t, enginetest.Memory(t))
	d, err := o.NewReusableDesc(ModeUpdate, KindArray, 8, ReusableOptions{Entries: 2, BufferLen: 16})
	require.NoError(t, err)
	defer d.Release()

	err = o.Update(d)
	assert.Equal(t, CodeIllegalArgument, CodeOf(err))
	assert.ErrorContains(t, err, "dkey is not set")

	assert.Equal(t, CodeIllegalArgument, CodeOf(d.SetDkey(" ")))
	require.NoError(t, d.SetDkey("dkey1"))
	err = o.Update(d)
	assert.Equal(t, CodeIllegalArgument, CodeOf(err))
	assert.ErrorContains(t, err, "no entry was rebound")

	e := d.Entry(0)
	buf := e.ReuseBuffer()
	require.NoError(t, buf.WriteUint64(42))
	err = e.Rebind("", 0, buf)
	assert.Equal(t, CodeIllegalArgument, CodeOf(err))
	assert.ErrorContains(t, err, "key is blank")

	err = e.Rebind("akey1", 0, e.ReuseBuffer())
	assert.Equal(t, CodeIllegalArgument, CodeOf(err))
	assert.ErrorContains(t, err, "data size should be positive")

	require.NoError(t, e.ReuseBuffer().WriteUint64(42))
	require.NoError(t, e.Rebind("akey1", 0, e.Data()))
	require.NoError(t, o.Update(d))
	err = o.Update(d)
	assert.Equal(t, CodeIllegalArgument, CodeOf(err), "entries must be rebound after every call")

	assert.Equal(t, CodeIllegalArgument, CodeOf(o.Fetch(d)), "update descriptor")
}

func TestObject_FetchRequiresReset(t *testing.T) {
	c, o := setup(t, enginetest.Memory(t))
	put(t, c, o, "dkey1", "akey1", KindArray, 8, 0, enginetest.Data(8))

	fd, err := o.NewReusableDesc(ModeFetch, KindArray, 8, ReusableOptions{Entries: 1, BufferLen: 8})
	require.NoError(t, err)
	defer fd.Release()
	require.NoError(t, fd.SetDkey("dkey1"))
	e := fd.Entry(0)
	require.NoError(t, e.RebindFetch("akey1", 0, 8))
	require.NoError(t, o.Fetch(fd))
	assert.Equal(t, uint32(8), e.ActualSize())

	require.NoError(t, e.RebindFetch("akey1", 0, 8))
	err = o.Fetch(fd)
	assert.Equal(t, CodeIllegalArgument, CodeOf(err))
	assert.ErrorContains(t, err, "reset it before reuse")

	e.ReuseBuffer()
	require.NoError(t, e.RebindFetch("akey1", 0, 8))
	require.NoError(t, o.Fetch(fd))
	enginetest.BytesEq(t, e.Data().Bytes(), enginetest.Data(8))

	assert.Equal(t, CodeIllegalArgument, CodeOf(e.RebindFetch("akey1", 0, 9)))
}

func TestObject_Punch(t *testing.T) {
	enginetest.Engines(t, func(t *testing.T, kv *engine.KV) {
		c, o := setup(t, kv)
		for _, dkey := range []string{"d0", "d1", "d2"} {
			for _, akey := range []string{"a0", "a1"} {
				put(t, c, o, dkey, akey, KindArray, 4, 0, enginetest.Data(8))
			}
		}

		require.NoError(t, o.PunchDkeys("d1"))
		assert.Equal(t, []string{"d0", "d2"}, listAll(t, o, ""))
		d, err := get(t, o, "d1", "a0", KindArray, 4, 0, 8)
		require.NoError(t, err)
		assert.Zero(t, d.Entry(0).ActualSize())
		assert.Zero(t, d.Entry(0).ActualRecSize())
		d.Release()

		require.NoError(t, o.PunchAkeys("d0", "a0", "missing"))
		assert.Equal(t, []string{"a1"}, listAll(t, o, "d0"))
		size, err := o.RecordSize("d0", "a0")
		require.NoError(t, err)
		assert.Zero(t, size)

		require.NoError(t, o.PunchAkeys("d2", "a0", "a1"))
		assert.Equal(t, []string{"d0"}, listAll(t, o, ""))

		require.NoError(t, o.Punch())
		assert.Empty(t, listAll(t, o, ""))

		assert.Equal(t, CodeIllegalArgument, CodeOf(o.PunchDkeys()))
		assert.Equal(t, CodeIllegalArgument, CodeOf(o.PunchAkeys("", "a0")))
		assert.Equal(t, CodeIllegalArgument, CodeOf(o.PunchAkeys("d0", "")))
	})
}

func TestObject_Close(t *testing.T) {
	c, o := setup(t, enginetest.Memory(t))
	e := must(NewUpdateEntry("akey1", KindArray, 8, 0, filled(c, enginetest.Data(8))))
	d := must(o.NewUpdateDesc("dkey1", e))
	defer d.Release()
	kd := must(o.NewDkeyDesc(KeyDescOptions{}))
	defer kd.Release()

	require.NoError(t, o.Close())
	require.NoError(t, o.Close())
	assert.False(t, o.IsOpen())

	err := o.Update(d)
	assert.Equal(t, CodeIllegalArgument, CodeOf(err))
	assert.ErrorIs(t, err, ErrObjectClosed)
	_, err = o.ListDkeys(kd)
	assert.ErrorIs(t, err, ErrObjectClosed)
	_, err = o.RecordSize("dkey1", "akey1")
	assert.ErrorIs(t, err, ErrObjectClosed)
	assert.ErrorIs(t, o.Punch(), ErrObjectClosed)
	assert.Equal(t, 8, e.Data().Readable(), "untouched")

	require.NoError(t, o.Open())
	require.NoError(t, o.Update(d))
	assert.Equal(t, CodeIllegalArgument, CodeOf(o.Open()), "already open")
}

func TestObject_OpenRequiresEncodedID(t *testing.T) {
	c, err := New(Options{Engine: enginetest.Memory(t), Logger: enginetest.Logger(t)})
	require.NoError(t, err)
	o := c.Object(NewObjectID(1, 2))
	err = o.Open()
	assert.Equal(t, CodeIllegalArgument, CodeOf(err))
	assert.ErrorIs(t, err, ErrNotEncoded)
	assert.False(t, o.IsOpen())
}

func TestClient_Close(t *testing.T) {
	kv := enginetest.Memory(t)
	c, err := New(Options{Engine: kv, Logger: enginetest.Logger(t)})
	require.NoError(t, err)
	o := c.Object(must(NewObjectID(0, 7).Encode(0, 0)))
	require.NoError(t, o.Open())
	require.NoError(t, o.Close())
	require.NoError(t, c.Close())

	err = o.Open()
	assert.Equal(t, CodeIllegalArgument, CodeOf(err))
	assert.ErrorIs(t, err, engine.ErrClosed)

	_, err = New(Options{})
	assert.Error(t, err)
}

func TestObject_ConcurrentDescriptors(t *testing.T) {
	_, o := setup(t, enginetest.Memory(t))
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dkey := fmt.Sprintf("dkey%d", g)
			ud := must(o.NewReusableDesc(ModeUpdate, KindArray, 8, ReusableOptions{Entries: 1}))
			defer ud.Release()
			fd := must(o.NewReusableDesc(ModeFetch, KindArray, 8, ReusableOptions{Entries: 1}))
			defer fd.Release()
			assert.NoError(t, ud.SetDkey(dkey))
			assert.NoError(t, fd.SetDkey(dkey))
			for i := range 20 {
				ue := ud.Entry(0)
				buf := ue.ReuseBuffer()
				assert.NoError(t, buf.WriteUint64(uint64(g*1000+i)))
				assert.NoError(t, ue.Rebind("akey", uint64(i*8), buf))
				if !assert.NoError(t, o.Update(ud)) {
					return
				}

				fe := fd.Entry(0)
				fe.ReuseBuffer()
				assert.NoError(t, fe.RebindFetch("akey", uint64(i*8), 8))
				if !assert.NoError(t, o.Fetch(fd)) {
					return
				}
				v, err := fe.Data().ReadUint64()
				assert.NoError(t, err)
				assert.Equal(t, uint64(g*1000+i), v)
			}
		}()
	}
	wg.Wait()
}
