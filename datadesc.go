package objio

import (
	"github.com/andreyvit/objio/engine"
)

// DataDesc is an ordered batch of entries under one dkey, driven through
// Object.Update or Object.Fetch. A DataDesc is not safe for concurrent use.
//
// A reusable descriptor (NewReusableDesc) owns a fixed set of entries with
// preallocated buffers; only entries re-primed via Entry.Rebind or
// Entry.RebindFetch since the previous call take part in the next one.
type DataDesc struct {
	arena    *Arena
	mode     Mode
	dkey     string
	entries  []*Entry
	reusable bool
	released bool
}

// ReusableOptions configures NewReusableDesc. Zero values mean defaults.
type ReusableOptions struct {
	Entries   int // default 5
	BufferLen int // default 64
}

const (
	defaultReusableEntries   = 5
	defaultReusableBufferLen = 64
)

func newDataDesc(arena *Arena, mode Mode, dkey string, entries []*Entry) (*DataDesc, error) {
	const op = "new_desc"
	if err := validateKey(dkey); err != nil {
		return nil, argErrf(op, nil, "dkey is blank")
	}
	if len(entries) == 0 {
		return nil, argErrf(op, nil, "no entries")
	}
	for _, e := range entries {
		if e == nil {
			return nil, argErrf(op, nil, "nil entry")
		}
		if e.mode != mode {
			return nil, argErrf(op, nil, "%v entry %q in a %v descriptor", e.mode, e.key, mode)
		}
	}
	d := &DataDesc{arena: arena, mode: mode, dkey: dkey, entries: entries}
	if mode == ModeFetch {
		for _, e := range entries {
			if e.buf == nil || e.buf.Released() {
				e.buf = arena.Buffer(int(e.capacity))
			}
		}
	}
	return d, nil
}

func newReusableDataDesc(arena *Arena, mode Mode, kind Kind, recSize uint32, opt ReusableOptions) (*DataDesc, error) {
	const op = "new_desc"
	if mode != ModeUpdate && mode != ModeFetch {
		return nil, argErrf(op, nil, "invalid mode %v", mode)
	}
	if opt.Entries < 0 || opt.BufferLen < 0 {
		return nil, argErrf(op, nil, "negative entry count or buffer length")
	}
	if opt.Entries == 0 {
		opt.Entries = defaultReusableEntries
	}
	if opt.BufferLen == 0 {
		opt.BufferLen = defaultReusableBufferLen
	}
	d := &DataDesc{arena: arena, mode: mode, reusable: true}
	for range opt.Entries {
		e := &Entry{mode: mode, kind: kind, recSize: recSize}
		if err := e.validateShape(); err != nil {
			d.Release()
			return nil, err
		}
		e.buf = arena.Buffer(opt.BufferLen)
		d.entries = append(d.entries, e)
	}
	return d, nil
}

func (d *DataDesc) Mode() Mode         { return d.mode }
func (d *DataDesc) Dkey() string       { return d.dkey }
func (d *DataDesc) Len() int           { return len(d.entries) }
func (d *DataDesc) Entry(i int) *Entry { return d.entries[i] }
func (d *DataDesc) Entries() []*Entry  { return d.entries }
func (d *DataDesc) IsReusable() bool   { return d.reusable }

// SetDkey binds the descriptor to another dkey.
func (d *DataDesc) SetDkey(dkey string) error {
	if d.released {
		return argErrf("set_dkey", ErrReleased, "")
	}
	if err := validateKey(dkey); err != nil {
		return argErrf("set_dkey", nil, "dkey is blank")
	}
	d.dkey = dkey
	return nil
}

// Release frees every entry buffer. Calling it again does nothing.
func (d *DataDesc) Release() {
	if d.released {
		return
	}
	d.released = true
	for _, e := range d.entries {
		e.buf.release()
	}
}

// active returns the entries taking part in the next call.
func (d *DataDesc) active(op string, mode Mode) ([]*Entry, error) {
	if d.released {
		return nil, argErrf(op, ErrReleased, "")
	}
	if d.mode != mode {
		return nil, argErrf(op, nil, "%v on a %v descriptor", mode, d.mode)
	}
	if d.dkey == "" {
		return nil, argErrf(op, nil, "dkey is not set")
	}
	if !d.reusable {
		return d.entries, nil
	}
	var active []*Entry
	for _, e := range d.entries {
		if e.primed {
			active = append(active, e)
		}
	}
	if len(active) == 0 {
		return nil, argErrf(op, nil, "no entry was rebound since the previous call")
	}
	return active, nil
}

func unprime(entries []*Entry) {
	for _, e := range entries {
		e.primed = false
	}
}

func updateIODs(entries []*Entry) []engine.IOD {
	iods := make([]engine.IOD, len(entries))
	for i, e := range entries {
		iods[i] = engine.IOD{
			Akey:    []byte(e.key),
			Kind:    engine.Kind(e.kind),
			RecSize: e.recSize,
			Offset:  e.offset,
		}
		if !e.buf.Released() {
			iods[i].Data = e.buf.Bytes()
		}
	}
	return iods
}

func fetchIODs(op string, entries []*Entry) ([]engine.IOD, error) {
	iods := make([]engine.IOD, len(entries))
	for i, e := range entries {
		if e.buf == nil || e.buf.Released() {
			return nil, argErrf(op, ErrReleased, "buffer of %q", e.key)
		}
		if e.buf.Writable() < int(e.capacity) {
			return nil, argErrf(op, nil, "buffer of %q has %d writable bytes, need %d; reset it before reuse", e.key, e.buf.Writable(), e.capacity)
		}
		e.resetResults()
		iods[i] = engine.IOD{
			Akey:    []byte(e.key),
			Kind:    engine.Kind(e.kind),
			RecSize: e.recSize,
			Offset:  e.offset,
			Data:    e.buf.spare()[:e.capacity],
		}
	}
	return iods, nil
}
