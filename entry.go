package objio

import (
	"fmt"
	"strings"

	"github.com/andreyvit/objio/engine"
)

// Kind is the value kind of an akey.
type Kind uint8

const (
	KindSingle Kind = Kind(engine.KindSingle)
	KindArray  Kind = Kind(engine.KindArray)
)

func (k Kind) String() string {
	return engine.Kind(k).String()
}

func (k Kind) valid() bool {
	return k == KindSingle || k == KindArray
}

// Mode tells whether a descriptor or entry writes or reads.
type Mode uint8

const (
	ModeUpdate Mode = 1
	ModeFetch  Mode = 2
)

func (m Mode) String() string {
	switch m {
	case ModeUpdate:
		return "update"
	case ModeFetch:
		return "fetch"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// Entry is the I/O intent for one akey: what to write, or where to read
// into. After a fetch, ActualRecSize and ActualSize report what the store
// holds and how many bytes were transferred.
type Entry struct {
	mode     Mode
	key      string
	kind     Kind
	recSize  uint32
	offset   uint64
	capacity uint32
	buf      *Buffer

	actualRecSize uint32
	actualSize    uint32

	primed bool
}

// NewUpdateEntry describes writing buf's readable bytes to akey key at byte
// offset. The entry takes ownership of buf.
func NewUpdateEntry(key string, kind Kind, recSize uint32, offset uint64, buf *Buffer) (*Entry, error) {
	e := &Entry{mode: ModeUpdate, kind: kind, recSize: recSize}
	if err := e.validateShape(); err != nil {
		return nil, err
	}
	if err := e.Rebind(key, offset, buf); err != nil {
		return nil, err
	}
	return e, nil
}

// NewFetchEntry describes reading up to capacity bytes of akey key from
// byte offset, interpreting the value as records of recSize bytes. The
// buffer is allocated when the entry is added to a descriptor.
func NewFetchEntry(key string, kind Kind, recSize uint32, offset uint64, capacity uint32) (*Entry, error) {
	e := &Entry{mode: ModeFetch, kind: kind, recSize: recSize}
	if err := e.validateShape(); err != nil {
		return nil, err
	}
	if err := e.RebindFetch(key, offset, capacity); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Entry) validateShape() error {
	if !e.kind.valid() {
		return argErrf("entry", nil, "invalid kind %v", e.kind)
	}
	if e.recSize == 0 {
		return argErrf("entry", nil, "record size should be positive")
	}
	return nil
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return argErrf("entry", nil, "key is blank")
	}
	return nil
}

// Rebind re-primes an update entry for the next call: new akey, offset and
// data. buf may be the entry's own buffer (see ReuseBuffer) or a new one, in
// which case the old buffer is released and buf is adopted.
func (e *Entry) Rebind(key string, offset uint64, buf *Buffer) error {
	if e.mode != ModeUpdate {
		return argErrf("rebind", nil, "Rebind on a %v entry", e.mode)
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if buf == nil || buf.Released() || buf.Readable() <= 0 {
		return argErrf("rebind", nil, "data size should be positive")
	}
	if e.kind == KindSingle {
		offset = 0
	}
	if e.buf != buf {
		e.buf.release()
		e.buf = buf
	}
	e.key, e.offset = key, offset
	e.resetResults()
	e.primed = true
	return nil
}

// RebindFetch re-primes a fetch entry for the next call. If the entry
// already has a buffer, it must be able to hold capacity bytes, and the
// caller must Reset it before the call.
func (e *Entry) RebindFetch(key string, offset uint64, capacity uint32) error {
	if e.mode != ModeFetch {
		return argErrf("rebind", nil, "RebindFetch on a %v entry", e.mode)
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if capacity == 0 {
		return argErrf("rebind", nil, "data size should be positive")
	}
	if e.buf != nil && !e.buf.Released() && int(capacity) > e.buf.Cap() {
		return argErrf("rebind", nil, "capacity %d exceeds buffer size %d", capacity, e.buf.Cap())
	}
	if e.kind == KindSingle {
		offset = 0
	}
	e.key, e.offset, e.capacity = key, offset, capacity
	e.resetResults()
	e.primed = true
	return nil
}

// ReuseBuffer rewinds the entry's own buffer and returns it, ready to be
// filled and passed back to Rebind.
func (e *Entry) ReuseBuffer() *Buffer {
	if e.buf != nil {
		e.buf.Reset()
	}
	return e.buf
}

func (e *Entry) Mode() Mode         { return e.mode }
func (e *Entry) Key() string        { return e.key }
func (e *Entry) Kind() Kind         { return e.kind }
func (e *Entry) RecSize() uint32    { return e.recSize }
func (e *Entry) Offset() uint64     { return e.offset }
func (e *Entry) Capacity() uint32   { return e.capacity }
func (e *Entry) Data() *Buffer      { return e.buf }
func (e *Entry) ActualSize() uint32 { return e.actualSize }

// ActualRecSize is the record size stored for the akey, 0 if absent.
func (e *Entry) ActualRecSize() uint32 { return e.actualRecSize }

func (e *Entry) resetResults() {
	e.actualRecSize, e.actualSize = 0, 0
}

func (e *Entry) String() string {
	return fmt.Sprintf("%v %q %v rec=%d off=%d", e.mode, e.key, e.kind, e.recSize, e.offset)
}
