package objio

import "fmt"

// ListStatus is the enumeration state of a KeyDesc. Its value is also the
// first byte of the anchor buffer.
type ListStatus uint8

const (
	StatusInProgress   ListStatus = 0
	StatusReachedLimit ListStatus = 1
	StatusKeyTooBig    ListStatus = 2
	StatusEnd          ListStatus = 3
)

func (s ListStatus) String() string {
	switch s {
	case StatusInProgress:
		return "in_progress"
	case StatusReachedLimit:
		return "reached_limit"
	case StatusKeyTooBig:
		return "key_too_big"
	case StatusEnd:
		return "end"
	default:
		return fmt.Sprintf("ListStatus(%d)", uint8(s))
	}
}

// KeyDescOptions configures a KeyDesc. Zero values mean defaults.
type KeyDescOptions struct {
	// PageCapacity is the maximum number of keys returned by one list call.
	PageCapacity int // default 128

	// KeyLen is the initial per-key length budget. Keys longer than this
	// abort the page with StatusKeyTooBig.
	KeyLen int // default 64

	// BatchSize caps the number of keys requested from the engine at once.
	BatchSize int // default 16
}

const (
	defaultPageCapacity = 128
	defaultKeyLen       = 64
	defaultBatchSize    = 16

	anchorSlack = 32
)

func (o KeyDescOptions) withDefaults() (KeyDescOptions, error) {
	if o.PageCapacity < 0 || o.KeyLen < 0 || o.BatchSize < 0 {
		return o, argErrf("new_key_desc", nil, "negative option in %+v", o)
	}
	if o.PageCapacity == 0 {
		o.PageCapacity = defaultPageCapacity
	}
	if o.KeyLen == 0 {
		o.KeyLen = defaultKeyLen
	}
	if o.BatchSize == 0 {
		o.BatchSize = defaultBatchSize
	}
	return o, nil
}

// KeyDesc holds the pagination state for listing the dkeys of an object, or
// the akeys of one dkey. Drive it with Object.ListDkeys/ListAkeys and
// ContinueList until ReachedEnd. A KeyDesc is not safe for concurrent use.
//
// The anchor buffer holds the status byte followed by an engine-defined
// continuation token.
type KeyDesc struct {
	arena *Arena
	dkey  string
	akeys bool
	opt   KeyDescOptions

	anchor          *Buffer
	status          ListStatus
	suggestedKeyLen int
	released        bool
}

func newKeyDesc(arena *Arena, dkey string, akeys bool, opt KeyDescOptions) (*KeyDesc, error) {
	opt, err := opt.withDefaults()
	if err != nil {
		return nil, err
	}
	if akeys {
		if err := validateKey(dkey); err != nil {
			return nil, argErrf("new_key_desc", nil, "dkey is blank")
		}
	}
	kd := &KeyDesc{arena: arena, dkey: dkey, akeys: akeys, opt: opt}
	kd.storeToken(nil)
	return kd, nil
}

func (kd *KeyDesc) Status() ListStatus { return kd.status }
func (kd *KeyDesc) ReachedEnd() bool   { return kd.status == StatusEnd }
func (kd *KeyDesc) KeyLen() int        { return kd.opt.KeyLen }
func (kd *KeyDesc) PageCapacity() int  { return kd.opt.PageCapacity }
func (kd *KeyDesc) BatchSize() int     { return kd.opt.BatchSize }

// Dkey returns the dkey whose akeys are listed, or "" for a dkey listing.
func (kd *KeyDesc) Dkey() string { return kd.dkey }

// SuggestedKeyLen is the key length reported with the last StatusKeyTooBig.
func (kd *KeyDesc) SuggestedKeyLen() int { return kd.suggestedKeyLen }

// AnchorStatusByte reads the status byte at the front of the anchor buffer.
func (kd *KeyDesc) AnchorStatusByte() byte {
	if kd.released {
		return 0
	}
	return kd.anchor.data[0]
}

// ContinueList prepares the next list call. After StatusKeyTooBig it adopts
// the suggested key length so the same page is retried; after
// StatusReachedLimit it allows the next page to be listed. Otherwise it does
// nothing.
func (kd *KeyDesc) ContinueList() {
	switch kd.status {
	case StatusKeyTooBig:
		if kd.suggestedKeyLen > kd.opt.KeyLen {
			kd.opt.KeyLen = kd.suggestedKeyLen
		}
		kd.setStatus(StatusInProgress)
	case StatusReachedLimit:
		kd.setStatus(StatusInProgress)
	}
}

// Release frees the anchor buffer. Calling it again does nothing.
func (kd *KeyDesc) Release() {
	if kd.released {
		return
	}
	kd.released = true
	kd.anchor.release()
}

func (kd *KeyDesc) scope() []byte {
	if kd.akeys {
		return []byte(kd.dkey)
	}
	return nil
}

func (kd *KeyDesc) setStatus(s ListStatus) {
	kd.status = s
	kd.anchor.data[0] = byte(s)
}

func (kd *KeyDesc) token() []byte {
	return kd.anchor.data[1:kd.anchor.w]
}

// storeToken replaces the continuation token, growing the anchor buffer if
// needed, and keeps the status byte.
func (kd *KeyDesc) storeToken(token []byte) {
	need := 1 + len(token)
	if kd.anchor == nil || kd.anchor.Cap() < need {
		size := max(need, 1+kd.opt.KeyLen+anchorSlack)
		if kd.anchor != nil {
			size = max(size, 2*kd.anchor.Cap())
			kd.anchor.release()
		}
		kd.anchor = kd.arena.Buffer(size)
	}
	kd.anchor.Reset()
	kd.anchor.data[0] = byte(kd.status)
	kd.anchor.w = 1
	must(kd.anchor.Write(token))
}
