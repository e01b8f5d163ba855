// Package engine defines the storage engine boundary consumed by objio and
// provides KV, a reference engine on top of bbolt or an in-memory store.
//
// Everything behind this boundary is opaque to the client core: the stored
// value format, the anchor token layout and the object id encoding are owned
// here.
package engine

import (
	"encoding/binary"
	"fmt"
)

// OID is a 128-bit object identifier as seen by the engine.
type OID struct {
	Hi, Lo uint64
}

func (oid OID) String() string {
	return fmt.Sprintf("%x.%x", oid.Hi, oid.Lo)
}

func (oid OID) bytes() []byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], oid.Hi)
	binary.BigEndian.PutUint64(b[8:], oid.Lo)
	return b[:]
}

// Kind is the value kind of an akey.
type Kind uint8

const (
	KindSingle Kind = 1
	KindArray  Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "SINGLE"
	case KindArray:
		return "ARRAY"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// IOD describes the I/O on a single akey.
//
// For Update, Data holds the bytes to write starting at byte Offset. For
// Fetch, Data is the destination and len(Data) is the capacity; the engine
// sets ActualRecSize and ActualSize, and Mismatch when RecSize differs from
// the stored record size (in which case nothing is copied).
type IOD struct {
	Akey    []byte
	Kind    Kind
	RecSize uint32
	Offset  uint64
	Data    []byte

	ActualRecSize uint32
	ActualSize    uint32
	Mismatch      bool
}

// ListRequest asks for up to MaxKeys keys of an object (Dkey == nil) or of
// one dkey, resuming after Anchor. Keys longer than MaxKeyLen are not
// returned; see ListResult.KeyTooBig.
type ListRequest struct {
	Dkey      []byte
	Anchor    []byte
	MaxKeys   int
	MaxKeyLen int
}

// ListResult is the outcome of one ListKeys call. Anchor must be passed back
// unmodified to continue. When KeyTooBig is set, Keys is empty, Anchor is
// unchanged and SuggestedKeyLen is the length of the offending key.
type ListResult struct {
	Keys            [][]byte
	Anchor          []byte
	End             bool
	KeyTooBig       bool
	SuggestedKeyLen int
}

type Engine interface {
	Open(oid OID) (Handle, error)
	Close() error
}

// Handle is an open object. Calls are synchronous.
type Handle interface {
	Update(dkey []byte, iods []IOD) error
	Fetch(dkey []byte, iods []IOD) error
	Punch() error
	PunchDkeys(dkeys [][]byte) error
	PunchAkeys(dkey []byte, akeys [][]byte) error
	ListKeys(req ListRequest) (ListResult, error)
	// RecordSize returns 0 if the akey does not exist.
	RecordSize(dkey, akey []byte) (uint32, error)
	Close() error
}
