package engine

import (
	"bytes"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// akeyValue is the stored form of one akey.
type akeyValue struct {
	Kind    Kind   `msgpack:"k"`
	RecSize uint32 `msgpack:"r"`
	Data    []byte `msgpack:"d"`
}

const anchorVersion = 1

// anchorToken is the engine-private continuation state of a key listing.
type anchorToken struct {
	Version uint8  `msgpack:"v"`
	Scope   uint64 `msgpack:"s"`
	Last    []byte `msgpack:"l"`
}

func encodeMsgpack(v any) []byte {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	err := enc.Encode(v)
	msgpack.PutEncoder(enc)
	if err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func decodeMsgpack(data []byte, v any) error {
	var r bytes.Reader
	r.Reset(data)
	dec := msgpack.GetDecoder()
	dec.Reset(&r)
	err := dec.Decode(v)
	msgpack.PutDecoder(dec)
	if err != nil {
		return dataErrf(data, err, "failed to decode msgpack into %T", v)
	}
	return nil
}

func encodeAkeyValue(v *akeyValue) []byte {
	return encodeMsgpack(v)
}

func decodeAkeyValue(data []byte) (*akeyValue, error) {
	v := new(akeyValue)
	if err := decodeMsgpack(data, v); err != nil {
		return nil, err
	}
	return v, nil
}

// scopeHash identifies an enumeration scope: the object and, for akey
// listings, the dkey.
func scopeHash(oid OID, dkey []byte) uint64 {
	d := xxhash.New()
	_, _ = d.Write(oid.bytes())
	if dkey != nil {
		_, _ = d.Write([]byte{1})
		_, _ = d.Write(dkey)
	} else {
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}

func encodeAnchor(scope uint64, last []byte) []byte {
	return encodeMsgpack(&anchorToken{Version: anchorVersion, Scope: scope, Last: last})
}

// decodeAnchor returns the last key returned so far; nil means start.
func decodeAnchor(data []byte, scope uint64) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var tok anchorToken
	if err := decodeMsgpack(data, &tok); err != nil {
		return nil, errf(CodeIllegalArgument, "list", nil, err, "malformed anchor")
	}
	if tok.Version != anchorVersion {
		return nil, errf(CodeIllegalArgument, "list", nil, nil, "unsupported anchor version %d", tok.Version)
	}
	if tok.Scope != scope {
		return nil, errf(CodeIllegalArgument, "list", nil, nil, "anchor belongs to another enumeration")
	}
	return tok.Last, nil
}
