package objio

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/andreyvit/objio/engine"
	"github.com/google/uuid"
)

// ObjectClass selects the data layout of an object. It is recorded in bits
// 32–47 of the high half of an encoded id.
type ObjectClass uint16

const (
	ClassSingle     ObjectClass = 1
	ClassReplicated ObjectClass = 2
	ClassStriped    ObjectClass = 3
)

func (c ObjectClass) String() string {
	switch c {
	case ClassSingle:
		return "S1"
	case ClassReplicated:
		return "RP_2"
	case ClassStriped:
		return "SX"
	default:
		return fmt.Sprintf("ObjectClass(%d)", uint16(c))
	}
}

// Features are informational flags recorded in bits 48–63 of the high half
// of an encoded id.
type Features uint16

const (
	FeatureDkeyUint64 Features = 1 << iota
	FeatureAkeyUint64
	FeatureArray
)

const (
	classShift   = 32
	featureShift = 48
	reservedMask = uint64(0xFFFFFFFF) << classShift
)

// ObjectID is a 128-bit object identifier. It must be encoded exactly once
// before an object can be opened with it.
type ObjectID struct {
	high, low uint64
	encoded   bool
}

func NewObjectID(high, low uint64) ObjectID {
	return ObjectID{high: high, low: low}
}

// RandomObjectID returns an unencoded id made of 128 random bits.
func RandomObjectID() ObjectID {
	u := uuid.New()
	return ObjectID{
		high: binary.BigEndian.Uint64(u[:8]),
		low:  binary.BigEndian.Uint64(u[8:]),
	}
}

// ParseObjectID parses the "high.low" hex form printed by String. The result
// is considered encoded.
func ParseObjectID(s string) (ObjectID, error) {
	hs, ls, ok := strings.Cut(s, ".")
	if !ok {
		return ObjectID{}, fmt.Errorf("invalid object id %q: missing dot", s)
	}
	high, err := strconv.ParseUint(hs, 16, 64)
	if err != nil {
		return ObjectID{}, fmt.Errorf("invalid object id %q: %w", s, err)
	}
	low, err := strconv.ParseUint(ls, 16, 64)
	if err != nil {
		return ObjectID{}, fmt.Errorf("invalid object id %q: %w", s, err)
	}
	return ObjectID{high: high, low: low, encoded: true}, nil
}

func (id ObjectID) High() uint64    { return id.high }
func (id ObjectID) Low() uint64     { return id.low }
func (id ObjectID) IsEncoded() bool { return id.encoded }

// Class returns the object class of an encoded id, or 0.
func (id ObjectID) Class() ObjectClass {
	if !id.encoded {
		return 0
	}
	return ObjectClass(id.high >> classShift)
}

// Features returns the feature flags of an encoded id, or 0.
func (id ObjectID) Features() Features {
	if !id.encoded {
		return 0
	}
	return Features(id.high >> featureShift)
}

// Encode stamps the class and feature flags into the reserved upper 32 bits
// of the high half, overwriting whatever the caller had there. A zero class
// means ClassSingle.
func (id ObjectID) Encode(class ObjectClass, feats Features) (ObjectID, error) {
	if id.encoded {
		return id, argErrf("encode", ErrAlreadyEncoded, "%v", id)
	}
	if class == 0 {
		class = ClassSingle
	}
	id.high = id.high&^reservedMask | uint64(class)<<classShift | uint64(feats)<<featureShift
	id.encoded = true
	return id, nil
}

func (id ObjectID) String() string {
	return fmt.Sprintf("%x.%x", id.high, id.low)
}

func (id ObjectID) engineOID() engine.OID {
	return engine.OID{Hi: id.high, Lo: id.low}
}
