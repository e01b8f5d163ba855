package objio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/andreyvit/objio/engine"
)

// ErrorCode is a stable identifier of a failure class.
type ErrorCode int

const (
	CodeIllegalArgument ErrorCode = iota + 1
	CodeRecordTooBig
	CodeOperationFailed
)

func (c ErrorCode) String() string {
	switch c {
	case CodeIllegalArgument:
		return "ILLEGAL_ARGUMENT"
	case CodeRecordTooBig:
		return "RECORD_TOO_BIG"
	case CodeOperationFailed:
		return "OPERATION_FAILED"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

var (
	ErrObjectClosed   = errors.New("object is not open")
	ErrReleased       = errors.New("descriptor already released")
	ErrAlreadyEncoded = errors.New("object id already encoded")
	ErrNotEncoded     = errors.New("object id not encoded")
)

// IOError is returned by every failing objio operation.
//
// ActualRecSize is set for CodeRecordTooBig: it is the record size actually
// stored, so that the caller can retry with a big enough buffer.
type IOError struct {
	Op            string
	OID           ObjectID
	Dkey          string
	Akey          string
	Code          ErrorCode
	ActualRecSize uint32
	Msg           string
	Err           error
}

func argErrf(op string, err error, format string, args ...any) *IOError {
	return &IOError{Op: op, Code: CodeIllegalArgument, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func (e *IOError) Error() string {
	var buf strings.Builder
	buf.WriteString("objio: ")
	buf.WriteString(e.Op)
	if e.OID != (ObjectID{}) {
		buf.WriteByte(' ')
		buf.WriteString(e.OID.String())
		if e.Dkey != "" {
			buf.WriteByte('/')
			buf.WriteString(e.Dkey)
			if e.Akey != "" {
				buf.WriteByte('/')
				buf.WriteString(e.Akey)
			}
		}
	}
	buf.WriteString(": ")
	buf.WriteString(e.Code.String())
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.ActualRecSize != 0 {
		fmt.Fprintf(&buf, " (actual record size %d)", e.ActualRecSize)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// CodeOf returns the code of the first *IOError in err's chain, 0 for nil
// and CodeOperationFailed for any other error.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return 0
	}
	var ioe *IOError
	if errors.As(err, &ioe) {
		return ioe.Code
	}
	return CodeOperationFailed
}

func codeFromEngine(c engine.Code) ErrorCode {
	switch c {
	case engine.CodeIllegalArgument:
		return CodeIllegalArgument
	case engine.CodeRecordTooBig:
		return CodeRecordTooBig
	default:
		return CodeOperationFailed
	}
}

// engineErr wraps an engine failure, carrying over the akey and record size
// the engine reported.
func engineErr(op string, oid ObjectID, dkey string, err error, format string, args ...any) *IOError {
	e := &IOError{
		Op:   op,
		OID:  oid,
		Dkey: dkey,
		Code: codeFromEngine(engine.CodeOf(err)),
		Msg:  fmt.Sprintf(format, args...),
		Err:  err,
	}
	var ee *engine.Error
	if errors.As(err, &ee) {
		e.Akey = string(ee.Akey)
		e.ActualRecSize = ee.ActualRecSize
	}
	return e
}
