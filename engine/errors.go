package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies engine failures. Values are stable.
type Code int

const (
	CodeOK Code = iota
	CodeIllegalArgument
	CodeRecordTooBig
	CodeOperationFailed
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeIllegalArgument:
		return "ILLEGAL_ARGUMENT"
	case CodeRecordTooBig:
		return "RECORD_TOO_BIG"
	case CodeOperationFailed:
		return "OPERATION_FAILED"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

var ErrClosed = errors.New("closed")

type Error struct {
	Code          Code
	Op            string
	Akey          []byte
	ActualRecSize uint32
	Msg           string
	Err           error
}

func errf(code Code, op string, akey []byte, err error, format string, args ...any) error {
	return &Error{Code: code, Op: op, Akey: akey, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	var buf strings.Builder
	buf.WriteString("engine: ")
	buf.WriteString(e.Op)
	if e.Akey != nil {
		fmt.Fprintf(&buf, " %q", e.Akey)
	}
	buf.WriteString(": ")
	buf.WriteString(e.Code.String())
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// CodeOf returns the code of the first *Error in err's chain, CodeOK for nil
// and CodeOperationFailed for any other error.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code
	}
	return CodeOperationFailed
}

// DataError reports undecodable stored data.
type DataError struct {
	Data []byte
	Err  error
	Msg  string
}

func dataErrf(data []byte, err error, format string, args ...any) error {
	return &DataError{data, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		}
		return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
	}
	p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
	}
	return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
}
