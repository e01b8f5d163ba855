// Package enginetest provides engines and helpers for tests.
package enginetest

import (
	"bytes"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andreyvit/objio/engine"
)

// Logger returns a debug-level logger writing to t.Log.
func Logger(t testing.TB) *slog.Logger {
	return slog.New(slog.NewTextHandler(&logWriter{t}, &slog.HandlerOptions{
		AddSource: false,
		Level:     slog.LevelDebug,
	}))
}

// Memory returns a verbose in-memory engine closed at the end of the test.
func Memory(t testing.TB) *engine.KV {
	kv, err := engine.Open(engine.OpenArgs{
		Logger:  Logger(t),
		Verbose: true,
	})
	if err != nil {
		t.Fatalf("engine.Open: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

// Bolt returns a verbose engine over a fresh bolt file in t.TempDir().
func Bolt(t testing.TB) *engine.KV {
	kv, err := engine.Open(engine.OpenArgs{
		Path:    filepath.Join(t.TempDir(), "objects.db"),
		NoSync:  true,
		Logger:  Logger(t),
		Verbose: true,
	})
	if err != nil {
		t.Fatalf("engine.Open: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

// Engines runs f as a subtest once per storage backend.
func Engines(t *testing.T, f func(t *testing.T, kv *engine.KV)) {
	t.Run("mem", func(t *testing.T) { f(t, Memory(t)) })
	t.Run("bolt", func(t *testing.T) { f(t, Bolt(t)) })
}

// Data returns n deterministic printable bytes.
func Data(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte((i + 33) % 128)
	}
	return b
}

type logWriter struct{ t testing.TB }

func (c *logWriter) Write(buf []byte) (int, error) {
	msg := string(buf)
	origLen := len(msg)
	msg = strings.TrimSuffix(msg, "\n")
	c.t.Log(msg)
	return origLen, nil
}

func HexDump(b []byte, highlightOff int) string {
	var buf strings.Builder
	var off int
	n := len(b)
	for {
		fmt.Fprintf(&buf, "%08x", off)
		if off >= n {
			buf.WriteByte('\n')
			break
		}
		buf.WriteByte(' ')
		for i := range 8 {
			switch {
			case off+i >= n:
				buf.WriteString("   ")
			case highlightOff >= 0 && off+i == highlightOff:
				fmt.Fprintf(&buf, ">%02x", b[off+i])
			default:
				fmt.Fprintf(&buf, " %02x", b[off+i])
			}
		}
		buf.WriteString("  |")
		for i := range 8 {
			if off+i < n {
				v := b[off+i]
				if v >= 32 && v <= 126 {
					buf.WriteByte(v)
				} else {
					buf.WriteByte('.')
				}
			}
		}
		off += 8
		buf.WriteString("|\n")
		if off >= n {
			break
		}
	}
	return buf.String()
}

// BytesEq reports a hex dump of both sides when a != e.
func BytesEq(t testing.TB, a, e []byte) bool {
	if !bytes.Equal(a, e) {
		an, en := len(a), len(e)
		off := min(an, en)
		for i := range min(an, en) {
			if a[i] != e[i] {
				off = i
				break
			}
		}

		t.Helper()
		t.Errorf("** got:\n%v\nwanted:\n%v\nfirst difference offset: 0x%x (%d)", HexDump(a, off), HexDump(e, off), off, off)
		return false
	}
	return true
}
