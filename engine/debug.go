package engine

import (
	"fmt"
	"strings"
)

type DumpFlags uint64

const (
	DumpKeys = DumpFlags(1 << iota)
	DumpValues

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

const dumpValuePrefixLen = 32

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump describes the stored contents of an object, one akey per line.
func (kv *KV) Dump(oid OID, f DumpFlags) (string, error) {
	h := kv.handle(oid)
	var buf strings.Builder
	err := kv.read(func(tx storageTx) error {
		idx := tx.Bucket(h.index, nil)
		if idx == nil {
			fmt.Fprintf(&buf, "%v (empty)\n", oid)
			return nil
		}
		fmt.Fprintf(&buf, "%v (%d dkeys)\n", oid, idx.KeyCount())
		c := idx.Cursor()
		for dkey, _ := c.First(); dkey != nil; dkey, _ = c.Next() {
			b := tx.Bucket(h.data, dkey)
			if b == nil {
				fmt.Fprintf(&buf, "  %q ** MISSING DATA\n", dkey)
				continue
			}
			fmt.Fprintf(&buf, "  %q (%d akeys)\n", dkey, b.KeyCount())
			if !f.Contains(DumpKeys) {
				continue
			}
			ac := b.Cursor()
			for akey, raw := ac.First(); akey != nil; akey, raw = ac.Next() {
				v, err := decodeAkeyValue(raw)
				if err != nil {
					fmt.Fprintf(&buf, "    %q ** ERROR: %v\n", akey, err)
					continue
				}
				fmt.Fprintf(&buf, "    %q = %v rec=%d size=%d", akey, v.Kind, v.RecSize, len(v.Data))
				if f.Contains(DumpValues) {
					data := v.Data
					if len(data) > dumpValuePrefixLen {
						fmt.Fprintf(&buf, " %x...", data[:dumpValuePrefixLen])
					} else {
						fmt.Fprintf(&buf, " %x", data)
					}
				}
				buf.WriteByte('\n')
			}
		}
		return nil
	})
	return buf.String(), err
}
