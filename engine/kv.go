package engine

import (
	"bytes"
	"context"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

// OpenArgs configures a KV engine. An empty Path selects in-memory storage.
type OpenArgs struct {
	Path    string
	NoSync  bool
	Timeout time.Duration
	Logger  *slog.Logger
	Verbose bool
}

// KV is a reference engine. Each object occupies two root buckets: an index
// of its dkeys, and a data bucket with one nested bucket per dkey mapping
// akeys to msgpack-encoded values.
type KV struct {
	st      storage
	logger  *slog.Logger
	verbose bool
	closed  atomic.Bool
}

var _ Engine = (*KV)(nil)

var indexMarker = []byte{1}

func Open(args OpenArgs) (*KV, error) {
	kv := &KV{
		logger:  args.Logger,
		verbose: args.Verbose,
	}
	if kv.logger == nil {
		kv.logger = slog.Default()
	}

	if args.Path == "" {
		kv.st = newMemStorage()
		return kv, nil
	}

	bopt := *bbolt.DefaultOptions
	bopt.Timeout = args.Timeout
	if bopt.Timeout == 0 {
		bopt.Timeout = 10 * time.Second
	}
	bopt.NoSync = args.NoSync
	bopt.FreelistType = bbolt.FreelistMapType
	bdb, err := bbolt.Open(args.Path, 0o666, &bopt)
	if err != nil {
		return nil, errors.Wrapf(err, "engine: open %s", args.Path)
	}
	kv.st = newBoltStorage(bdb)
	kv.debug("engine: OPEN", slog.String("path", args.Path))
	return kv, nil
}

// NewMemory returns an in-memory engine.
func NewMemory() *KV {
	return must(Open(OpenArgs{}))
}

func (kv *KV) Open(oid OID) (Handle, error) {
	if kv.closed.Load() {
		return nil, errf(CodeIllegalArgument, "open", nil, ErrClosed, "engine")
	}
	return kv.handle(oid), nil
}

func (kv *KV) handle(oid OID) *kvHandle {
	raw := oid.bytes()
	return &kvHandle{
		kv:    kv,
		oid:   oid,
		index: append([]byte{'o'}, raw...),
		data:  append([]byte{'d'}, raw...),
	}
}

func (kv *KV) Close() error {
	if kv.closed.Swap(true) {
		return nil
	}
	return kv.st.Close()
}

func (kv *KV) debug(msg string, attrs ...slog.Attr) {
	if kv.verbose {
		kv.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
	}
}

func (kv *KV) read(f func(tx storageTx) error) error {
	tx, err := kv.st.BeginTx(false)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return f(tx)
}

func (kv *KV) write(f func(tx storageTx) error) error {
	tx, err := kv.st.BeginTx(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := f(tx); err != nil {
		return err
	}
	return tx.Commit()
}

type kvHandle struct {
	kv     *KV
	oid    OID
	index  []byte
	data   []byte
	closed atomic.Bool
}

func (h *kvHandle) check(op string) error {
	if h.closed.Load() {
		return errf(CodeIllegalArgument, op, nil, ErrClosed, "object %v", h.oid)
	}
	if h.kv.closed.Load() {
		return errf(CodeIllegalArgument, op, nil, ErrClosed, "engine")
	}
	return nil
}

func (h *kvHandle) Close() error {
	h.closed.Store(true)
	return nil
}

func (h *kvHandle) Update(dkey []byte, iods []IOD) error {
	const op = "update"
	if err := h.check(op); err != nil {
		return err
	}
	if len(dkey) == 0 {
		return errf(CodeIllegalArgument, op, nil, nil, "empty dkey")
	}
	if len(iods) == 0 {
		return errf(CodeIllegalArgument, op, nil, nil, "no iods")
	}

	err := h.kv.write(func(tx storageTx) error {
		b, err := tx.CreateBucket(h.data, dkey)
		if err != nil {
			return err
		}
		seen := make(map[string]struct{}, len(iods))
		for i := range iods {
			iod := &iods[i]
			if err := validateUpdateIOD(iod); err != nil {
				return err
			}
			if _, dup := seen[string(iod.Akey)]; dup {
				return errf(CodeOperationFailed, op, iod.Akey, nil, "akey appears twice in one update")
			}
			seen[string(iod.Akey)] = struct{}{}

			var old *akeyValue
			if raw := b.Get(iod.Akey); raw != nil {
				old, err = decodeAkeyValue(raw)
				if err != nil {
					return err
				}
			}
			v, err := applyUpdate(old, iod)
			if err != nil {
				return err
			}
			if err := b.Put(iod.Akey, encodeAkeyValue(v)); err != nil {
				return errors.Wrapf(err, "put %q/%q", dkey, iod.Akey)
			}
		}
		idx, err := tx.CreateBucket(h.index, nil)
		if err != nil {
			return err
		}
		return errors.Wrapf(idx.Put(dkey, indexMarker), "index %q", dkey)
	})
	if err != nil {
		return err
	}
	h.kv.debug("engine: UPDATE", slog.String("oid", h.oid.String()), slog.String("dkey", string(dkey)), slog.Int("iods", len(iods)))
	return nil
}

func validateUpdateIOD(iod *IOD) error {
	const op = "update"
	if len(iod.Akey) == 0 {
		return errf(CodeIllegalArgument, op, nil, nil, "empty akey")
	}
	if len(iod.Data) == 0 {
		return errf(CodeOperationFailed, op, iod.Akey, nil, "no data to write")
	}
	if iod.RecSize == 0 {
		return errf(CodeIllegalArgument, op, iod.Akey, nil, "record size must be positive")
	}
	switch iod.Kind {
	case KindSingle:
		if uint32(len(iod.Data)) != iod.RecSize {
			return errf(CodeIllegalArgument, op, iod.Akey, nil, "single value of %d bytes with record size %d", len(iod.Data), iod.RecSize)
		}
	case KindArray:
		rs := uint64(iod.RecSize)
		if uint64(len(iod.Data))%rs != 0 {
			return errf(CodeIllegalArgument, op, iod.Akey, nil, "%d bytes is not a whole number of %d-byte records", len(iod.Data), iod.RecSize)
		}
		if iod.Offset%rs != 0 {
			return errf(CodeIllegalArgument, op, iod.Akey, nil, "offset %d is not aligned to record size %d", iod.Offset, iod.RecSize)
		}
	default:
		return errf(CodeIllegalArgument, op, iod.Akey, nil, "invalid kind %v", iod.Kind)
	}
	return nil
}

func applyUpdate(old *akeyValue, iod *IOD) (*akeyValue, error) {
	const op = "update"
	if old != nil {
		if old.Kind != iod.Kind {
			return nil, errf(CodeIllegalArgument, op, iod.Akey, nil, "kind %v does not match stored %v", iod.Kind, old.Kind)
		}
		if old.RecSize != iod.RecSize {
			return nil, errf(CodeIllegalArgument, op, iod.Akey, nil, "record size %d does not match stored %d", iod.RecSize, old.RecSize)
		}
	}
	if iod.Kind == KindSingle {
		return &akeyValue{Kind: KindSingle, RecSize: iod.RecSize, Data: slices.Clone(iod.Data)}, nil
	}

	var data []byte
	if old != nil {
		data = old.Data
	}
	end := iod.Offset + uint64(len(iod.Data))
	if end > uint64(len(data)) {
		data = append(data, make([]byte, end-uint64(len(data)))...)
	}
	copy(data[iod.Offset:end], iod.Data)
	return &akeyValue{Kind: KindArray, RecSize: iod.RecSize, Data: data}, nil
}

func (h *kvHandle) Fetch(dkey []byte, iods []IOD) error {
	const op = "fetch"
	if err := h.check(op); err != nil {
		return err
	}
	if len(dkey) == 0 {
		return errf(CodeIllegalArgument, op, nil, nil, "empty dkey")
	}
	for i := range iods {
		iods[i].ActualRecSize, iods[i].ActualSize, iods[i].Mismatch = 0, 0, false
	}

	err := h.kv.read(func(tx storageTx) error {
		b := tx.Bucket(h.data, dkey)
		if b == nil {
			return nil
		}
		for i := range iods {
			iod := &iods[i]
			if len(iod.Akey) == 0 {
				return errf(CodeIllegalArgument, op, nil, nil, "empty akey")
			}
			raw := b.Get(iod.Akey)
			if raw == nil {
				continue
			}
			v, err := decodeAkeyValue(raw)
			if err != nil {
				return err
			}
			if err := fetchInto(iod, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	h.kv.debug("engine: FETCH", slog.String("oid", h.oid.String()), slog.String("dkey", string(dkey)), slog.Int("iods", len(iods)))
	return nil
}

func fetchInto(iod *IOD, v *akeyValue) error {
	const op = "fetch"
	if v.Kind != iod.Kind {
		return errf(CodeIllegalArgument, op, iod.Akey, nil, "kind %v does not match stored %v", iod.Kind, v.Kind)
	}
	iod.ActualRecSize = v.RecSize
	if iod.RecSize != v.RecSize {
		iod.Mismatch = true
		return nil
	}
	switch v.Kind {
	case KindSingle:
		if len(iod.Data) < len(v.Data) {
			return &Error{Code: CodeRecordTooBig, Op: op, Akey: iod.Akey, ActualRecSize: v.RecSize,
				Msg: "buffer cannot hold the record"}
		}
		iod.ActualSize = uint32(copy(iod.Data, v.Data))
	default:
		if iod.Offset >= uint64(len(v.Data)) {
			return nil
		}
		iod.ActualSize = uint32(copy(iod.Data, v.Data[iod.Offset:]))
	}
	return nil
}

func (h *kvHandle) Punch() error {
	const op = "punch"
	if err := h.check(op); err != nil {
		return err
	}
	err := h.kv.write(func(tx storageTx) error {
		for _, name := range [][]byte{h.data, h.index} {
			if err := tx.DeleteBucket(name, nil); err != nil && err != errBucketNotFound {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	h.kv.debug("engine: PUNCH", slog.String("oid", h.oid.String()))
	return nil
}

func (h *kvHandle) PunchDkeys(dkeys [][]byte) error {
	const op = "punch_dkeys"
	if err := h.check(op); err != nil {
		return err
	}
	return h.kv.write(func(tx storageTx) error {
		for _, dkey := range dkeys {
			if len(dkey) == 0 {
				return errf(CodeIllegalArgument, op, nil, nil, "empty dkey")
			}
			if err := h.removeDkey(tx, dkey); err != nil {
				return err
			}
		}
		return nil
	})
}

func (h *kvHandle) removeDkey(tx storageTx, dkey []byte) error {
	if err := tx.DeleteBucket(h.data, dkey); err != nil && err != errBucketNotFound {
		return err
	}
	if idx := tx.Bucket(h.index, nil); idx != nil {
		return idx.Delete(dkey)
	}
	return nil
}

func (h *kvHandle) PunchAkeys(dkey []byte, akeys [][]byte) error {
	const op = "punch_akeys"
	if err := h.check(op); err != nil {
		return err
	}
	if len(dkey) == 0 {
		return errf(CodeIllegalArgument, op, nil, nil, "empty dkey")
	}
	return h.kv.write(func(tx storageTx) error {
		b := tx.Bucket(h.data, dkey)
		if b == nil {
			return nil
		}
		for _, akey := range akeys {
			if len(akey) == 0 {
				return errf(CodeIllegalArgument, op, nil, nil, "empty akey")
			}
			if err := b.Delete(akey); err != nil {
				return err
			}
		}
		if k, _ := b.Cursor().First(); k == nil {
			return h.removeDkey(tx, dkey)
		}
		return nil
	})
}

func (h *kvHandle) ListKeys(req ListRequest) (ListResult, error) {
	const op = "list"
	var res ListResult
	if err := h.check(op); err != nil {
		return res, err
	}
	if req.MaxKeys <= 0 || req.MaxKeyLen <= 0 {
		return res, errf(CodeIllegalArgument, op, nil, nil, "max keys %d and max key len %d must be positive", req.MaxKeys, req.MaxKeyLen)
	}
	scope := scopeHash(h.oid, req.Dkey)
	last, err := decodeAnchor(req.Anchor, scope)
	if err != nil {
		return res, err
	}

	err = h.kv.read(func(tx storageTx) error {
		var b storageBucket
		if req.Dkey == nil {
			b = tx.Bucket(h.index, nil)
		} else {
			b = tx.Bucket(h.data, req.Dkey)
		}
		if b == nil {
			res.End = true
			return nil
		}

		c := b.Cursor()
		var k []byte
		if last == nil {
			k, _ = c.First()
		} else {
			k, _ = c.Seek(last)
			if k != nil && bytes.Equal(k, last) {
				k, _ = c.Next()
			}
		}
		for k != nil && len(res.Keys) < req.MaxKeys {
			if len(k) > req.MaxKeyLen {
				if len(res.Keys) == 0 {
					res.KeyTooBig = true
					res.SuggestedKeyLen = len(k)
				}
				return nil
			}
			key := slices.Clone(k)
			res.Keys = append(res.Keys, key)
			last = key
			k, _ = c.Next()
		}
		res.End = (k == nil)
		return nil
	})
	if err != nil {
		return ListResult{}, err
	}
	if res.KeyTooBig {
		res.Anchor = req.Anchor
	} else {
		res.Anchor = encodeAnchor(scope, last)
	}
	h.kv.debug("engine: LIST", slog.String("oid", h.oid.String()), slog.Int("keys", len(res.Keys)), slog.Bool("end", res.End), slog.Bool("key2big", res.KeyTooBig))
	return res, nil
}

func (h *kvHandle) RecordSize(dkey, akey []byte) (uint32, error) {
	const op = "record_size"
	if err := h.check(op); err != nil {
		return 0, err
	}
	if len(dkey) == 0 || len(akey) == 0 {
		return 0, errf(CodeIllegalArgument, op, akey, nil, "empty key")
	}
	var size uint32
	err := h.kv.read(func(tx storageTx) error {
		b := tx.Bucket(h.data, dkey)
		if b == nil {
			return nil
		}
		raw := b.Get(akey)
		if raw == nil {
			return nil
		}
		v, err := decodeAkeyValue(raw)
		if err != nil {
			return err
		}
		size = v.RecSize
		return nil
	})
	return size, err
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
