package objio

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/andreyvit/objio/engine"
)

// Object is one object of the store. It starts closed; Open binds it to an
// engine handle and Close releases the handle.
//
// Data operations may run concurrently with each other as long as each
// descriptor is driven by one goroutine at a time.
type Object struct {
	c  *Client
	id ObjectID

	mu sync.RWMutex
	h  engine.Handle
}

func (o *Object) ID() ObjectID {
	return o.id
}

func (o *Object) Client() *Client {
	return o.c
}

func (o *Object) IsOpen() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.h != nil
}

// Open opens the object. The id must be encoded.
func (o *Object) Open() error {
	const op = "open"
	if !o.id.encoded {
		return &IOError{Op: op, OID: o.id, Code: CodeIllegalArgument, Err: ErrNotEncoded}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.h != nil {
		return &IOError{Op: op, OID: o.id, Code: CodeIllegalArgument, Msg: "already open"}
	}
	h, err := o.c.eng.Open(o.id.engineOID())
	if err != nil {
		return o.engineFailure(op, "", err, "failed to open object")
	}
	o.h = h
	o.c.debug("objio: OPEN", slog.String("oid", o.id.String()))
	return nil
}

// Close closes the object handle. Closing a closed object does nothing.
func (o *Object) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.h == nil {
		return nil
	}
	h := o.h
	o.h = nil
	if err := h.Close(); err != nil {
		return o.engineFailure("close", "", err, "failed to close object")
	}
	return nil
}

// acquire read-locks the object and returns its handle. On success the
// caller must RUnlock.
func (o *Object) acquire(op string) (engine.Handle, error) {
	o.mu.RLock()
	if o.h == nil {
		o.mu.RUnlock()
		return nil, &IOError{Op: op, OID: o.id, Code: CodeIllegalArgument, Err: ErrObjectClosed}
	}
	return o.h, nil
}

func (o *Object) annotate(err error, dkey string) error {
	var ioe *IOError
	if errors.As(err, &ioe) {
		if ioe.OID == (ObjectID{}) {
			ioe.OID = o.id
		}
		if ioe.Dkey == "" {
			ioe.Dkey = dkey
		}
	}
	return err
}

func (o *Object) engineFailure(op, dkey string, err error, format string, args ...any) error {
	e := engineErr(op, o.id, dkey, err, format, args...)
	if e.Code == CodeOperationFailed {
		o.c.warn("objio: "+strings.ToUpper(op)+" failed", e, slog.String("oid", o.id.String()), slog.String("dkey", dkey))
	}
	return e
}

// NewUpdateDesc returns a descriptor writing entries under dkey.
func (o *Object) NewUpdateDesc(dkey string, entries ...*Entry) (*DataDesc, error) {
	return newDataDesc(o.c.arena, ModeUpdate, dkey, entries)
}

// NewFetchDesc returns a descriptor reading entries under dkey, allocating a
// result buffer of the requested capacity for every entry.
func (o *Object) NewFetchDesc(dkey string, entries ...*Entry) (*DataDesc, error) {
	return newDataDesc(o.c.arena, ModeFetch, dkey, entries)
}

// NewReusableDesc returns a descriptor with preallocated entries of the
// given kind and record size. Set the dkey with SetDkey and prime entries
// with Rebind/RebindFetch before each call.
func (o *Object) NewReusableDesc(mode Mode, kind Kind, recSize uint32, opt ReusableOptions) (*DataDesc, error) {
	return newReusableDataDesc(o.c.arena, mode, kind, recSize, opt)
}

// NewDkeyDesc returns a descriptor listing the dkeys of the object.
func (o *Object) NewDkeyDesc(opt KeyDescOptions) (*KeyDesc, error) {
	return newKeyDesc(o.c.arena, "", false, opt)
}

// NewAkeyDesc returns a descriptor listing the akeys under dkey.
func (o *Object) NewAkeyDesc(dkey string, opt KeyDescOptions) (*KeyDesc, error) {
	return newKeyDesc(o.c.arena, dkey, true, opt)
}

// Update writes the entries of d. Either every entry is stored or none is.
// On success the entry buffers are consumed.
func (o *Object) Update(d *DataDesc) error {
	const op = "update"
	h, err := o.acquire(op)
	if err != nil {
		return err
	}
	defer o.mu.RUnlock()

	entries, err := d.active(op, ModeUpdate)
	if err != nil {
		return o.annotate(err, d.dkey)
	}
	defer unprime(entries)

	if err := h.Update([]byte(d.dkey), updateIODs(entries)); err != nil {
		return o.engineFailure(op, d.dkey, err, "failed to update object")
	}
	for _, e := range entries {
		e.buf.consume()
	}
	o.c.debug("objio: UPDATE", slog.String("oid", o.id.String()), slog.String("dkey", d.dkey), slog.Int("entries", len(entries)))
	return nil
}

// Fetch reads the entries of d into their buffers. When an entry's record
// size differs from the stored one, its offset and capacity are translated
// into stored records (see ActualRecSize); if the capacity cannot hold one
// stored record, Fetch fails with CodeRecordTooBig and the stored record
// size on the IOError.
func (o *Object) Fetch(d *DataDesc) error {
	const op = "fetch"
	h, err := o.acquire(op)
	if err != nil {
		return err
	}
	defer o.mu.RUnlock()

	entries, err := d.active(op, ModeFetch)
	if err != nil {
		return o.annotate(err, d.dkey)
	}
	defer unprime(entries)

	iods, err := fetchIODs(op, entries)
	if err != nil {
		return o.annotate(err, d.dkey)
	}
	dkey := []byte(d.dkey)
	if err := h.Fetch(dkey, iods); err != nil {
		return o.engineFailure(op, d.dkey, err, "failed to fetch object")
	}

	var retry []engine.IOD
	var retryIdx []int
	for i := range iods {
		iod := &iods[i]
		if !iod.Mismatch {
			continue
		}
		e := entries[i]
		w, ok := reconcile(e.kind, e.recSize, e.offset, e.capacity, iod.ActualRecSize)
		if !ok {
			return &IOError{Op: op, OID: o.id, Dkey: d.dkey, Akey: e.key, Code: CodeRecordTooBig, ActualRecSize: iod.ActualRecSize,
				Msg: fmt.Sprintf("capacity %d cannot hold a record", e.capacity)}
		}
		retry = append(retry, engine.IOD{
			Akey:    iod.Akey,
			Kind:    iod.Kind,
			RecSize: iod.ActualRecSize,
			Offset:  w.offset,
			Data:    iod.Data[:w.size],
		})
		retryIdx = append(retryIdx, i)
	}
	if len(retry) > 0 {
		if err := h.Fetch(dkey, retry); err != nil {
			return o.engineFailure(op, d.dkey, err, "failed to fetch object")
		}
		for j := range retry {
			r, iod := &retry[j], &iods[retryIdx[j]]
			if r.Mismatch {
				return &IOError{Op: op, OID: o.id, Dkey: d.dkey, Akey: string(r.Akey), Code: CodeOperationFailed,
					Msg: fmt.Sprintf("record size changed from %d to %d during fetch", iod.ActualRecSize, r.ActualRecSize)}
			}
			iod.ActualRecSize, iod.ActualSize = r.ActualRecSize, r.ActualSize
		}
	}

	for i, e := range entries {
		e.actualRecSize = iods[i].ActualRecSize
		e.actualSize = iods[i].ActualSize
		e.buf.advance(int(e.actualSize))
	}
	o.c.debug("objio: FETCH", slog.String("oid", o.id.String()), slog.String("dkey", d.dkey), slog.Int("entries", len(entries)), slog.Int("reconciled", len(retry)))
	return nil
}

// ListDkeys returns the next page of dkeys. Check kd.Status afterwards: on
// StatusReachedLimit or StatusKeyTooBig call kd.ContinueList before listing
// again; on StatusEnd stop.
func (o *Object) ListDkeys(kd *KeyDesc) ([]string, error) {
	return o.list("list_dkeys", kd, false)
}

// ListAkeys returns the next page of akeys under kd's dkey. See ListDkeys.
func (o *Object) ListAkeys(kd *KeyDesc) ([]string, error) {
	return o.list("list_akeys", kd, true)
}

func (o *Object) list(op string, kd *KeyDesc, akeys bool) ([]string, error) {
	h, err := o.acquire(op)
	if err != nil {
		return nil, err
	}
	defer o.mu.RUnlock()

	if kd.released {
		return nil, o.annotate(argErrf(op, ErrReleased, ""), kd.dkey)
	}
	if kd.akeys != akeys {
		return nil, o.annotate(argErrf(op, nil, "descriptor lists the other kind of keys"), kd.dkey)
	}
	switch kd.status {
	case StatusEnd:
		return nil, nil
	case StatusReachedLimit, StatusKeyTooBig:
		return nil, o.annotate(argErrf(op, nil, "status is %v, call ContinueList first", kd.status), kd.dkey)
	}

	pageStart := slices.Clone(kd.token())
	var keys []string
	for len(keys) < kd.opt.PageCapacity {
		res, err := h.ListKeys(engine.ListRequest{
			Dkey:      kd.scope(),
			Anchor:    kd.token(),
			MaxKeys:   min(kd.opt.BatchSize, kd.opt.PageCapacity-len(keys)),
			MaxKeyLen: kd.opt.KeyLen,
		})
		if err != nil {
			kd.storeToken(pageStart)
			return nil, o.engineFailure(op, kd.dkey, err, "failed to list keys")
		}
		if res.KeyTooBig {
			kd.storeToken(pageStart)
			kd.suggestedKeyLen = res.SuggestedKeyLen
			kd.setStatus(StatusKeyTooBig)
			o.c.debug("objio: LIST", slog.String("oid", o.id.String()), slog.String("dkey", kd.dkey), slog.String("status", kd.status.String()), slog.Int("suggested_key_len", res.SuggestedKeyLen))
			return nil, nil
		}
		for _, k := range res.Keys {
			keys = append(keys, string(k))
		}
		kd.storeToken(res.Anchor)
		if res.End {
			kd.setStatus(StatusEnd)
			break
		}
		if len(res.Keys) == 0 {
			kd.storeToken(pageStart)
			return nil, &IOError{Op: op, OID: o.id, Dkey: kd.dkey, Code: CodeOperationFailed, Msg: "engine returned no keys before the end"}
		}
	}
	if kd.status != StatusEnd {
		kd.setStatus(StatusReachedLimit)
	}
	o.c.debug("objio: LIST", slog.String("oid", o.id.String()), slog.String("dkey", kd.dkey), slog.Int("keys", len(keys)), slog.String("status", kd.status.String()))
	return keys, nil
}

// Punch removes the whole object.
func (o *Object) Punch() error {
	const op = "punch"
	h, err := o.acquire(op)
	if err != nil {
		return err
	}
	defer o.mu.RUnlock()

	if err := h.Punch(); err != nil {
		return o.engineFailure(op, "", err, "failed to punch object")
	}
	o.c.debug("objio: PUNCH", slog.String("oid", o.id.String()))
	return nil
}

// PunchDkeys removes the given dkeys with everything under them. Absent
// dkeys are ignored.
func (o *Object) PunchDkeys(dkeys ...string) error {
	const op = "punch_dkeys"
	h, err := o.acquire(op)
	if err != nil {
		return err
	}
	defer o.mu.RUnlock()

	raw, err := rawKeys(op, dkeys)
	if err != nil {
		return o.annotate(err, "")
	}
	if err := h.PunchDkeys(raw); err != nil {
		return o.engineFailure(op, "", err, "failed to punch dkeys")
	}
	o.c.debug("objio: PUNCH", slog.String("oid", o.id.String()), slog.Any("dkeys", dkeys))
	return nil
}

// PunchAkeys removes the given akeys under dkey. Absent akeys are ignored.
func (o *Object) PunchAkeys(dkey string, akeys ...string) error {
	const op = "punch_akeys"
	h, err := o.acquire(op)
	if err != nil {
		return err
	}
	defer o.mu.RUnlock()

	if err := validateKey(dkey); err != nil {
		return o.annotate(argErrf(op, nil, "dkey is blank"), "")
	}
	raw, err := rawKeys(op, akeys)
	if err != nil {
		return o.annotate(err, dkey)
	}
	if err := h.PunchAkeys([]byte(dkey), raw); err != nil {
		return o.engineFailure(op, dkey, err, "failed to punch akeys")
	}
	o.c.debug("objio: PUNCH", slog.String("oid", o.id.String()), slog.String("dkey", dkey), slog.Any("akeys", akeys))
	return nil
}

// RecordSize returns the record size stored for akey under dkey, or 0 if
// there is no such akey.
func (o *Object) RecordSize(dkey, akey string) (uint32, error) {
	const op = "record_size"
	h, err := o.acquire(op)
	if err != nil {
		return 0, err
	}
	defer o.mu.RUnlock()

	if validateKey(dkey) != nil || validateKey(akey) != nil {
		return 0, &IOError{Op: op, OID: o.id, Dkey: dkey, Akey: akey, Code: CodeIllegalArgument, Msg: "key is blank"}
	}
	size, err := h.RecordSize([]byte(dkey), []byte(akey))
	if err != nil {
		return 0, o.engineFailure(op, dkey, err, "failed to get record size")
	}
	return size, nil
}

func rawKeys(op string, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, argErrf(op, nil, "no keys")
	}
	raw := make([][]byte, len(keys))
	for i, k := range keys {
		if err := validateKey(k); err != nil {
			return nil, argErrf(op, nil, "key %d is blank", i)
		}
		raw[i] = []byte(k)
	}
	return raw, nil
}
