package objio

// window is the byte range of a fetch expressed in stored coordinates.
type window struct {
	offset uint64
	size   uint32
}

// reconcile maps a fetch the caller described in terms of declared record
// size onto the record size actually stored. ok is false when capacity
// cannot hold a single stored record.
//
// For ARRAY values, offset is reinterpreted as a record index in the
// caller's sizing and capacity is rounded down to whole stored records.
func reconcile(kind Kind, declared uint32, offset uint64, capacity, actual uint32) (w window, ok bool) {
	if actual == 0 {
		return window{}, true
	}
	if kind == KindSingle {
		if capacity < actual {
			return window{}, false
		}
		return window{0, capacity}, true
	}
	rounded := capacity - capacity%actual
	if rounded < actual {
		return window{}, false
	}
	idx := offset / uint64(declared)
	return window{idx * uint64(actual), rounded}, true
}
