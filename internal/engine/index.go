package engine

// location identifies where a record lives on disk: which segment
// generation, the byte offset of its length prefix, and the total
// framed length (prefix + payload).
type location struct {
	gen    uint64
	offset uint64
	length uint64
}

// index is the in-memory key to location map. A hash map is
// sufficient for the point-query workload this store serves; an
// ordered map would only earn its keep if range queries were ever
// added.
type index map[string]location

func newIndex() index {
	return make(index)
}

// put records loc for key and returns the location it displaced, if
// any existed.
func (idx index) put(key string, loc location) (old location, displaced bool) {
	old, displaced = idx[key]
	idx[key] = loc
	return old, displaced
}

// delete removes key from the index and returns the location it
// displaced, if any existed.
func (idx index) delete(key string) (old location, displaced bool) {
	old, displaced = idx[key]
	delete(idx, key)
	return old, displaced
}
