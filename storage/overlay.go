package storage

import (
	"errors"
	"sort"
)

var errOverlayClosed = errors.New("storage: overlay already committed or discarded")

type pendingValue struct {
	value   []byte
	deleted bool
}

// Overlay buffers writes on top of a Database until Commit. Reads observe the
// buffered writes first, so every participant of a transaction sees the same
// speculative view. Discard drops the buffer without touching the base.
//
// Overlay is not safe for concurrent use.
type Overlay struct {
	base    Database
	pending map[string]pendingValue
	closed  bool
}

// NewOverlay opens a write buffer over the provided database.
func NewOverlay(base Database) *Overlay {
	return &Overlay{base: base, pending: make(map[string]pendingValue)}
}

// Get returns the buffered value when present, falling back to the base store.
func (o *Overlay) Get(key []byte) ([]byte, error) {
	if o.closed {
		return nil, errOverlayClosed
	}
	if entry, ok := o.pending[string(key)]; ok {
		if entry.deleted {
			return nil, ErrNotFound
		}
		return append([]byte(nil), entry.value...), nil
	}
	return o.base.Get(key)
}

// Has reports whether the key is visible through the overlay.
func (o *Overlay) Has(key []byte) (bool, error) {
	if o.closed {
		return false, errOverlayClosed
	}
	if entry, ok := o.pending[string(key)]; ok {
		return !entry.deleted, nil
	}
	return o.base.Has(key)
}

// Put buffers a write.
func (o *Overlay) Put(key []byte, value []byte) error {
	if o.closed {
		return errOverlayClosed
	}
	o.pending[string(key)] = pendingValue{value: append([]byte(nil), value...)}
	return nil
}

// Delete buffers a removal.
func (o *Overlay) Delete(key []byte) error {
	if o.closed {
		return errOverlayClosed
	}
	o.pending[string(key)] = pendingValue{deleted: true}
	return nil
}

// Dirty reports how many keys have been touched.
func (o *Overlay) Dirty() int { return len(o.pending) }

// Commit flushes every buffered write to the base store as one batch. The
// overlay cannot be reused afterwards.
func (o *Overlay) Commit() error {
	if o.closed {
		return errOverlayClosed
	}
	keys := make([]string, 0, len(o.pending))
	for k := range o.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := new(Batch)
	for _, k := range keys {
		entry := o.pending[k]
		if entry.deleted {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), entry.value)
	}
	if err := o.base.Write(batch); err != nil {
		return err
	}
	o.closed = true
	o.pending = nil
	return nil
}

// Discard drops the buffered writes.
func (o *Overlay) Discard() {
	o.closed = true
	o.pending = nil
}
