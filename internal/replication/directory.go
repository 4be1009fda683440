package replication

import (
	"sort"

	"github.com/energizer-project/netsync/internal/protocol"
)

// Directory maps NetworkIDs to local handles. Each peer keeps its own;
// the server's indexes authoritative records, the client's owns the
// instances it spawned. A Directory is not safe for concurrent use.
type Directory[H any] struct {
	entries map[protocol.NetworkID]H
}

// NewDirectory creates an empty directory.
func NewDirectory[H any]() *Directory[H] {
	return &Directory[H]{entries: make(map[protocol.NetworkID]H)}
}

// Register binds id to h, replacing any previous handle.
func (d *Directory[H]) Register(id protocol.NetworkID, h H) {
	d.entries[id] = h
}

// Lookup returns the handle bound to id.
func (d *Directory[H]) Lookup(id protocol.NetworkID) (H, bool) {
	h, ok := d.entries[id]
	return h, ok
}

// Contains reports whether id is registered.
func (d *Directory[H]) Contains(id protocol.NetworkID) bool {
	_, ok := d.entries[id]
	return ok
}

// Remove unbinds id and returns the handle it had.
func (d *Directory[H]) Remove(id protocol.NetworkID) (H, bool) {
	h, ok := d.entries[id]
	if ok {
		delete(d.entries, id)
	}
	return h, ok
}

// Len returns the number of entries.
func (d *Directory[H]) Len() int {
	return len(d.entries)
}

// IDs returns every registered id in ascending order.
func (d *Directory[H]) IDs() []protocol.NetworkID {
	ids := make([]protocol.NetworkID, 0, len(d.entries))
	for id := range d.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Each calls fn for every entry in ascending id order.
func (d *Directory[H]) Each(fn func(id protocol.NetworkID, h H)) {
	for _, id := range d.IDs() {
		fn(id, d.entries[id])
	}
}

// Clear removes every entry, calling fn (when non-nil) on each first.
func (d *Directory[H]) Clear(fn func(id protocol.NetworkID, h H)) {
	if fn != nil {
		d.Each(fn)
	}
	d.entries = make(map[protocol.NetworkID]H)
}
