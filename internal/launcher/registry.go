package launcher

import (
	"cmp"
	"slices"

	"github.com/JPEWdev/oe-doom-launcher/internal/discovery"
)

// Registry holds the currently-known client-kind records, ordered by the
// election comparator. It is confined to the coordination loop and has no
// side effects; timer and process decisions belong to the callers.
type Registry struct {
	records []discovery.Record
}

// compareRecords is the election order: hosting-capable peers first, then
// name ascending. The order is derived purely from record content, so every
// machine observing the same set computes the same winner.
func compareRecords(a, b discovery.Record) int {
	if a.CanHost != b.CanHost {
		if a.CanHost {
			return -1
		}
		return 1
	}
	return cmp.Compare(a.Key.Name, b.Key.Name)
}

// Upsert inserts rec at its comparator position, first removing any record
// with the same identity key. It reports whether the key is genuinely new
// and whether the record now in the registry is foreign.
func (r *Registry) Upsert(rec discovery.Record) (isNew, foreign bool) {
	existed, _ := r.Remove(rec.Key)

	at, _ := slices.BinarySearchFunc(r.records, rec, compareRecords)
	r.records = slices.Insert(r.records, at, rec)

	return !existed, !rec.Flags.Self
}

// Remove deletes the record with the given key, reporting whether it existed
// and whether it was foreign.
func (r *Registry) Remove(key discovery.Key) (existed, foreign bool) {
	for i, rec := range r.records {
		if rec.Key == key {
			r.records = slices.Delete(r.records, i, i+1)
			return true, !rec.Flags.Self
		}
	}
	return false, false
}

// Best returns the first record in election order.
func (r *Registry) Best() (discovery.Record, bool) {
	if len(r.records) == 0 {
		return discovery.Record{}, false
	}
	return r.records[0], true
}

// ForeignCount returns the number of records not advertised by us.
func (r *Registry) ForeignCount() int {
	n := 0
	for _, rec := range r.records {
		if !rec.Flags.Self {
			n++
		}
	}
	return n
}

// Len returns the total number of records.
func (r *Registry) Len() int {
	return len(r.records)
}
