package domain

import (
	"fmt"
	"reflect"
	"sort"
	"time"
)

// ResourceKind names one sub-resource fetched by an adapter during a cycle
// (e.g. "device", "smartbridge", "account").
type ResourceKind string

// SubRecord is one vendor-shaped record produced wholesale by a fetch.
// Validate reports missing required fields; implementations are value types.
type SubRecord interface {
	Validate() error
}

// Snapshot is the immutable result of one complete, successful fetch cycle.
// It is never patched: a new cycle produces a new Snapshot.
type Snapshot struct {
	version   uint64
	fetchedAt time.Time
	records   map[ResourceKind]SubRecord
}

func NewSnapshot(version uint64, fetchedAt time.Time, records map[ResourceKind]SubRecord) *Snapshot {
	cp := make(map[ResourceKind]SubRecord, len(records))
	for k, v := range records {
		cp[k] = v
	}
	return &Snapshot{
		version:   version,
		fetchedAt: fetchedAt,
		records:   cp,
	}
}

func (s *Snapshot) Version() uint64 {
	return s.version
}

func (s *Snapshot) FetchedAt() time.Time {
	return s.fetchedAt
}

func (s *Snapshot) Record(kind ResourceKind) (SubRecord, bool) {
	if s == nil {
		return nil, false
	}
	r, ok := s.records[kind]
	return r, ok
}

// Kinds returns the resource kinds held by the snapshot, sorted.
func (s *Snapshot) Kinds() []ResourceKind {
	kinds := make([]ResourceKind, 0, len(s.records))
	for k := range s.records {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Records returns a copy of the record map, for exports.
func (s *Snapshot) Records() map[ResourceKind]SubRecord {
	cp := make(map[ResourceKind]SubRecord, len(s.records))
	for k, v := range s.records {
		cp[k] = v
	}
	return cp
}

// SameRecords reports whether both snapshots carry equal sub-records,
// regardless of version and fetch time.
func (s *Snapshot) SameRecords(other *Snapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	return reflect.DeepEqual(s.records, other.records)
}

// RecordAs returns the sub-record of the given kind typed as T. A missing or
// mistyped record is a shape error.
func RecordAs[T SubRecord](s *Snapshot, kind ResourceKind) (T, error) {
	var zero T
	r, ok := s.Record(kind)
	if !ok {
		return zero, NewFetchError(ErrShape, kind, fmt.Errorf("record %q not present", kind))
	}
	t, ok := r.(T)
	if !ok {
		return zero, NewFetchError(ErrShape, kind, fmt.Errorf("record %q is %T, want %T", kind, r, zero))
	}
	return t, nil
}
