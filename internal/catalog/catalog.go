// Package catalog selects the SSTable objects of a host that belong to a
// keyspace and, optionally, a table.
package catalog

import (
	"context"
	"path"
	"strings"

	"github.com/yabinmeng/opscs3restore/internal/backend"
	"github.com/yabinmeng/opscs3restore/internal/debug"
	"github.com/yabinmeng/opscs3restore/internal/errors"
	"github.com/yabinmeng/opscs3restore/internal/manifest"
)

// DefaultSSTableMarker is the directory below a host holding SSTable objects.
const DefaultSSTableMarker = "sstables"

// ErrEmptyIndex is returned by Run when the manifest index has no records.
var ErrEmptyIndex = errors.New("manifest index is empty")

// Criteria selects records by keyspace and table. An empty Table matches all
// tables of the keyspace.
type Criteria struct {
	Keyspace string
	Table    string
}

// Matches reports whether rec satisfies the criteria. Names are compared
// case-insensitively.
func (c Criteria) Matches(rec manifest.Record) bool {
	if !strings.EqualFold(rec.Keyspace, c.Keyspace) {
		return false
	}
	return c.Table == "" || strings.EqualFold(rec.Table, c.Table)
}

// Match is a listed object together with its manifest record.
type Match struct {
	Object backend.ObjectInfo
	Record manifest.Record
}

// Filter lists the SSTable objects of a host and selects those whose base name
// is in the manifest index and whose record matches the criteria.
type Filter struct {
	Lister        backend.Lister
	BasePrefix    string
	SSTableMarker string
}

// New returns a Filter using the default layout.
func New(l backend.Lister) *Filter {
	return &Filter{
		Lister:        l,
		BasePrefix:    manifest.DefaultBasePrefix,
		SSTableMarker: DefaultSSTableMarker,
	}
}

// Prefix returns the listing prefix for the host.
func (f *Filter) Prefix(hostID string) string {
	return path.Join(f.BasePrefix, hostID, f.SSTableMarker) + "/"
}

// Run lists all SSTable objects of hostID and calls fn for every match in
// listing order. Returning an error from fn aborts the listing. The matches
// are returned as well.
func (f *Filter) Run(ctx context.Context, hostID string, idx *manifest.Index, crit Criteria, fn func(Match) error) ([]Match, error) {
	if idx.Len() == 0 {
		return nil, ErrEmptyIndex
	}

	prefix := f.Prefix(hostID)
	debug.Log("listing %v for %v", prefix, crit)

	var (
		matches []Match
		orphans int
	)
	err := f.Lister.List(ctx, prefix, func(fi backend.ObjectInfo) error {
		rec, ok := idx.Lookup(path.Base(fi.Key))
		if !ok {
			debug.Log("object %v is not in the manifest", fi.Key)
			orphans++
			return nil
		}
		if !crit.Matches(rec) {
			return nil
		}

		m := Match{Object: fi, Record: rec}
		matches = append(matches, m)
		if fn != nil {
			return fn(m)
		}
		return nil
	})
	if err != nil {
		return matches, errors.Wrap(err, "List")
	}

	debug.Log("%d matches, %d orphans below %v", len(matches), orphans, prefix)
	return matches, nil
}
