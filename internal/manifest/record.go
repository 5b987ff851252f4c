package manifest

import "fmt"

// Record describes one SSTable constituent file listed in a manifest.
type Record struct {
	FileName   string
	Uniquifier string
	Keyspace   string
	Table      string
	Version    string
}

func (r Record) String() string {
	return fmt.Sprintf("%v [%v:%v]", r.FileName, r.Keyspace, r.Table)
}

// Fragment returns the key shared by all constituent files of one SSTable.
func (r Record) Fragment() string {
	return r.Keyspace + "/" + r.Table + "/" + r.Uniquifier
}

// Index maps file names to records. It is immutable once Parse returns it and
// keeps the order in which records appear in the manifest.
type Index struct {
	records []Record
	byName  map[string]int

	// Skipped holds a *ParseError for every manifest entry that was ignored.
	Skipped []error
}

func newIndex() *Index {
	return &Index{byName: make(map[string]int)}
}

func (idx *Index) insert(rec Record) {
	if pos, ok := idx.byName[rec.FileName]; ok {
		idx.records[pos] = rec
		return
	}
	idx.byName[rec.FileName] = len(idx.records)
	idx.records = append(idx.records, rec)
}

// Lookup returns the record for the file name.
func (idx *Index) Lookup(name string) (Record, bool) {
	if idx == nil {
		return Record{}, false
	}
	pos, ok := idx.byName[name]
	if !ok {
		return Record{}, false
	}
	return idx.records[pos], true
}

// Len returns the number of records in the index.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.records)
}

// Records returns a copy of all records in manifest order.
func (idx *Index) Records() []Record {
	if idx == nil {
		return nil
	}
	res := make([]Record, len(idx.records))
	copy(res, idx.records)
	return res
}
