package tiletable

import "fmt"

// Index maps (level, column, row) to a tile record. Records with a
// non-zero Z (focal plane) are never returned.
type Index interface {
	Lookup(level, x, y int) (Record, bool, error)
	Close() error
}

// IndexKind selects an Index implementation.
type IndexKind string

// Index kinds
const (
	IndexLinear IndexKind = "linear"
	IndexMap    IndexKind = "map"
	IndexSQLite IndexKind = "sqlite"
)

// ParseIndexKind validates an index kind name. The empty string selects
// the map index.
func ParseIndexKind(s string) (IndexKind, error) {
	switch k := IndexKind(s); k {
	case "":
		return IndexMap, nil
	case IndexLinear, IndexMap, IndexSQLite:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownIndex, s)
}

// LinearIndex scans the record table on every lookup.
type LinearIndex struct {
	records []Record
}

// NewLinearIndex returns an index over records without copying them.
func NewLinearIndex(records []Record) *LinearIndex {
	return &LinearIndex{records: records}
}

// Lookup returns the last record matching the coordinates, so duplicates
// resolve like the other indexes.
func (ix *LinearIndex) Lookup(level, x, y int) (Record, bool, error) {
	for i := len(ix.records) - 1; i >= 0; i-- {
		rec := ix.records[i]
		if int(rec.Level) == level && int(rec.X) == x && int(rec.Y) == y && rec.Z == 0 {
			return rec, true, nil
		}
	}
	return Record{}, false, nil
}

// Close is a no-op.
func (ix *LinearIndex) Close() error { return nil }

type tileKey struct {
	level, x, y uint32
}

// MapIndex is a hash index built once from the record table.
type MapIndex struct {
	records map[tileKey]Record
}

// NewMapIndex builds a hash index. Later records win over earlier ones
// with the same coordinates.
func NewMapIndex(records []Record) *MapIndex {
	m := make(map[tileKey]Record, len(records))
	for _, rec := range records {
		if rec.Z != 0 {
			continue
		}
		m[tileKey{rec.Level, rec.X, rec.Y}] = rec
	}
	return &MapIndex{records: m}
}

// Lookup returns the record at the coordinates.
func (ix *MapIndex) Lookup(level, x, y int) (Record, bool, error) {
	if level < 0 || x < 0 || y < 0 {
		return Record{}, false, nil
	}
	rec, ok := ix.records[tileKey{uint32(level), uint32(x), uint32(y)}]
	return rec, ok, nil
}

// Close is a no-op.
func (ix *MapIndex) Close() error { return nil }
