package lookup

// Index is an arena of records plus an ID-keyed position map. It is built once
// per run and never mutated afterwards, so concurrent readers need no locking.
//
// Reference tables are loaded whole. That bounds the run to tables that fit in
// memory, which holds for studio exports (thousands to tens of thousands of rows).
type Index[T any] struct {
	records []T
	byID    map[string]int
}

func newIndex[T any](records []T, id func(T) string) *Index[T] {
	idx := &Index[T]{
		records: make([]T, 0, len(records)),
		byID:    make(map[string]int, len(records)),
	}
	for _, record := range records {
		key := id(record)
		if key == "" {
			continue
		}
		// Later duplicates win, matching a map assignment over the export.
		if pos, ok := idx.byID[key]; ok {
			idx.records[pos] = record
			continue
		}
		idx.byID[key] = len(idx.records)
		idx.records = append(idx.records, record)
	}
	return idx
}

// Get returns the record stored under id. A miss is a normal outcome.
func (i *Index[T]) Get(id string) (T, bool) {
	var zero T
	if i == nil || id == "" {
		return zero, false
	}
	pos, ok := i.byID[id]
	if !ok {
		return zero, false
	}
	return i.records[pos], true
}

func (i *Index[T]) Len() int {
	if i == nil {
		return 0
	}
	return len(i.records)
}

// Each visits records in load order until fn returns false.
func (i *Index[T]) Each(fn func(T) bool) {
	if i == nil {
		return
	}
	for _, record := range i.records {
		if !fn(record) {
			return
		}
	}
}
