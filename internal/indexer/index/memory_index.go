// Package index holds the in-memory inverted bigram index: for every pair of
// adjacent low-ASCII codes, the set of files containing that pair somewhere.
package index

import (
	"slices"
	"unicode/utf8"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/indexer/fileid"
)

// BigramIndex maps bigrams to postings sets of file ids. It is not safe for
// concurrent mutation; callers own it exclusively while building and treat it
// as read-only afterwards.
type BigramIndex struct {
	ids      *fileid.Allocator
	postings map[Bigram]*roaring.Bitmap
	entries  int64
}

// NewBigramIndex returns an empty index with a fresh allocator.
func NewBigramIndex() *BigramIndex {
	return NewBigramIndexWithIDs(fileid.New())
}

// NewBigramIndexWithIDs returns an empty index that resolves file ids through
// ids. Used when reconstructing a persisted index.
func NewBigramIndexWithIDs(ids *fileid.Allocator) *BigramIndex {
	return &BigramIndex{
		ids:      ids,
		postings: make(map[Bigram]*roaring.Bitmap),
	}
}

// IDs exposes the allocator backing this index.
func (x *BigramIndex) IDs() *fileid.Allocator {
	return x.ids
}

// AddEntry inserts fileID into the postings of b. It returns true only on the
// first insertion; repeats change nothing, counters included.
func (x *BigramIndex) AddEntry(b Bigram, fileID uint32) bool {
	set, ok := x.postings[b]
	if !ok {
		set = roaring.New()
		x.postings[b] = set
	}
	if !set.CheckedAdd(fileID) {
		return false
	}
	x.entries++
	return true
}

// AddFile allocates an id for path and indexes every bigram in content.
func (x *BigramIndex) AddFile(path string, content []byte) uint32 {
	id := x.ids.ID(path)
	Scan(content, func(b Bigram) {
		x.AddEntry(b, id)
	})
	return id
}

// Candidates returns the ids of files holding every bigram of query, in
// ascending order. Queries shorter than two characters match nothing.
func (x *BigramIndex) Candidates(query string) []uint32 {
	if utf8.RuneCountInString(query) < 2 {
		return nil
	}
	var acc *roaring.Bitmap
	prev, size := utf8.DecodeRuneInString(query)
	for rest := query[size:]; len(rest) > 0; rest = rest[size:] {
		var cur rune
		cur, size = utf8.DecodeRuneInString(rest)
		b, ok := NewBigram(prev, cur)
		if !ok {
			return nil
		}
		prev = cur
		set, ok := x.postings[b]
		if !ok {
			return nil
		}
		if acc == nil {
			acc = set.Clone()
		} else {
			acc.And(set)
		}
		if acc.IsEmpty() {
			return nil
		}
	}
	return acc.ToArray()
}

// Search returns the paths of candidate files for query. The result is a
// superset of the files that literally contain query.
func (x *BigramIndex) Search(query string) []string {
	ids := x.Candidates(query)
	if len(ids) == 0 {
		return nil
	}
	paths := make([]string, 0, len(ids))
	for _, id := range ids {
		if path, ok := x.ids.Key(id); ok {
			paths = append(paths, path)
		}
	}
	return paths
}

// Contains reports whether fileID is in the postings of b.
func (x *BigramIndex) Contains(b Bigram, fileID uint32) bool {
	set, ok := x.postings[b]
	return ok && set.Contains(fileID)
}

// Each calls fn for every bigram in ascending order with its file ids sorted.
func (x *BigramIndex) Each(fn func(b Bigram, fileIDs []uint32)) {
	keys := make([]Bigram, 0, len(x.postings))
	for b := range x.postings {
		keys = append(keys, b)
	}
	slices.Sort(keys)
	for _, b := range keys {
		fn(b, x.postings[b].ToArray())
	}
}

// Keys returns the number of distinct bigrams.
func (x *BigramIndex) Keys() int {
	return len(x.postings)
}

// Entries returns the total number of (bigram, file) memberships.
func (x *BigramIndex) Entries() int64 {
	return x.entries
}

// Files returns the number of files that were ever allocated an id.
func (x *BigramIndex) Files() int {
	return x.ids.Len()
}

// Stats is a diagnostics snapshot of the index counters.
type Stats struct {
	Bigrams int   `json:"bigrams"`
	Entries int64 `json:"entries"`
	Files   int   `json:"files"`
}

// Stats returns the current counters.
func (x *BigramIndex) Stats() Stats {
	return Stats{
		Bigrams: x.Keys(),
		Entries: x.Entries(),
		Files:   x.Files(),
	}
}
