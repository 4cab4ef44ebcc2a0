// Package snapshot persists a bigram index and its file id map as one JSON
// document:
//
//	{"fileIdMap": [[path, id], ...], "index": [[[a, b], [id, ...]], ...]}
//
// There is no version field and no checksum. Paths ending in ".zst" are
// zstd-compressed on disk.
package snapshot

import (
	"encoding/json"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/indexer/fileid"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/indexer/index"
)

// Document is the complete durable state of an index.
type Document struct {
	FileIDMap []FileIDEntry   `json:"fileIdMap"`
	Index     []PostingsEntry `json:"index"`
}

// FileIDEntry encodes as the two-element array [path, id].
type FileIDEntry struct {
	Path string
	ID   uint32
}

func (e FileIDEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Path, e.ID})
}

func (e *FileIDEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("fileIdMap entry: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("fileIdMap entry: want 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.Path); err != nil {
		return fmt.Errorf("fileIdMap path: %w", err)
	}
	if err := json.Unmarshal(pair[1], &e.ID); err != nil {
		return fmt.Errorf("fileIdMap id: %w", err)
	}
	return nil
}

// PostingsEntry encodes as [[a, b], [id, ...]].
type PostingsEntry struct {
	Bigram  [2]int
	FileIDs []uint32
}

func (e PostingsEntry) MarshalJSON() ([]byte, error) {
	ids := e.FileIDs
	if ids == nil {
		ids = []uint32{}
	}
	return json.Marshal([]any{e.Bigram, ids})
}

func (e *PostingsEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("index entry: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("index entry: want 2 elements, got %d", len(pair))
	}
	var codes []int
	if err := json.Unmarshal(pair[0], &codes); err != nil {
		return fmt.Errorf("index bigram: %w", err)
	}
	if len(codes) != 2 {
		return fmt.Errorf("index bigram: want 2 codes, got %d", len(codes))
	}
	e.Bigram = [2]int{codes[0], codes[1]}
	if err := json.Unmarshal(pair[1], &e.FileIDs); err != nil {
		return fmt.Errorf("index file ids: %w", err)
	}
	return nil
}

// FromIndex captures x as a Document. Postings are emitted in ascending
// bigram order so identical indexes produce identical documents.
func FromIndex(x *index.BigramIndex) *Document {
	doc := &Document{}
	for _, e := range x.IDs().Serialize() {
		doc.FileIDMap = append(doc.FileIDMap, FileIDEntry{Path: e.Key, ID: e.ID})
	}
	x.Each(func(b index.Bigram, fileIDs []uint32) {
		doc.Index = append(doc.Index, PostingsEntry{
			Bigram:  [2]int{int(b.First()), int(b.Second())},
			FileIDs: fileIDs,
		})
	})
	if doc.FileIDMap == nil {
		doc.FileIDMap = []FileIDEntry{}
	}
	if doc.Index == nil {
		doc.Index = []PostingsEntry{}
	}
	return doc
}

// Validate checks the structural contract: unique paths and ids, bigram
// codes within [0, 127], and postings that only name known ids.
func (d *Document) Validate() error {
	paths := make(map[string]struct{}, len(d.FileIDMap))
	ids := make(map[uint32]struct{}, len(d.FileIDMap))
	for _, e := range d.FileIDMap {
		if _, dup := paths[e.Path]; dup {
			return fmt.Errorf("duplicate path %q in fileIdMap", e.Path)
		}
		if _, dup := ids[e.ID]; dup {
			return fmt.Errorf("duplicate id %d in fileIdMap", e.ID)
		}
		paths[e.Path] = struct{}{}
		ids[e.ID] = struct{}{}
	}
	for _, e := range d.Index {
		if _, ok := index.NewBigram(rune(e.Bigram[0]), rune(e.Bigram[1])); !ok {
			return fmt.Errorf("bigram [%d,%d] out of range", e.Bigram[0], e.Bigram[1])
		}
		for _, id := range e.FileIDs {
			if _, ok := ids[id]; !ok {
				return fmt.Errorf("bigram [%d,%d] references unknown file id %d", e.Bigram[0], e.Bigram[1], id)
			}
		}
	}
	return nil
}

// Restore rebuilds the allocator and replays every posting through AddEntry,
// so counters are recomputed and duplicate ids collapse. The document must
// have passed Validate.
func (d *Document) Restore() *index.BigramIndex {
	entries := make([]fileid.Entry, 0, len(d.FileIDMap))
	for _, e := range d.FileIDMap {
		entries = append(entries, fileid.Entry{Key: e.Path, ID: e.ID})
	}
	x := index.NewBigramIndexWithIDs(fileid.Deserialize(entries))
	for _, e := range d.Index {
		b, _ := index.NewBigram(rune(e.Bigram[0]), rune(e.Bigram[1]))
		for _, id := range e.FileIDs {
			x.AddEntry(b, id)
		}
	}
	return x
}
