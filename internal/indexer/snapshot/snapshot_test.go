package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/errors"
)

func sampleIndex() *index.BigramIndex {
	x := index.NewBigramIndex()
	x.AddFile("a.txt", []byte("hello world"))
	x.AddFile("b.txt", []byte("goodbye world"))
	x.AddFile("c.txt", []byte("caf\xc3\xa9 ab"))
	return x
}

func TestDocumentWireFormat(t *testing.T) {
	x := index.NewBigramIndex()
	x.AddFile("a.txt", []byte("ab"))

	data, err := json.Marshal(FromIndex(x))
	require.NoError(t, err)
	assert.JSONEq(t, `{"fileIdMap":[["a.txt",0]],"index":[[[97,98],[0]]]}`, string(data))
}

func TestEmptyIndexWireFormat(t *testing.T) {
	data, err := json.Marshal(FromIndex(index.NewBigramIndex()))
	require.NoError(t, err)
	assert.JSONEq(t, `{"fileIdMap":[],"index":[]}`, string(data))
}

func TestRoundTripPreservesSearch(t *testing.T) {
	for _, name := range []string{"index.json", "index.json.zst"} {
		t.Run(name, func(t *testing.T) {
			x := sampleIndex()
			path := filepath.Join(t.TempDir(), "nested", name)
			require.NoError(t, Save(path, FromIndex(x)))

			_, err := os.Stat(path + ".tmp")
			assert.True(t, os.IsNotExist(err), "temp file must not survive a save")

			doc, err := Load(path)
			require.NoError(t, err)
			restored := doc.Restore()

			assert.Equal(t, x.Stats(), restored.Stats())
			for _, q := range []string{"world", "hello", "goodbye", "ab", "caf", "xyz", "h", "o w", "café"} {
				assert.Equal(t, x.Search(q), restored.Search(q), "query %q", q)
			}
		})
	}
}

func TestCompressedFileIsNotPlainJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json.zst")
	require.NoError(t, Save(path, FromIndex(sampleIndex())))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, json.Valid(raw))
}

func TestLoadRecomputesCountersAndDeduplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	doc := `{"fileIdMap":[["a",0],["b",5]],"index":[[[97,98],[0,0,5,5]],[[97,98],[0]]]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	x := loaded.Restore()
	assert.Equal(t, index.Stats{Bigrams: 1, Entries: 2, Files: 2}, x.Stats())
	assert.Equal(t, []string{"a", "b"}, x.Search("ab"))
	assert.Equal(t, uint32(6), x.IDs().Next(), "allocation resumes past the largest id")
}

func TestLoadFailures(t *testing.T) {
	cases := map[string]string{
		"not json":         `{"fileIdMap":`,
		"missing index":    `{"fileIdMap":[]}`,
		"missing id map":   `{"index":[]}`,
		"short pair":       `{"fileIdMap":[["a"]],"index":[]}`,
		"negative id":      `{"fileIdMap":[["a",-1]],"index":[]}`,
		"fractional id":    `{"fileIdMap":[["a",1.5]],"index":[]}`,
		"high code":        `{"fileIdMap":[["a",0]],"index":[[[97,200],[0]]]}`,
		"three codes":      `{"fileIdMap":[["a",0]],"index":[[[97,98,99],[0]]]}`,
		"unknown id":       `{"fileIdMap":[["a",0]],"index":[[[97,98],[1]]]}`,
		"duplicate path":   `{"fileIdMap":[["a",0],["a",1]],"index":[]}`,
		"duplicate id":     `{"fileIdMap":[["a",0],["b",0]],"index":[]}`,
		"ids not an array": `{"fileIdMap":[["a",0]],"index":[[[97,98],0]]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "index.json")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Load(path)
			assert.ErrorIs(t, err, apperrors.ErrIndexLoad)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorIs(t, err, apperrors.ErrIndexLoad)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSaveIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "one.json")
	second := filepath.Join(dir, "two.json")
	require.NoError(t, Save(first, FromIndex(sampleIndex())))
	require.NoError(t, Save(second, FromIndex(sampleIndex())))

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
