package fileid

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDIsStableAndMonotonic(t *testing.T) {
	a := New()
	seen := make(map[string]uint32)
	var highest int64 = -1
	keys := []string{"a.txt", "b.txt", "a.txt", "c/d.txt", "b.txt", "e.txt"}
	for _, k := range keys {
		id := a.ID(k)
		if prev, ok := seen[k]; ok {
			assert.Equal(t, prev, id, "key %s changed id", k)
			continue
		}
		assert.Greater(t, int64(id), highest, "new key %s must get a larger id", k)
		highest = int64(id)
		seen[k] = id
	}
	assert.Equal(t, 4, a.Len())
	assert.Equal(t, uint32(4), a.Next())
}

func TestKeyIsInverseOfID(t *testing.T) {
	a := New()
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("dir/file-%d.txt", i)
		id := a.ID(key)
		got, ok := a.Key(id)
		require.True(t, ok)
		assert.Equal(t, key, got)
	}
	_, ok := a.Key(1000)
	assert.False(t, ok)
	assert.False(t, a.Has(1000))
}

func TestSerializeKeepsInsertionOrder(t *testing.T) {
	a := New()
	a.ID("z")
	a.ID("a")
	a.ID("m")
	assert.Equal(t, []Entry{{"z", 0}, {"a", 1}, {"m", 2}}, a.Serialize())
}

func TestDeserializeResumesPastMaxID(t *testing.T) {
	a := Deserialize([]Entry{{"x", 7}, {"y", 2}})
	assert.Equal(t, uint32(8), a.Next())
	assert.Equal(t, 2, a.Len())

	id := a.ID("new")
	assert.Equal(t, uint32(8), id)
	assert.Equal(t, uint32(7), a.ID("x"))

	key, ok := a.Key(2)
	require.True(t, ok)
	assert.Equal(t, "y", key)
}

func TestDeserializeEmpty(t *testing.T) {
	a := Deserialize(nil)
	assert.Equal(t, 0, a.Len())
	assert.Equal(t, uint32(0), a.ID("first"))
}

func TestDeserializeKeepsMapsInverse(t *testing.T) {
	a := Deserialize([]Entry{{"x", 0}, {"x", 3}, {"y", 3}})
	_, ok := a.Key(0)
	assert.False(t, ok)
	key, ok := a.Key(3)
	require.True(t, ok)
	assert.Equal(t, "y", key)
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, []Entry{{"y", 3}}, a.Serialize())
}
