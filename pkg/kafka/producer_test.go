package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	msgs, err := encode([]Event{
		{Key: "hello", Value: map[string]int{"total_hits": 2}},
		{Key: "", Value: "plain"},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte("hello"), msgs[0].Key)
	assert.JSONEq(t, `{"total_hits":2}`, string(msgs[0].Value))
	assert.JSONEq(t, `"plain"`, string(msgs[1].Value))
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	_, err := encode([]Event{{Key: "bad", Value: make(chan int)}})
	assert.Error(t, err)
}
