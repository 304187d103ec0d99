package kafka

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_Message(t *testing.T) {
	msg, err := Event{
		Key:     "hotel-3",
		Value:   map[string]any{"attempt": 2},
		Headers: map[string]string{"attempt": "2"},
	}.message()
	require.NoError(t, err)
	assert.Equal(t, []byte("hotel-3"), msg.Key)
	assert.JSONEq(t, `{"attempt":2}`, string(msg.Value))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "attempt", msg.Headers[0].Key)

	_, err = Event{Value: make(chan int)}.message()
	assert.Error(t, err)
}

func TestFromKafka(t *testing.T) {
	msg := fromKafka(kafka.Message{
		Topic:     "index-actions",
		Partition: 3,
		Offset:    42,
		Key:       []byte("k"),
		Value:     []byte(`{}`),
		Headers:   []kafka.Header{{Key: "source", Value: []byte("crm")}},
	})
	assert.Equal(t, "index-actions", msg.Topic)
	assert.Equal(t, 3, msg.Partition)
	assert.Equal(t, int64(42), msg.Offset)
	assert.Equal(t, "crm", msg.Headers["source"])

	assert.Nil(t, fromKafka(kafka.Message{}).Headers)
}

func TestDecodeJSON(t *testing.T) {
	type event struct {
		Attempt int `json:"attempt"`
	}
	got, err := DecodeJSON[event]([]byte(`{"attempt":3}`))
	require.NoError(t, err)
	assert.Equal(t, 3, got.Attempt)

	_, err = DecodeJSON[event]([]byte(`not json`))
	assert.ErrorContains(t, err, "decoding kafka message")
}
