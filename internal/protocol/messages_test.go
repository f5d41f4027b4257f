package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CNMengHan/CialloSecurityChat/internal/domain"
)

func TestReceiveMessageWireFormat(t *testing.T) {
	msg := domain.Message{
		ID:        7,
		Username:  "Alice",
		Body:      "hello",
		Timestamp: time.Date(2024, 3, 9, 8, 5, 1, 0, time.UTC),
	}

	data, err := json.Marshal(NewReceiveMessage(msg))
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, TypeReceiveMessage, got["type"])
	assert.Equal(t, "Alice", got["username"])
	assert.Equal(t, "hello", got["message"])
	assert.Equal(t, "2024-03-09 08:05:01", got["timestamp"])
	assert.EqualValues(t, 7, got["id"])
	assert.NotZero(t, got["ts"])
}

func TestHistoryKeepsOrderAndEncodesEmptyList(t *testing.T) {
	empty, err := json.Marshal(NewHistory(nil))
	require.NoError(t, err)
	assert.Contains(t, string(empty), `"messages":[]`)

	history := NewHistory([]domain.Message{
		{ID: 1, Username: "Alice", Body: "a"},
		{ID: 2, Username: "Bob", Body: "b"},
	})
	require.Len(t, history.Messages, 2)
	assert.Equal(t, int64(1), history.Messages[0].ID)
	assert.Equal(t, "b", history.Messages[1].Message)
}

func TestSendMessageDecoding(t *testing.T) {
	var msg SendMessage
	require.NoError(t, json.Unmarshal([]byte(`{"type":"send_message","message":"hi"}`), &msg))
	assert.Equal(t, TypeSendMessage, msg.Type)
	assert.Equal(t, "hi", msg.Message)
}
