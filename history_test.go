package agenty

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

func toolCallMsg(content string) Message {
	return Message{
		Role:    RoleAssistant,
		Content: content,
		ToolCalls: []MessageToolCall{{
			ID:       "call-1",
			Type:     "function",
			Function: FunctionCall{Name: "lookup", Arguments: `{}`},
		}},
	}
}

func TestHistoryMetadataStaysParallel(t *testing.T) {
	t.Parallel()
	h := NewChatHistory()
	h.Append(msg(RoleSystem, "sys"))
	h.Append(msg(RoleUser, "hi"), WithMeta(Metadata{"source": "cli"}))
	h.Append(msg(RoleAssistant, "hello"))

	require.Equal(t, 3, h.Len())
	meta := h.Metadata()
	require.Len(t, meta, h.Len())
	assert.Equal(t, Metadata{}, meta[0])
	assert.Equal(t, "cli", meta[1]["source"])
}

func TestHistoryExchangeBoundaries(t *testing.T) {
	t.Parallel()
	h := NewChatHistory()

	h.Append(msg(RoleSystem, "sys"))
	assert.Equal(t, []int{1}, h.Chunks())

	h.Append(msg(RoleUser, "question"))
	assert.Equal(t, []int{1}, h.Chunks(), "user message keeps the exchange open")

	h.Append(toolCallMsg(""))
	assert.Equal(t, []int{1}, h.Chunks(), "tool-call turn keeps the exchange open")

	h.Append(Message{Role: RoleTool, Name: "lookup", ToolCallID: "call-1", Content: `{"x":1}`})
	assert.Equal(t, []int{1}, h.Chunks(), "tool result keeps the exchange open")

	h.Append(msg(RoleAssistant, "answer"))
	assert.Equal(t, []int{1, 5}, h.Chunks(), "final assistant message closes the exchange")
}

func TestHistoryEndOfExchangeForcesBoundary(t *testing.T) {
	t.Parallel()
	h := NewChatHistory()
	h.Append(msg(RoleUser, "standalone note"), EndOfExchange())
	assert.Equal(t, []int{1}, h.Chunks())
}

func TestHistoryWindowKeepsSystemMessage(t *testing.T) {
	t.Parallel()
	h := NewChatHistory()
	h.Append(msg(RoleSystem, "sys"))
	for i := 0; i < 3; i++ {
		h.Append(msg(RoleUser, "q"))
		h.Append(msg(RoleAssistant, "a"))
	}
	require.Equal(t, []int{1, 3, 5, 7}, h.Chunks())

	got := h.Window(2)
	require.Len(t, got, 5)
	assert.Equal(t, RoleSystem, got[0].Role, "system message re-prepended when the cut drops it")
	assert.Equal(t, RoleUser, got[1].Role)

	assert.Len(t, h.Window(0), 7, "limit <= 0 returns the full history")
	assert.Len(t, h.Window(10), 7, "limit beyond history returns everything")
}

func TestHistoryWindowWithMetadataAligned(t *testing.T) {
	t.Parallel()
	h := NewChatHistory()
	h.Append(msg(RoleSystem, "sys"))
	h.Append(msg(RoleUser, "q1"))
	h.Append(msg(RoleAssistant, "a1"), WithMeta(Metadata{"rating": 7}))
	h.Append(msg(RoleUser, "q2"))
	h.Append(msg(RoleAssistant, "a2"))

	msgs, meta := h.WindowWithMetadata(1)
	require.Len(t, msgs, 3)
	require.Len(t, meta, len(msgs))
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, "q2", msgs[1].Content)
}

func TestHistoryLatest(t *testing.T) {
	t.Parallel()
	h := NewChatHistory()
	_, err := h.Latest()
	require.ErrorIs(t, err, ErrEmptyHistory)

	h.Append(msg(RoleUser, "hi"))
	latest, err := h.Latest()
	require.NoError(t, err)
	assert.Equal(t, "hi", latest.Content)
}

func TestHistoryJSONRoundTrip(t *testing.T) {
	t.Parallel()
	h := NewChatHistory()
	h.Append(msg(RoleSystem, "sys"))
	h.Append(msg(RoleUser, "q"))
	h.Append(toolCallMsg(""))
	h.Append(Message{Role: RoleTool, Name: "lookup", ToolCallID: "call-1", Content: `{"x":1}`})
	h.Append(msg(RoleAssistant, "a"), WithMeta(Metadata{"rating": float64(9)}))

	data, err := json.Marshal(h)
	require.NoError(t, err)

	restored := NewChatHistory()
	require.NoError(t, json.Unmarshal(data, restored))

	assert.Equal(t, h.Messages(), restored.Messages())
	assert.Equal(t, h.Metadata(), restored.Metadata())
	assert.Equal(t, h.Chunks(), restored.Chunks(), "replay rebuilds identical boundaries")
}

func TestHistoryClear(t *testing.T) {
	t.Parallel()
	h := NewChatHistory()
	h.Append(msg(RoleSystem, "sys"))
	h.Append(msg(RoleUser, "q"))
	h.Clear()
	assert.Zero(t, h.Len())
	assert.Empty(t, h.Chunks())
}
