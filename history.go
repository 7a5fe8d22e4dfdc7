package agenty

import "encoding/json"

// ChatHistory is the ordered store of one conversation: messages, a parallel
// metadata sequence (always the same length), and cumulative chunk boundaries
// marking the end of each logical exchange. An exchange closes when a system
// message, a final assistant message (one without tool calls), or an
// explicitly flagged end-of-exchange message is appended, so a tool-call /
// tool-result pair always stays inside a single exchange.
//
// A ChatHistory is owned by exactly one Agent and is not safe for concurrent
// use.
type ChatHistory struct {
	messages []Message
	metadata []Metadata
	chunks   []int // cumulative message counts at each exchange boundary
}

// NewChatHistory returns an empty history.
func NewChatHistory() *ChatHistory {
	return &ChatHistory{}
}

type appendOptions struct {
	metadata      Metadata
	endOfExchange bool
}

// AppendOption configures a single Append call.
type AppendOption func(*appendOptions)

// WithMeta attaches metadata to the appended message (default empty).
func WithMeta(md Metadata) AppendOption {
	return func(o *appendOptions) { o.metadata = md }
}

// EndOfExchange forces an exchange boundary after the appended message,
// regardless of its role.
func EndOfExchange() AppendOption {
	return func(o *appendOptions) { o.endOfExchange = true }
}

// Append adds one message and its metadata. A new chunk boundary is recorded
// when the message closes an exchange (see the type comment).
func (h *ChatHistory) Append(msg Message, opts ...AppendOption) {
	var o appendOptions
	for _, opt := range opts {
		opt(&o)
	}
	h.messages = append(h.messages, msg)
	if o.metadata != nil {
		h.metadata = append(h.metadata, o.metadata)
	} else {
		h.metadata = append(h.metadata, Metadata{})
	}
	if h.closesExchange(msg) || o.endOfExchange {
		h.chunks = append(h.chunks, len(h.messages))
	}
}

// AppendAll appends messages in order, each with empty metadata and the usual
// boundary rules.
func (h *ChatHistory) AppendAll(msgs []Message, opts ...AppendOption) {
	for _, msg := range msgs {
		h.Append(msg, opts...)
	}
}

// closesExchange reports whether msg ends the current exchange. An assistant
// message that requests tool execution keeps the exchange open so the
// following tool results land in the same chunk.
func (h *ChatHistory) closesExchange(msg Message) bool {
	switch msg.Role {
	case RoleSystem:
		return true
	case RoleAssistant:
		return len(msg.ToolCalls) == 0
	default:
		return false
	}
}

// Len returns the number of stored messages.
func (h *ChatHistory) Len() int { return len(h.messages) }

// Messages returns a copy of all stored messages.
func (h *ChatHistory) Messages() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Metadata returns a copy of the per-message metadata, parallel to Messages.
func (h *ChatHistory) Metadata() []Metadata {
	out := make([]Metadata, len(h.metadata))
	copy(out, h.metadata)
	return out
}

// Chunks returns a copy of the cumulative exchange boundaries.
func (h *ChatHistory) Chunks() []int {
	out := make([]int, len(h.chunks))
	copy(out, h.chunks)
	return out
}

// Latest returns the most recent message, or ErrEmptyHistory.
func (h *ChatHistory) Latest() (Message, error) {
	if len(h.messages) == 0 {
		return Message{}, ErrEmptyHistory
	}
	return h.messages[len(h.messages)-1], nil
}

// SystemMessage returns the initial system message if the history starts with one.
func (h *ChatHistory) SystemMessage() (Message, bool) {
	if len(h.messages) > 0 && h.messages[0].Role == RoleSystem {
		return h.messages[0], true
	}
	return Message{}, false
}

// Window returns the most recent limit exchanges (not raw messages), plus any
// trailing messages of a still-open exchange. When the cut excludes the
// initial system message, that message is re-prepended as a synthetic first
// exchange so the model always sees its role instructions. limit <= 0 returns
// the full history.
func (h *ChatHistory) Window(limit int) []Message {
	msgs, _ := h.window(limit, false)
	return msgs
}

// WindowWithMetadata is Window plus the metadata aligned to the returned messages.
func (h *ChatHistory) WindowWithMetadata(limit int) ([]Message, []Metadata) {
	return h.window(limit, true)
}

func (h *ChatHistory) window(limit int, includeMetadata bool) ([]Message, []Metadata) {
	start := 0
	if limit > 0 && len(h.chunks) > limit {
		// End of the exchange just before the window.
		start = h.chunks[len(h.chunks)-limit-1]
	}

	var msgs []Message
	var meta []Metadata
	if sys, ok := h.SystemMessage(); ok && start > 0 {
		msgs = append(msgs, sys)
		if includeMetadata {
			meta = append(meta, Metadata{})
		}
	}
	msgs = append(msgs, h.messages[start:]...)
	if includeMetadata {
		meta = append(meta, h.metadata[start:]...)
		return msgs, meta
	}
	return msgs, nil
}

// Clear removes all messages, metadata, and chunk boundaries.
func (h *ChatHistory) Clear() {
	h.messages = nil
	h.metadata = nil
	h.chunks = nil
}

// historyRecord is the serialized form of one {message, metadata} pair.
type historyRecord struct {
	Message  Message  `json:"message"`
	Metadata Metadata `json:"metadata"`
}

// MarshalJSON serializes the history as an ordered list of {message, metadata} pairs.
func (h *ChatHistory) MarshalJSON() ([]byte, error) {
	records := make([]historyRecord, len(h.messages))
	for i, msg := range h.messages {
		records[i] = historyRecord{Message: msg, Metadata: h.metadata[i]}
	}
	return json.Marshal(records)
}

// UnmarshalJSON reconstructs the history by replaying Append for every record
// in order, which rebuilds identical chunk-boundary state. Records are never
// compacted or reordered.
func (h *ChatHistory) UnmarshalJSON(data []byte) error {
	var records []historyRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	h.Clear()
	for _, rec := range records {
		h.Append(rec.Message, WithMeta(rec.Metadata))
	}
	return nil
}
