package agenty

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

// GenOptions are the mutable per-request generation options. The zero value is
// a plain text request; UpdateToolConfig attaches or strips the tool fields
// while the Agent walks its invocation protocol.
type GenOptions struct {
	Temperature    *float64         `json:"temperature,omitempty"`
	TopP           *float64         `json:"top_p,omitempty"`
	MaxTokens      int              `json:"max_tokens,omitempty"`
	Tools          []map[string]any `json:"tools,omitempty"`
	ToolChoice     string           `json:"tool_choice,omitempty"`
	ResponseFormat *ResponseFormat  `json:"response_format,omitempty"`
}

// ResponseFormat requests a provider response mode (e.g. {"type": "json_object"}).
type ResponseFormat struct {
	Type string `json:"type"`
}

// ToolMode selects the UpdateToolConfig direction.
type ToolMode int

const (
	// AddTools attaches the adapter's prepared tool declarations unless the
	// caller already supplied its own (caller-supplied lists win).
	AddTools ToolMode = iota
	// RemoveTools strips any tool declarations, forcing a direct answer.
	RemoveTools
)

// chatRequest is the wire shape of one chat-completions request.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	GenOptions
}

// wireMessage is the provider-native message record; history Messages are
// projected onto it before sending (local ID and timestamp never leave the
// process).
type wireMessage struct {
	Role       Role              `json:"role"`
	Content    string            `json:"content"`
	Name       string            `json:"name,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	ToolCalls  []MessageToolCall `json:"tool_calls,omitempty"`
}

// Reply is one raw chat-completions response. Use the projection methods to
// read it; they are pure and never mutate the reply.
type Reply struct {
	ID      string   `json:"id,omitempty"`
	Model   string   `json:"model,omitempty"`
	Choices []Choice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Code    any    `json:"code,omitempty"`
	} `json:"error,omitempty"`
}

// Choice is one reply alternative; index 0 is the answer.
type Choice struct {
	Index        int          `json:"index"`
	Message      ReplyMessage `json:"message"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

// ReplyMessage is the assistant message inside a Choice.
type ReplyMessage struct {
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	ToolCalls []MessageToolCall `json:"tool_calls,omitempty"`
}

// Content projects the reply to the first choice's text content.
func (r *Reply) Content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Message projects the reply to the first choice's message.
func (r *Reply) Message() (ReplyMessage, bool) {
	if len(r.Choices) == 0 {
		return ReplyMessage{}, false
	}
	return r.Choices[0].Message, true
}

// ToolCalls projects the reply to the first choice's raw tool-call records.
func (r *Reply) ToolCalls() []MessageToolCall {
	if len(r.Choices) == 0 {
		return nil
	}
	return r.Choices[0].Message.ToolCalls
}

// Chat is the tool-calling model adapter: a state-free wrapper around one
// remote chat-completions capability plus an optional prepared ToolSet. The
// same Chat instance may back multiple agents concurrently; it holds no
// conversation state.
type Chat struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	attempts   int
	logger     *slog.Logger
	tools      *ToolSet
}

// DefaultBaseURL is the endpoint used when no WithBaseURL option is given.
const DefaultBaseURL = "https://api.openai.com/v1"

// NewChat creates a Chat adapter. The API key falls back to the
// OPENAI_API_KEY and API_KEY environment variables when not set explicitly.
func NewChat(opts ...ChatOption) (*Chat, error) {
	o := chatOptions{
		baseURL:    DefaultBaseURL,
		maxRetries: 3,
		logger:     slog.Default(),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.apiKey == "" {
		o.apiKey = lookupAPIKey("OPENAI_API_KEY", "API_KEY")
	}
	if o.model == "" {
		return nil, fmt.Errorf("model name must not be empty")
	}
	return &Chat{
		baseURL:    o.baseURL,
		apiKey:     o.apiKey,
		model:      o.model,
		httpClient: o.httpClient,
		attempts:   o.maxRetries,
		logger:     o.logger,
	}, nil
}

func lookupAPIKey(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// Model returns the configured model name.
func (c *Chat) Model() string { return c.model }

// UseTools installs the prepared tool view. Pass nil for a non-tool-calling
// adapter.
func (c *Chat) UseTools(set *ToolSet) { c.tools = set }

// Tools returns the prepared tool view, or nil.
func (c *Chat) Tools() *ToolSet { return c.tools }

// CreateMessage normalizes plain text or a structured value into a Message.
// Non-string content is serialized to JSON text. The message gets a fresh ID
// and timestamp.
func (c *Chat) CreateMessage(role Role, content any) (Message, error) {
	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Timestamp: time.Now().UTC(),
	}
	switch v := content.(type) {
	case string:
		msg.Content = v
	case []byte:
		msg.Content = string(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return Message{}, fmt.Errorf("content is not serializable: %w", err)
		}
		msg.Content = string(data)
	}
	return msg, nil
}

// Generate sends one chat-completions request and returns the raw reply.
// Transport failures (request transport, non-2xx status, decode failure, or a
// reply-level error field) are retried up to the configured attempt bound,
// re-returning the last TransportError when all attempts fail. Local
// request-construction errors are programmer defects and are never retried.
func (c *Chat) Generate(ctx context.Context, messages []Message, opts *GenOptions) (*Reply, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("messages must not be empty")
	}
	req := chatRequest{Model: c.model, Messages: projectMessages(messages)}
	if opts != nil {
		req.GenOptions = *opts
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		reply, err := c.send(ctx, body)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, err
		}
		if attempt < c.attempts {
			c.logger.Warn("generation attempt failed, retrying", "attempt", attempt, "error", err)
		}
	}
	return nil, lastErr
}

func (c *Chat) send(ctx context.Context, body []byte) (*Reply, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, &TransportError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	var reply Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("decode reply: %w", err)}
	}
	// A reply-level error field is fatal for this attempt even with status 200
	// (OpenRouter-style routed failures).
	if reply.Error != nil {
		return nil, &TransportError{Err: fmt.Errorf("reply error: %s", reply.Error.Message)}
	}
	return &reply, nil
}

func projectMessages(messages []Message) []wireMessage {
	out := make([]wireMessage, len(messages))
	for i, m := range messages {
		out[i] = wireMessage{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
			ToolCalls:  m.ToolCalls,
		}
	}
	return out
}

// DetectToolCalls returns the normalized tool calls requested by the reply,
// or nil when the reply is a final answer. Pure, no side effects.
func (c *Chat) DetectToolCalls(reply *Reply) []ToolCall {
	raw := reply.ToolCalls()
	if len(raw) == 0 {
		return nil
	}
	calls := make([]ToolCall, len(raw))
	for i, tc := range raw {
		calls[i] = ToolCall{
			ID:       tc.ID,
			ToolName: tc.Function.Name,
			Args:     json.RawMessage(tc.Function.Arguments),
		}
	}
	return calls
}

// UpdateToolConfig mutates opts in place. AddTools attaches the prepared tool
// declarations only when the caller has not supplied its own and the adapter
// has tools configured; a caller-supplied list always wins. RemoveTools strips
// any tool declarations (used after a tool round trip, or after a
// malformed-output retry, to prevent the model from issuing another tool call
// instead of answering).
func (c *Chat) UpdateToolConfig(opts *GenOptions, mode ToolMode) {
	if opts == nil {
		return
	}
	switch mode {
	case AddTools:
		if opts.Tools != nil {
			return
		}
		if c.tools == nil || c.tools.Len() == 0 {
			return
		}
		opts.Tools = c.tools.Schemas()
		if opts.ToolChoice == "" {
			opts.ToolChoice = "auto"
		}
	case RemoveTools:
		opts.Tools = nil
		opts.ToolChoice = ""
	}
}

// HandleToolCalls processes a tool-call reply. It returns (nil, nil, nil) when
// the reply contains no tool call. Otherwise the assistant's tool-call turn is
// appended to history; with autoExecute false the raw call list is returned
// for manual execution. With autoExecute true the calls run through the
// prepared ToolSet, every result becomes a tool-role message on history, tool
// configuration is stripped from opts, and the model is re-invoked once over
// the updated window. Looping over chained tool calls is the Agent's job, not
// this method's.
func (c *Chat) HandleToolCalls(
	ctx context.Context,
	reply *Reply,
	history *ChatHistory,
	opts *GenOptions,
	autoExecute bool,
	memoryWindow int,
) (*Reply, []ToolCall, error) {
	calls := c.DetectToolCalls(reply)
	if calls == nil {
		return nil, nil, nil
	}

	assistant, _ := reply.Message()
	history.Append(Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   assistant.Content,
		ToolCalls: assistant.ToolCalls,
		Timestamp: time.Now().UTC(),
	})

	if !autoExecute {
		return nil, calls, nil
	}
	if c.tools == nil {
		return nil, nil, fmt.Errorf("%w: no tools prepared for this adapter", ErrToolNotFound)
	}

	results := c.tools.Execute(ctx, calls)
	for _, call := range calls {
		res := results[call.ID]
		history.Append(Message{
			ID:         uuid.NewString(),
			Role:       RoleTool,
			Name:       call.ToolName,
			ToolCallID: call.ID,
			Content:    res.Content(),
			Timestamp:  time.Now().UTC(),
		})
	}

	c.UpdateToolConfig(opts, RemoveTools)
	next, err := c.Generate(ctx, history.Window(memoryWindow), opts)
	if err != nil {
		return nil, nil, err
	}
	return next, nil, nil
}
