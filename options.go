package agenty

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// toolOptions hold optional tool settings (timeout, strict, tags, etc.).
type toolOptions struct {
	strict    bool
	timeout   time.Duration
	tags      []string
	version   string
	dangerous bool
}

// ToolOption configures a tool (e.g. WithStrict, WithTimeout).
type ToolOption func(*toolOptions)

// WithStrict sets strict mode for schema: additionalProperties: false for all objects,
// and all properties become required. Use for OpenAI Structured Outputs compatibility.
func WithStrict() ToolOption {
	return func(o *toolOptions) {
		o.strict = true
	}
}

// WithTimeout sets a per-tool timeout (overrides the ToolSet default for this tool).
func WithTimeout(d time.Duration) ToolOption {
	return func(o *toolOptions) {
		o.timeout = d
	}
}

// WithTags sets tool tags (metadata for discovery/orchestrator).
func WithTags(tags ...string) ToolOption {
	return func(o *toolOptions) {
		o.tags = tags
	}
}

// WithVersion sets the tool version.
func WithVersion(version string) ToolOption {
	return func(o *toolOptions) {
		o.version = version
	}
}

// WithDangerous marks the tool as dangerous (orchestrator may require confirmation).
func WithDangerous() ToolOption {
	return func(o *toolOptions) {
		o.dangerous = true
	}
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	timeout       time.Duration
	recoverPanics bool
	logger        *slog.Logger
	onBefore      func(context.Context, ToolCall)
	onAfter       func(context.Context, ToolCall, ToolCallResult, time.Duration)
}

// WithDefaultTimeout sets the default execution timeout for tools.
// Pass 0 or negative to disable the timeout.
func WithDefaultTimeout(d time.Duration) RegistryOption {
	return func(o *registryOptions) {
		o.timeout = d
	}
}

// WithRecoverPanics enables panic recovery in Execute (returns SystemError).
func WithRecoverPanics(enable bool) RegistryOption {
	return func(o *registryOptions) {
		o.recoverPanics = enable
	}
}

// WithRegistryLogger sets the logger used for selection warnings.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(o *registryOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithOnBeforeExecute sets a hook called before each tool execution.
func WithOnBeforeExecute(fn func(context.Context, ToolCall)) RegistryOption {
	return func(o *registryOptions) {
		o.onBefore = fn
	}
}

// WithOnAfterExecute sets a hook called after each tool execution.
func WithOnAfterExecute(fn func(context.Context, ToolCall, ToolCallResult, time.Duration)) RegistryOption {
	return func(o *registryOptions) {
		o.onAfter = fn
	}
}

// ChatOption configures a Chat adapter.
type ChatOption func(*chatOptions)

type chatOptions struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetries int
	logger     *slog.Logger
}

// WithBaseURL sets the chat-completions endpoint base URL
// (default https://api.openai.com/v1).
func WithBaseURL(url string) ChatOption {
	return func(o *chatOptions) {
		o.baseURL = url
	}
}

// WithAPIKey sets the API key. When absent, the OPENAI_API_KEY and API_KEY
// environment variables are consulted in that order.
func WithAPIKey(key string) ChatOption {
	return func(o *chatOptions) {
		o.apiKey = key
	}
}

// WithModel sets the model name sent with every request.
func WithModel(model string) ChatOption {
	return func(o *chatOptions) {
		o.model = model
	}
}

// WithHTTPClient replaces the default HTTP client (e.g. to set a transport timeout).
func WithHTTPClient(c *http.Client) ChatOption {
	return func(o *chatOptions) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithMaxAttempts bounds the number of generation attempts per Generate call
// (transport failures only; local request defects are never retried).
func WithMaxAttempts(n int) ChatOption {
	return func(o *chatOptions) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// WithChatLogger sets the logger for retry warnings.
func WithChatLogger(logger *slog.Logger) ChatOption {
	return func(o *chatOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// AgentOption configures an Agent.
type AgentOption func(*agentOptions)

type agentOptions struct {
	name          string
	description   string
	systemPrompt  string
	objectID      string
	memoryWindow  int
	maxRetries    int
	autoReinvoke  bool
	boundary      Boundary
	output        *OutputSchema
	registry      *Registry
	toolSelection []string
	selectAll     bool
	logger        *slog.Logger
	now           func() time.Time
	feedbackIn    io.Reader
	feedbackOut   io.Writer
	ratingMin     int
	ratingMax     int
}

// WithName sets the agent name (default "Assistant").
func WithName(name string) AgentOption {
	return func(o *agentOptions) {
		o.name = name
	}
}

// WithDescription sets the short agent description used for discovery.
func WithDescription(desc string) AgentOption {
	return func(o *agentOptions) {
		o.description = desc
	}
}

// WithSystemPrompt sets the system prompt; it always becomes message 0 of the
// agent's chat history.
func WithSystemPrompt(prompt string) AgentOption {
	return func(o *agentOptions) {
		o.systemPrompt = prompt
	}
}

// WithObjectID pins the agent's object ID (default: random uuid). Used when
// restoring a serialized agent.
func WithObjectID(id string) AgentOption {
	return func(o *agentOptions) {
		o.objectID = id
	}
}

// WithMemoryWindow sets how many recent exchanges are sent with each
// generation request (default 5). The system message is always included on
// top of the window.
func WithMemoryWindow(n int) AgentOption {
	return func(o *agentOptions) {
		if n > 0 {
			o.memoryWindow = n
		}
	}
}

// WithMaxRetries bounds the structured-output extraction attempts per
// invocation (default 1: a single attempt, no corrective re-generation).
func WithMaxRetries(n int) AgentOption {
	return func(o *agentOptions) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// WithAutoReinvoke controls whether a failed extraction triggers a corrective
// re-generation (default true). When disabled the agent degrades to raw text
// after the first failure.
func WithAutoReinvoke(enable bool) AgentOption {
	return func(o *agentOptions) {
		o.autoReinvoke = enable
	}
}

// WithBoundary sets the extraction boundary used to locate the structured
// output span (default fenced ```json ... ``` block).
func WithBoundary(b Boundary) AgentOption {
	return func(o *agentOptions) {
		o.boundary = b
	}
}

// WithOutputSchema declares the structured-output shape. When set, Invoke
// runs the extraction-retry loop and returns the validated value on success.
func WithOutputSchema(s *OutputSchema) AgentOption {
	return func(o *agentOptions) {
		o.output = s
	}
}

// WithTools gives the agent tools from reg. With no keys every registered
// tool is selected; otherwise only the named registration keys (unknown keys
// are dropped with a warning).
func WithTools(reg *Registry, keys ...string) AgentOption {
	return func(o *agentOptions) {
		o.registry = reg
		o.toolSelection = keys
		o.selectAll = len(keys) == 0
	}
}

// WithAgentLogger sets the agent's logger (default slog.Default()).
func WithAgentLogger(logger *slog.Logger) AgentOption {
	return func(o *agentOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock replaces the agent's time source; tests use it to make latency
// statistics deterministic.
func WithClock(now func() time.Time) AgentOption {
	return func(o *agentOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithFeedbackIO sets the reader and writer used by the blocking feedback
// prompt (defaults: os.Stdin, os.Stdout).
func WithFeedbackIO(in io.Reader, out io.Writer) AgentOption {
	return func(o *agentOptions) {
		if in != nil {
			o.feedbackIn = in
		}
		if out != nil {
			o.feedbackOut = out
		}
	}
}

// WithRatingRange sets the accepted numeric feedback range (default 1..10).
func WithRatingRange(minRating, maxRating int) AgentOption {
	return func(o *agentOptions) {
		o.ratingMin = minRating
		o.ratingMax = maxRating
	}
}

// InvokeOption configures one Invoke call.
type InvokeOption func(*invokeOptions)

type invokeOptions struct {
	autoExecuteTool bool
	askForFeedback  bool
	gen             *GenOptions
}

// WithManualTools makes Invoke return detected tool calls to the caller
// instead of executing them (manual execution path).
func WithManualTools() InvokeOption {
	return func(o *invokeOptions) {
		o.autoExecuteTool = false
	}
}

// WithFeedback makes Invoke block on a numeric rating prompt after the answer
// and fold the rating into the agent's rolling average. Must not be used from
// a context that cannot block on input.
func WithFeedback() InvokeOption {
	return func(o *invokeOptions) {
		o.askForFeedback = true
	}
}

// WithGenOptions passes provider generation options (temperature, max tokens,
// caller-supplied tool declarations, ...) for this invocation. The agent
// mutates the struct while handling tool rounds and extraction retries.
func WithGenOptions(gen *GenOptions) InvokeOption {
	return func(o *invokeOptions) {
		if gen != nil {
			o.gen = gen
		}
	}
}
