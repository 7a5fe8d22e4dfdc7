package agenty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

// Agent drives multi-turn conversations with a generative model that may
// request tool execution mid-conversation. It owns exactly one ChatHistory and
// references one shared Chat adapter; one Invoke call runs to completion
// (tool rounds and extraction retries included) before returning, so an Agent
// must not be invoked concurrently with itself.
type Agent struct {
	name         string
	description  string
	systemPrompt string
	objectID     string

	chat    *Chat
	history *ChatHistory

	output       *OutputSchema
	boundary     Boundary
	memoryWindow int
	maxRetries   int
	autoReinvoke bool

	logger      *slog.Logger
	now         func() time.Time
	feedbackIn  io.Reader
	feedbackOut io.Writer
	ratingMin   int
	ratingMax   int

	// Running statistics, updated incrementally on every invocation.
	invocations    int
	avgLatency     time.Duration
	ratedResponses int
	avgRating      float64
}

// Result is the outcome of one Invoke call. Exactly one of the three shapes is
// populated: ToolCalls for the manual execution path, Structured (plus the
// extracted Content text) when a declared output shape validated, or Content
// alone. After a failed extraction budget Content carries the best-effort text
// and Structured stays nil, so downstream code must treat the output type as
// conditional on success.
type Result struct {
	Content    string
	Structured any
	ToolCalls  []ToolCall
	Reply      *Reply
}

// NewAgent creates an Agent around the shared Chat adapter. The system prompt
// always becomes message 0 of the agent's history. When WithTools is given,
// the selected ToolSet is prepared on the adapter.
func NewAgent(chat *Chat, opts ...AgentOption) (*Agent, error) {
	if chat == nil {
		return nil, fmt.Errorf("chat adapter must not be nil")
	}
	o := agentOptions{
		name:         "Assistant",
		description:  "An autonomous AI agent to solve problems.",
		systemPrompt: "You are a helpful AI assistant.",
		memoryWindow: 5,
		maxRetries:   1,
		autoReinvoke: true,
		boundary:     DefaultBoundary(),
		logger:       slog.Default(),
		now:          time.Now,
		feedbackIn:   os.Stdin,
		feedbackOut:  os.Stdout,
		ratingMin:    1,
		ratingMax:    10,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxRetries < 1 {
		o.maxRetries = 1
	}
	if o.objectID == "" {
		o.objectID = uuid.NewString()
	}

	if o.registry != nil {
		var set *ToolSet
		var err error
		if o.selectAll {
			set, err = o.registry.SelectAll()
		} else {
			set, err = o.registry.Select(o.toolSelection...)
		}
		if err != nil {
			return nil, err
		}
		chat.UseTools(set)
	}

	a := &Agent{
		name:         o.name,
		description:  o.description,
		systemPrompt: o.systemPrompt,
		objectID:     o.objectID,
		chat:         chat,
		history:      NewChatHistory(),
		output:       o.output,
		boundary:     o.boundary,
		memoryWindow: o.memoryWindow,
		maxRetries:   o.maxRetries,
		autoReinvoke: o.autoReinvoke,
		logger:       o.logger,
		now:          o.now,
		feedbackIn:   o.feedbackIn,
		feedbackOut:  o.feedbackOut,
		ratingMin:    o.ratingMin,
		ratingMax:    o.ratingMax,
	}

	sys, err := chat.CreateMessage(RoleSystem, a.systemPrompt)
	if err != nil {
		return nil, err
	}
	a.history.Append(sys)
	return a, nil
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.name }

// Description returns the short agent description.
func (a *Agent) Description() string { return a.description }

// ObjectID returns the agent's stable identifier.
func (a *Agent) ObjectID() string { return a.objectID }

// History exposes the agent's chat history (owned by the agent; callers must
// not append from another goroutine while Invoke runs).
func (a *Agent) History() *ChatHistory { return a.history }

// Latest returns the most recent message of the conversation.
func (a *Agent) Latest() (Message, error) { return a.history.Latest() }

// Invocations returns how often the agent has been invoked.
func (a *Agent) Invocations() int { return a.invocations }

// AverageLatency returns the rolling-average invocation latency.
func (a *Agent) AverageLatency() time.Duration { return a.avgLatency }

// AverageRating returns the rolling-average user rating (0 when unrated).
func (a *Agent) AverageRating() float64 { return a.avgRating }

// RatedResponses returns how many responses received a rating.
func (a *Agent) RatedResponses() int { return a.ratedResponses }

// Invoke runs one full conversational turn: append the user turn, generate
// over the memory window, handle a tool round, extract and validate
// structured output when a shape is declared, update running statistics,
// optionally collect feedback, and append the assistant turn.
//
// With WithManualTools the detected tool calls are returned to the caller and
// history is not mutated beyond the appended tool-call turn.
func (a *Agent) Invoke(ctx context.Context, query any, opts ...InvokeOption) (*Result, error) {
	o := invokeOptions{autoExecuteTool: true}
	for _, opt := range opts {
		opt(&o)
	}
	gen := o.gen
	if gen == nil {
		gen = &GenOptions{}
	}

	start := a.now()

	user, err := a.chat.CreateMessage(RoleUser, query)
	if err != nil {
		return nil, err
	}
	a.history.Append(user)

	a.chat.UpdateToolConfig(gen, AddTools)
	if a.output != nil && gen.ResponseFormat == nil {
		gen.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	// The window is the system message plus the most recent memoryWindow-1
	// exchanges; Window re-prepends the system message when the cut drops it.
	reply, err := a.chat.Generate(ctx, a.history.Window(a.memoryWindow-1), gen)
	if err != nil {
		return nil, err
	}

	next, calls, err := a.chat.HandleToolCalls(ctx, reply, a.history, gen, o.autoExecuteTool, a.memoryWindow)
	if err != nil {
		return nil, err
	}
	if calls != nil {
		return &Result{ToolCalls: calls, Reply: reply}, nil
	}
	if next != nil {
		reply = next
	}

	content := reply.Content()
	var structured any
	if a.output != nil {
		content, structured, err = a.extractOutput(ctx, content, gen)
		if err != nil {
			return nil, err
		}
	}

	elapsed := a.now().Sub(start)
	a.invocations++
	a.avgLatency = (a.avgLatency*time.Duration(a.invocations-1) + elapsed) / time.Duration(a.invocations)

	var meta Metadata
	if o.askForFeedback {
		a.logger.Info("asking user to rate the response", "agent", a.name)
		prompt := fmt.Sprintf("Please rate the response with a numerical value between %d and %d", a.ratingMin, a.ratingMax)
		rating, ferr := RequestRating(a.feedbackIn, a.feedbackOut, prompt, a.ratingMin, a.ratingMax)
		if ferr != nil {
			a.logger.Warn("feedback collection failed, continuing without rating", "error", ferr)
		} else {
			a.ratedResponses++
			a.avgRating = (a.avgRating*float64(a.ratedResponses-1) + float64(rating)) / float64(a.ratedResponses)
			meta = Metadata{"rating": rating}
		}
	}

	assistant, err := a.chat.CreateMessage(RoleAssistant, content)
	if err != nil {
		return nil, err
	}
	if meta != nil {
		a.history.Append(assistant, WithMeta(meta))
	} else {
		a.history.Append(assistant)
	}

	return &Result{Content: content, Structured: structured, Reply: reply}, nil
}

// extractOutput runs the bounded extraction-retry loop: locate a JSON span,
// parse it, validate it against the declared shape. On failure, if retries
// remain and auto-reinvoke is enabled, a corrective user message describing
// the exact error is appended, tool configuration is stripped, and the model
// is re-generated. When the budget is exhausted the best-effort text is
// returned with a logged warning instead of an error.
func (a *Agent) extractOutput(ctx context.Context, content string, gen *GenOptions) (string, any, error) {
	for attempt := 0; attempt < a.maxRetries; attempt++ {
		span, ok := extractSpan(content, a.boundary)
		var exErr *ExtractionError
		if !ok {
			exErr = &ExtractionError{Stage: ExtractStageLocate, Err: errors.New("no JSON candidate found in the response")}
		} else {
			var v any
			if err := json.Unmarshal([]byte(span), &v); err != nil {
				exErr = &ExtractionError{Stage: ExtractStageParse, Err: err}
			} else if err := a.output.Validate(v); err != nil {
				exErr = &ExtractionError{Stage: ExtractStageValidate, Err: err}
			} else {
				return span, v, nil
			}
		}

		if attempt < a.maxRetries-1 && a.autoReinvoke {
			a.logger.Error("output was not in the requested JSON shape, re-invoking", "error", exErr)
			corrective := "Your response is not in the proper json format. " +
				"Please provide the response in the format that you are instructed to. " +
				"The following error occurred while parsing the JSON response:\n" + exErr.Error()
			msg, err := a.chat.CreateMessage(RoleUser, corrective)
			if err != nil {
				return "", nil, err
			}
			a.history.Append(msg)
			a.chat.UpdateToolConfig(gen, RemoveTools)

			reply, err := a.chat.Generate(ctx, a.history.Window(a.memoryWindow), gen)
			if err != nil {
				return "", nil, err
			}
			content = reply.Content()
			continue
		}

		a.logger.Warn("output could not be extracted into the requested JSON shape, returning text as is", "error", exErr)
		if ok {
			return span, nil, nil
		}
		return content, nil, nil
	}
	// maxRetries is always >= 1, so the loop either returns or degrades above.
	return content, nil, nil
}
