package agenty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Registry is the global tool registration table. Each tool is stored under a
// caller-chosen key that must be globally unique (typically the source path of
// the tool, e.g. "toolkits/weather"); two tools may share a display name as
// long as their keys differ. Execution goes through a ToolSet produced by
// Select or SelectAll, never through the Registry directly.
//
// Registration and selection are safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	byKey       map[string]Tool
	middlewares []Middleware
	opts        registryOptions
}

// NewRegistry creates a Registry with the given options.
func NewRegistry(opts ...RegistryOption) *Registry {
	o := registryOptions{
		timeout:       5 * time.Second,
		recoverPanics: true,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry{
		byKey: make(map[string]Tool),
		opts:  o,
	}
}

// Register stores a tool under key. Re-registering an existing key fails with
// ErrDuplicateTool: registration-time collisions are programmer defects and
// are never retried.
func (r *Registry) Register(key string, t Tool) error {
	if key == "" {
		return fmt.Errorf("registration key must not be empty")
	}
	if t == nil {
		return fmt.Errorf("tool for key %q must not be nil", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byKey[key]; exists {
		return fmt.Errorf("%w: key %q", ErrDuplicateTool, key)
	}
	r.byKey[key] = t
	return nil
}

// Keys returns all registration keys, sorted for deterministic order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.byKey))
	for key := range r.byKey {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Use stores the given middlewares; ToolSets built afterwards wrap their tools
// with them (onion order: first middleware is outermost). Calling Use again
// replaces the chain; existing ToolSets keep the chain they were built with.
func (r *Registry) Use(middlewares ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = middlewares
}

// SelectAll returns a ToolSet exposing every registered tool.
func (r *Registry) SelectAll() (*ToolSet, error) {
	return r.Select(r.Keys()...)
}

// Select returns a ToolSet exposing only the tools registered under the given
// keys. Unknown keys are dropped with a logged warning, not a hard failure;
// two selected tools resolving to the same display name fail with
// ErrDuplicateTool because the model addresses tools by name.
func (r *Registry) Select(keys ...string) (*ToolSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := &ToolSet{
		tools: make(map[string]Tool, len(keys)),
		opts:  r.opts,
	}
	for _, key := range keys {
		raw, ok := r.byKey[key]
		if !ok {
			r.opts.logger.Warn("tool key not found in registry, dropping", "key", key)
			continue
		}
		t := raw
		for i := len(r.middlewares) - 1; i >= 0; i-- {
			t = r.middlewares[i](t)
		}
		name := t.Name()
		if _, exists := set.tools[name]; exists {
			return nil, fmt.Errorf("%w: name %q", ErrDuplicateTool, name)
		}
		set.tools[name] = t
		set.order = append(set.order, name)
	}
	slices.Sort(set.order)
	return set, nil
}

// ToolSet is an immutable name-keyed view over selected tools: the unit a Chat
// adapter exposes to the model and executes calls against. Building it up
// front pins the tool surface of one agent even while registration continues
// on the shared Registry.
type ToolSet struct {
	tools map[string]Tool
	order []string
	opts  registryOptions
}

// Names returns the tool names in deterministic (sorted) order.
func (s *ToolSet) Names() []string {
	return append([]string(nil), s.order...)
}

// Get returns the named tool, or (nil, false) when absent.
func (s *ToolSet) Get(name string) (Tool, bool) {
	t, ok := s.tools[name]
	return t, ok
}

// Len returns the number of tools in the set.
func (s *ToolSet) Len() int { return len(s.tools) }

// Schemas renders the provider-shape function declarations for every tool in
// the set, in name order. Pure transform, no side effects.
func (s *ToolSet) Schemas() []map[string]any {
	out := make([]map[string]any, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, FunctionSchema(s.tools[name]))
	}
	return out
}

// FunctionSchema renders one tool as a provider-agnostic function-call
// declaration: {type: function, function: {name, description, parameters}}.
func FunctionSchema(t Tool) map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        t.Name(),
			"description": t.Description(),
			"parameters":  t.Parameters(),
		},
	}
}

// Execute runs the calls sequentially and independently, keyed by call ID in
// the returned map. One call's failure never swallows another's result: the
// batch always completes and per-call errors are tagged on their
// ToolCallResult (partial-success policy). An unknown tool name fails that
// call with ErrToolNotFound.
func (s *ToolSet) Execute(ctx context.Context, calls []ToolCall) map[string]ToolCallResult {
	results := make(map[string]ToolCallResult, len(calls))
	for _, call := range calls {
		results[call.ID] = s.executeOne(ctx, call)
	}
	return results
}

func (s *ToolSet) executeOne(ctx context.Context, call ToolCall) (res ToolCallResult) {
	res = ToolCallResult{CallID: call.ID, ToolName: call.ToolName}
	tool, ok := s.tools[call.ToolName]
	if !ok {
		res.Err = fmt.Errorf("%w: %s", ErrToolNotFound, call.ToolName)
		return res
	}

	timeout := s.opts.timeout
	if tm, ok := tool.(ToolMetadata); ok && tm.Timeout() > 0 {
		timeout = tm.Timeout()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	// After-execution hook always fires with the final result (success, error, or panic).
	// The recover defer is registered after it so it runs first and sets res.Err before the hook.
	defer func() {
		if s.opts.onAfter != nil {
			s.opts.onAfter(ctx, call, res, time.Since(start))
		}
	}()
	if s.opts.recoverPanics {
		defer func() {
			if p := recover(); p != nil {
				res.Result = nil
				res.Err = &SystemError{Err: &panicError{p: p}}
			}
		}()
	}

	if s.opts.onBefore != nil {
		s.opts.onBefore(ctx, call)
	}

	out, err := tool.Execute(ctx, call.Args)
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %s", ErrTimeout, call.ToolName)
	}
	res.Result = out
	res.Err = err
	return res
}
