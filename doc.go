// Package agenty provides a conversation and tool-call orchestration core for
// LLM agents: bounded conversational memory, safe execution of model-issued
// tool calls, and extraction of schema-validated structured output from
// free-form model text.
//
// # Overview
//
// A model reply is either a final answer or a request to execute named
// functions. This package turns that protocol into Go: an Agent appends the
// user turn to its ChatHistory, asks a Chat adapter to generate over an
// exchange-aligned memory window, executes any requested ToolCall through a
// Registry (unmarshal → validate against the same JSON Schema shown to the
// model → call → marshal), and re-invokes the model with the results. When an
// OutputSchema is declared, the Agent extracts and validates a JSON span from
// the answer, feeding parse errors back to the model for self-correction.
//
// Pipeline: Go function + argument struct → NewTool (reflection + schema) →
// Registry → Chat (tool declarations + generation) → Agent.Invoke
// (tool round, extraction-retry loop, rolling stats) → Result.
//
// # Key concepts
//
//   - Single Source of Truth: one set of struct tags drives both the schema
//     sent to the model and the validation of incoming JSON.
//   - Partial Success: ToolSet.Execute collects all results; one failing call
//     does not cancel the rest of the batch.
//   - Self-Correction: ClientError and ExtractionError carry human-readable
//     messages back to the model; internals stay behind SystemError.
//   - Graceful Degradation: when structured output cannot be validated within
//     the retry budget, Invoke returns the best-effort text instead of failing.
//
// See Message, ToolCall and ToolCallResult for the core types, NewTool /
// NewRegistry / NewChat / NewAgent for setup.
//
// # Example
//
//	type Args struct { City string `json:"city" description:"City name"` }
//	type Out  struct { Temp float64 `json:"temp"` }
//	tool, err := agenty.NewTool("weather", "Get weather", func(_ context.Context, a Args) (Out, error) {
//	    return Out{Temp: 22.5}, nil
//	})
//	if err != nil { ... }
//	reg := agenty.NewRegistry()
//	reg.Register("tools/weather", tool)
//	chat, err := agenty.NewChat(agenty.WithModel("gpt-4o-mini"))
//	agent, err := agenty.NewAgent(chat,
//	    agenty.WithSystemPrompt("You are a weather assistant."),
//	    agenty.WithTools(reg))
//	res, err := agent.Invoke(ctx, "How warm is Moscow right now?")
package agenty
