package agenty

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Snapshot serializes the agent's identity, configuration, and running
// statistics into a plain map suitable for JSON storage. Runtime references
// (the Chat adapter, prepared tools, compiled output schemas) are never
// persisted; the schemas submapping only names the declared output shape so a
// restoring caller knows what to re-attach.
func (a *Agent) Snapshot(includeHistory bool) (map[string]any, error) {
	schemas := map[string]any{}
	if a.output != nil {
		schemas["output_schema"] = a.output.Name()
	}
	snap := map[string]any{
		"object_id":       a.objectID,
		"base_class":      "Agent",
		"schemas":         schemas,
		"name":            a.name,
		"description":     a.description,
		"system_prompt":   a.systemPrompt,
		"memory_window":   a.memoryWindow,
		"max_retries":     a.maxRetries,
		"auto_reinvoke":   a.autoReinvoke,
		"boundary_start":  a.boundary.Start,
		"boundary_end":    a.boundary.End,
		"response_time":   a.avgLatency.Seconds(),
		"popularity":      a.invocations,
		"rated_responses": a.ratedResponses,
		"average_rating":  a.avgRating,
	}
	if includeHistory {
		data, err := json.Marshal(a.history)
		if err != nil {
			return nil, fmt.Errorf("marshal chat history: %w", err)
		}
		var records []json.RawMessage
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("re-decode chat history: %w", err)
		}
		snap["chat_history"] = records
	}
	return snap, nil
}

// SaveJSON writes the agent snapshot to path as indented JSON. When existOK is
// false and the file already exists, an error is returned and nothing is
// written.
func (a *Agent) SaveJSON(path string, includeHistory, existOK bool) error {
	if !existOK {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("file already exists: %s", path)
		}
	}
	snap, err := a.Snapshot(includeHistory)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal agent snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write agent snapshot: %w", err)
	}
	return nil
}

// RestoreAgent rebuilds an Agent from a snapshot produced by Snapshot. The
// caller supplies the live Chat adapter and any options that cannot be
// persisted, such as WithOutputSchema and WithTools; caller options are
// applied after the snapshot fields and therefore win. A persisted history is
// replayed into the fresh agent, skipping the leading system record because
// the constructor already appended one.
func RestoreAgent(snap map[string]any, chat *Chat, opts ...AgentOption) (*Agent, error) {
	if base, ok := snap["base_class"].(string); ok && base != "Agent" {
		return nil, fmt.Errorf("snapshot is not an Agent: base_class %q", base)
	}

	restored := []AgentOption{
		WithName(snapString(snap, "name", "Assistant")),
		WithDescription(snapString(snap, "description", "")),
		WithSystemPrompt(snapString(snap, "system_prompt", "")),
		WithObjectID(snapString(snap, "object_id", "")),
		WithMemoryWindow(snapInt(snap, "memory_window", 5)),
		WithMaxRetries(snapInt(snap, "max_retries", 1)),
		WithAutoReinvoke(snapBool(snap, "auto_reinvoke", true)),
	}
	if start, ok := snap["boundary_start"].(string); ok {
		restored = append(restored, WithBoundary(Boundary{
			Start: start,
			End:   snapString(snap, "boundary_end", ""),
		}))
	}
	restored = append(restored, opts...)

	a, err := NewAgent(chat, restored...)
	if err != nil {
		return nil, err
	}

	a.invocations = snapInt(snap, "popularity", 0)
	a.avgLatency = secondsToDuration(snapFloat(snap, "response_time", 0))
	a.ratedResponses = snapInt(snap, "rated_responses", 0)
	a.avgRating = snapFloat(snap, "average_rating", 0)

	if raw, ok := snap["chat_history"]; ok {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("re-encode chat history: %w", err)
		}
		saved := NewChatHistory()
		if err := json.Unmarshal(data, saved); err != nil {
			return nil, fmt.Errorf("decode chat history: %w", err)
		}
		msgs := saved.Messages()
		metas := saved.Metadata()
		for i, msg := range msgs {
			if i == 0 && msg.Role == RoleSystem {
				continue
			}
			a.history.Append(msg, WithMeta(metas[i]))
		}
	}
	return a, nil
}

// LoadAgent reads a snapshot file written by SaveJSON and restores the agent.
func LoadAgent(path string, chat *Chat, opts ...AgentOption) (*Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent snapshot: %w", err)
	}
	var snap map[string]any
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode agent snapshot: %w", err)
	}
	return RestoreAgent(snap, chat, opts...)
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

func snapString(m map[string]any, key, def string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return def
}

func snapInt(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func snapFloat(m map[string]any, key string, def float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func snapBool(m map[string]any, key string, def bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}
