package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// ScriptedServer is an httptest server that plays canned chat-completion
// replies in order and records every raw request body. When the script runs
// out it keeps answering with an empty text reply.
type ScriptedServer struct {
	*httptest.Server

	mu       sync.Mutex
	replies  []string
	requests [][]byte
}

// NewScriptedServer starts a scripted chat-completions server. The server is
// closed automatically when the test finishes; point the Chat adapter at
// s.URL.
func NewScriptedServer(t *testing.T, replies ...string) *ScriptedServer {
	t.Helper()
	s := &ScriptedServer{replies: replies}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		s.mu.Lock()
		s.requests = append(s.requests, body)
		reply := TextReply("")
		if len(s.replies) > 0 {
			reply = s.replies[0]
			s.replies = s.replies[1:]
		}
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(s.Close)
	return s
}

// Requests returns the raw request bodies received so far.
func (s *ScriptedServer) Requests() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.requests))
	copy(out, s.requests)
	return out
}

// TextReply builds a chat-completions response body with a plain assistant
// message.
func TextReply(content string) string {
	return marshalReply(map[string]any{
		"role":    "assistant",
		"content": content,
	}, "stop")
}

// ToolCallSpec describes one requested tool call in a scripted reply.
type ToolCallSpec struct {
	ID   string
	Name string
	Args string
}

// ToolCallReply builds a chat-completions response body with an assistant
// message requesting the given tool calls.
func ToolCallReply(calls ...ToolCallSpec) string {
	wire := make([]map[string]any, 0, len(calls))
	for _, c := range calls {
		wire = append(wire, map[string]any{
			"id":   c.ID,
			"type": "function",
			"function": map[string]any{
				"name":      c.Name,
				"arguments": c.Args,
			},
		})
	}
	return marshalReply(map[string]any{
		"role":       "assistant",
		"content":    "",
		"tool_calls": wire,
	}, "tool_calls")
}

func marshalReply(message map[string]any, finishReason string) string {
	body := map[string]any{
		"id":    "chatcmpl-test",
		"model": "test-model",
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       message,
				"finish_reason": finishReason,
			},
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	return string(data)
}
