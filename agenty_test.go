package agenty_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/agenty"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestToolCallResultContent(t *testing.T) {
	t.Parallel()

	t.Run("success passes result through", func(t *testing.T) {
		t.Parallel()
		res := agenty.ToolCallResult{Result: []byte(`{"sum":8}`)}
		assert.Equal(t, `{"sum":8}`, res.Content())
	})

	t.Run("client error keeps its self-correction message", func(t *testing.T) {
		t.Parallel()
		res := agenty.ToolCallResult{Err: &agenty.ClientError{Reason: "field a is required"}}
		assert.Equal(t, "invalid tool input: field a is required", res.Content())
	})

	t.Run("unknown tool names the tool", func(t *testing.T) {
		t.Parallel()
		res := agenty.ToolCallResult{
			ToolName: "ghost",
			Err:      agenty.ErrToolNotFound,
		}
		assert.Equal(t, "tool not found: ghost", res.Content())
	})

	t.Run("system error is masked", func(t *testing.T) {
		t.Parallel()
		res := agenty.ToolCallResult{Err: &agenty.SystemError{Err: errors.New("pg: connection refused")}}
		assert.Equal(t, "tool execution failed", res.Content())
		assert.NotContains(t, res.Content(), "pg:")
	})
}

func TestFunctionSchema(t *testing.T) {
	t.Parallel()
	tool, err := agenty.NewTool("echo", "Echo input", func(_ context.Context, in struct {
		Text string `json:"text"`
	}) (string, error) {
		return in.Text, nil
	})
	require.NoError(t, err)

	fs := agenty.FunctionSchema(tool)
	assert.Equal(t, "function", fs["type"])
	fn, ok := fs["function"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "echo", fn["name"])
	assert.Equal(t, "Echo input", fn["description"])
	params, ok := fn["parameters"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "object", params["type"])
}
