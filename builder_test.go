package agenty_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skosovsky/agenty"
)

type addArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

type addResult struct {
	Sum int `json:"sum"`
}

func newAddTool(t *testing.T, opts ...agenty.ToolOption) agenty.Tool {
	t.Helper()
	tool, err := agenty.NewTool("add", "Add two integers",
		func(_ context.Context, args addArgs) (addResult, error) {
			return addResult{Sum: args.A + args.B}, nil
		}, opts...)
	require.NoError(t, err)
	return tool
}

func TestNewToolExecute(t *testing.T) {
	t.Parallel()
	tool := newAddTool(t)

	out, err := tool.Execute(context.Background(), []byte(`{"a":3,"b":5}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"sum":8}`, string(out))
}

func TestNewToolRejectsInvalidArgs(t *testing.T) {
	t.Parallel()
	tool := newAddTool(t)

	t.Run("malformed json", func(t *testing.T) {
		t.Parallel()
		_, err := tool.Execute(context.Background(), []byte(`{`))
		require.Error(t, err)
		assert.True(t, agenty.IsClientError(err))
	})

	t.Run("wrong type", func(t *testing.T) {
		t.Parallel()
		_, err := tool.Execute(context.Background(), []byte(`{"a":"three","b":5}`))
		require.Error(t, err)
		assert.True(t, agenty.IsClientError(err))
		assert.ErrorIs(t, err, agenty.ErrValidation)
	})
}

func TestNewToolHandlerErrors(t *testing.T) {
	t.Parallel()

	t.Run("client error passes through", func(t *testing.T) {
		t.Parallel()
		tool, err := agenty.NewTool("fail", "Always fails",
			func(_ context.Context, _ addArgs) (addResult, error) {
				return addResult{}, &agenty.ClientError{Reason: "a must be positive"}
			})
		require.NoError(t, err)
		_, err = tool.Execute(context.Background(), []byte(`{"a":1,"b":2}`))
		assert.True(t, agenty.IsClientError(err))
		assert.Contains(t, err.Error(), "a must be positive")
	})

	t.Run("generic error is wrapped as system error", func(t *testing.T) {
		t.Parallel()
		tool, err := agenty.NewTool("fail", "Always fails",
			func(_ context.Context, _ addArgs) (addResult, error) {
				return addResult{}, errors.New("db: broken pipe")
			})
		require.NoError(t, err)
		_, err = tool.Execute(context.Background(), []byte(`{"a":1,"b":2}`))
		assert.True(t, agenty.IsSystemError(err))
		assert.NotContains(t, err.Error(), "broken pipe")
	})
}

func TestNewToolMetadata(t *testing.T) {
	t.Parallel()
	tool := newAddTool(t,
		agenty.WithTimeout(2*time.Second),
		agenty.WithTags("math", "demo"),
		agenty.WithVersion("1.2.0"),
		agenty.WithDangerous(),
	)

	meta, ok := tool.(agenty.ToolMetadata)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, meta.Timeout())
	assert.Equal(t, []string{"math", "demo"}, meta.Tags())
	assert.Equal(t, "1.2.0", meta.Version())
	assert.True(t, meta.IsDangerous())
}

func TestNewRawTool(t *testing.T) {
	t.Parallel()
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city": map[string]any{"type": "string"},
		},
		"required": []any{"city"},
	}
	tool, err := agenty.NewRawTool("weather", "Weather lookup", schema,
		func(_ context.Context, argsJSON []byte) ([]byte, error) {
			return []byte(`{"temp":21}`), nil
		})
	require.NoError(t, err)

	out, err := tool.Execute(context.Background(), []byte(`{"city":"Lisbon"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"temp":21}`, string(out))

	_, err = tool.Execute(context.Background(), []byte(`{}`))
	require.Error(t, err, "missing required property fails validation")
	assert.True(t, agenty.IsClientError(err))
}

func TestNewRawToolConstruction(t *testing.T) {
	t.Parallel()
	fn := func(_ context.Context, _ []byte) ([]byte, error) { return nil, nil }

	_, err := agenty.NewRawTool("x", "d", nil, fn)
	require.Error(t, err)

	_, err = agenty.NewRawTool("x", "d", map[string]any{"type": "object"}, nil)
	require.Error(t, err)
}

func TestNewRawToolDoesNotMutateCallerSchema(t *testing.T) {
	t.Parallel()
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "integer"},
		},
	}
	_, err := agenty.NewRawTool("x", "d", schema,
		func(_ context.Context, _ []byte) ([]byte, error) { return nil, nil },
		agenty.WithStrict())
	require.NoError(t, err)

	_, mutated := schema["additionalProperties"]
	assert.False(t, mutated, "strict mode must apply to the copy only")
	_, mutated = schema["required"]
	assert.False(t, mutated)
}
