package agenty_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skosovsky/agenty"
	"github.com/skosovsky/agenty/testutil"
)

func TestRegistryRegister(t *testing.T) {
	t.Parallel()
	reg := agenty.NewRegistry()

	require.NoError(t, reg.Register("tools/a", &testutil.MockTool{NameVal: "a"}))
	err := reg.Register("tools/a", &testutil.MockTool{NameVal: "other"})
	require.ErrorIs(t, err, agenty.ErrDuplicateTool)

	require.Error(t, reg.Register("", &testutil.MockTool{NameVal: "b"}))
	require.Error(t, reg.Register("tools/nil", nil))
}

func TestRegistryKeysSorted(t *testing.T) {
	t.Parallel()
	reg := agenty.NewRegistry()
	require.NoError(t, reg.Register("z/tool", &testutil.MockTool{NameVal: "z"}))
	require.NoError(t, reg.Register("a/tool", &testutil.MockTool{NameVal: "a"}))
	require.NoError(t, reg.Register("m/tool", &testutil.MockTool{NameVal: "m"}))
	assert.Equal(t, []string{"a/tool", "m/tool", "z/tool"}, reg.Keys())
}

func TestRegistrySelectDropsUnknownKeys(t *testing.T) {
	t.Parallel()
	reg := agenty.NewRegistry()
	require.NoError(t, reg.Register("tools/known", &testutil.MockTool{NameVal: "known"}))

	set, err := reg.Select("tools/known", "tools/missing")
	require.NoError(t, err, "unknown keys are dropped, not fatal")
	assert.Equal(t, []string{"known"}, set.Names())
}

func TestRegistrySelectNameCollision(t *testing.T) {
	t.Parallel()
	reg := agenty.NewRegistry()
	require.NoError(t, reg.Register("pkg1/echo", &testutil.MockTool{NameVal: "echo"}))
	require.NoError(t, reg.Register("pkg2/echo", &testutil.MockTool{NameVal: "echo"}))

	// Same display name under different keys is fine to register but cannot
	// be selected together: the model addresses tools by name.
	_, err := reg.Select("pkg1/echo", "pkg2/echo")
	require.ErrorIs(t, err, agenty.ErrDuplicateTool)

	set, err := reg.Select("pkg1/echo")
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())
}

func TestToolSetExecutePartialSuccess(t *testing.T) {
	t.Parallel()
	ok := &testutil.MockTool{NameVal: "ok", ExecuteFn: func(_ context.Context, _ []byte) ([]byte, error) {
		return []byte(`{"done":true}`), nil
	}}
	boom := &testutil.MockTool{NameVal: "boom", ExecuteFn: func(_ context.Context, _ []byte) ([]byte, error) {
		return nil, &agenty.SystemError{Err: errors.New("backend down")}
	}}
	reg := agenty.NewRegistry()
	require.NoError(t, reg.Register("tools/ok", ok))
	require.NoError(t, reg.Register("tools/boom", boom))
	set, err := reg.SelectAll()
	require.NoError(t, err)

	results := set.Execute(context.Background(), []agenty.ToolCall{
		{ID: "1", ToolName: "ok", Args: []byte(`{}`)},
		{ID: "2", ToolName: "boom", Args: []byte(`{}`)},
		{ID: "3", ToolName: "ghost", Args: []byte(`{}`)},
	})

	require.Len(t, results, 3, "one failure never swallows the batch")
	require.NoError(t, results["1"].Err)
	assert.Equal(t, `{"done":true}`, results["1"].Content())
	require.Error(t, results["2"].Err)
	assert.True(t, agenty.IsSystemError(results["2"].Err))
	require.ErrorIs(t, results["3"].Err, agenty.ErrToolNotFound)
	assert.Equal(t, "tool not found: ghost", results["3"].Content())
}

func TestToolSetExecuteTimeout(t *testing.T) {
	t.Parallel()
	slow := &testutil.MockTool{NameVal: "slow", ExecuteFn: func(ctx context.Context, _ []byte) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	reg := agenty.NewRegistry(agenty.WithDefaultTimeout(20 * time.Millisecond))
	require.NoError(t, reg.Register("tools/slow", slow))
	set, err := reg.SelectAll()
	require.NoError(t, err)

	results := set.Execute(context.Background(), []agenty.ToolCall{{ID: "1", ToolName: "slow"}})
	require.ErrorIs(t, results["1"].Err, agenty.ErrTimeout)
}

func TestToolSetExecuteRecoversPanic(t *testing.T) {
	t.Parallel()
	panicky := &testutil.MockTool{NameVal: "panicky", ExecuteFn: func(_ context.Context, _ []byte) ([]byte, error) {
		panic("boom")
	}}
	reg := agenty.NewRegistry(agenty.WithRecoverPanics(true))
	require.NoError(t, reg.Register("tools/panicky", panicky))
	set, err := reg.SelectAll()
	require.NoError(t, err)

	results := set.Execute(context.Background(), []agenty.ToolCall{{ID: "1", ToolName: "panicky"}})
	require.Error(t, results["1"].Err)
	assert.True(t, agenty.IsSystemError(results["1"].Err))
	assert.Equal(t, "tool execution failed", results["1"].Content())
}

func TestToolSetExecuteHooks(t *testing.T) {
	t.Parallel()
	var before, after int
	reg := agenty.NewRegistry(
		agenty.WithOnBeforeExecute(func(_ context.Context, _ agenty.ToolCall) { before++ }),
		agenty.WithOnAfterExecute(func(_ context.Context, _ agenty.ToolCall, _ agenty.ToolCallResult, _ time.Duration) { after++ }),
	)
	require.NoError(t, reg.Register("tools/m", &testutil.MockTool{NameVal: "m"}))
	set, err := reg.SelectAll()
	require.NoError(t, err)

	set.Execute(context.Background(), []agenty.ToolCall{{ID: "1", ToolName: "m"}})
	assert.Equal(t, 1, before)
	assert.Equal(t, 1, after)
}

func TestToolSetSchemas(t *testing.T) {
	t.Parallel()
	reg := agenty.NewRegistry()
	require.NoError(t, reg.Register("tools/b", &testutil.MockTool{NameVal: "b", DescVal: "B tool"}))
	require.NoError(t, reg.Register("tools/a", &testutil.MockTool{NameVal: "a", DescVal: "A tool"}))
	set, err := reg.SelectAll()
	require.NoError(t, err)

	schemas := set.Schemas()
	require.Len(t, schemas, 2)
	first, ok := schemas[0]["function"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a", first["name"], "schemas render in name order")
}

func TestRegistryUseMiddleware(t *testing.T) {
	t.Parallel()
	var order []string
	mw := func(label string) agenty.Middleware {
		return func(next agenty.Tool) agenty.Tool {
			return &labelledTool{Tool: next, label: label, order: &order}
		}
	}
	reg := agenty.NewRegistry()
	require.NoError(t, reg.Register("tools/m", &testutil.MockTool{NameVal: "m"}))
	reg.Use(mw("outer"), mw("inner"))

	set, err := reg.SelectAll()
	require.NoError(t, err)
	set.Execute(context.Background(), []agenty.ToolCall{{ID: "1", ToolName: "m"}})
	assert.Equal(t, []string{"outer", "inner"}, order, "first middleware is outermost")
}

type labelledTool struct {
	agenty.Tool
	label string
	order *[]string
}

func (l *labelledTool) Execute(ctx context.Context, args []byte) ([]byte, error) {
	*l.order = append(*l.order, l.label)
	return l.Tool.Execute(ctx, args)
}
