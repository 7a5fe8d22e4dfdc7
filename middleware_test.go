package agenty_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skosovsky/agenty"
	"github.com/skosovsky/agenty/testutil"
)

func TestWithLogging(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	tool := agenty.WithLogging(logger)(&testutil.MockTool{
		NameVal: "echo",
		ExecuteFn: func(_ context.Context, args []byte) ([]byte, error) {
			return args, nil
		},
	})

	out, err := tool.Execute(context.Background(), []byte(`{"x":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, string(out))
	assert.Contains(t, buf.String(), "echo")
}

func TestWithRecovery(t *testing.T) {
	t.Parallel()
	tool := agenty.WithRecovery()(&testutil.MockTool{
		NameVal: "panicky",
		ExecuteFn: func(_ context.Context, _ []byte) ([]byte, error) {
			panic("boom")
		},
	})

	_, err := tool.Execute(context.Background(), []byte(`{}`))
	require.Error(t, err)
	assert.True(t, agenty.IsSystemError(err))
}

func TestWithTimeoutMiddleware(t *testing.T) {
	t.Parallel()
	tool := agenty.WithTimeoutMiddleware(20 * time.Millisecond)(&testutil.MockTool{
		NameVal: "slow",
		ExecuteFn: func(ctx context.Context, _ []byte) ([]byte, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Second):
				return []byte(`{}`), nil
			}
		},
	})

	_, err := tool.Execute(context.Background(), []byte(`{}`))
	require.Error(t, err)
}

func TestMiddlewarePreservesMetadata(t *testing.T) {
	t.Parallel()
	inner, err := agenty.NewTool("add", "Add",
		func(_ context.Context, in addArgs) (addResult, error) {
			return addResult{Sum: in.A + in.B}, nil
		},
		agenty.WithTimeout(3*time.Second),
		agenty.WithTags("math"),
	)
	require.NoError(t, err)

	wrapped := agenty.WithRecovery()(inner)
	meta, ok := wrapped.(agenty.ToolMetadata)
	require.True(t, ok, "middleware must pass metadata through")
	assert.Equal(t, 3*time.Second, meta.Timeout())
	assert.Equal(t, []string{"math"}, meta.Tags())
	assert.Equal(t, "add", wrapped.Name())
}
