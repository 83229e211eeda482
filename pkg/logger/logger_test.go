package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldsFromArgs(t *testing.T) {
	fields := fieldsFromArgs([]any{"flow_id", uint(7), errors.New("boom"), "dangling"})

	assert.Equal(t, uint(7), fields["flow_id"])
	assert.Equal(t, "boom", fields["error"])
	assert.Equal(t, "dangling", fields["detail"])
}

func TestInfoCtx_WritesTraceID(t *testing.T) {
	Init("production", "", "")
	var buf bytes.Buffer
	SetOutput(&buf)

	ctx := WithTraceID(context.Background(), "trace-123")
	InfoCtx(ctx, "flow_dispatched", "flow_id", 9)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "flow_dispatched", line["msg"])
	assert.Equal(t, "trace-123", line["trace_id"])
	assert.EqualValues(t, 9, line["flow_id"])
}

func TestTraceIDFromContext_Missing(t *testing.T) {
	assert.Equal(t, "", TraceIDFromContext(context.Background()))
}
