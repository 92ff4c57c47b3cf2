package model

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benbuzz790/llm-utilities/core"
)

func TestProviderError_Classification(t *testing.T) {
	base := errors.New("overloaded")

	transient := ClassifyStatus("anthropic", 529, base)
	assert.True(t, IsTransient(transient))
	assert.ErrorIs(t, transient, ErrTransient)
	assert.NotErrorIs(t, transient, ErrFatal)
	assert.ErrorIs(t, transient, base)

	fatal := ClassifyStatus("anthropic", 400, base)
	assert.False(t, IsTransient(fatal))
	assert.ErrorIs(t, fatal, ErrFatal)

	wrapped := fmt.Errorf("send: %w", &ProviderError{Provider: "openai", Transient: true, RetryAfter: 2 * time.Second, Err: base})
	assert.True(t, IsTransient(wrapped))
	assert.Equal(t, 2*time.Second, RetryAfter(wrapped))

	assert.False(t, IsTransient(base), "unclassified errors are fatal")
	for _, s := range []int{429, 500, 502, 503, 504, 529} {
		assert.True(t, TransientStatus(s), s)
	}
	assert.False(t, TransientStatus(401))
}

func TestMockProvider_Script(t *testing.T) {
	ctx := context.Background()
	boom := NewTransientError("mock", 500, errors.New("boom"))

	m := NewMockProvider("stub").
		EnqueueError(boom).
		EnqueueText("hi there")

	req := &Request{Messages: []core.Message{{Role: core.RoleUser, Content: core.Text("hello")}}}

	_, err := m.Send(ctx, req)
	assert.ErrorIs(t, err, boom)

	resp, err := m.Send(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Text())
	assert.Equal(t, StopEndTurn, resp.StopReason)

	resp, err = m.Send(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: hello", resp.Text())

	m.SetHandler(func(*Request) (*Response, error) {
		return &Response{Content: core.Text("handled"), StopReason: StopEndTurn}, nil
	})
	resp, err = m.Send(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "handled", resp.Text())

	assert.Equal(t, 4, m.Calls())
	assert.Equal(t, "mock", m.Info().Provider)
}

func TestMockProvider_RecordsCopies(t *testing.T) {
	m := NewMockProvider("stub")
	req := &Request{Messages: []core.Message{{Role: core.RoleUser, Content: core.Segments(core.TextPart{Text: "x"})}}}
	_, err := m.Send(context.Background(), req)
	require.NoError(t, err)

	req.Messages[0].Content.Parts[0] = core.TextPart{Text: "mutated"}
	assert.Equal(t, "x", m.Requests()[0].Messages[0].Content.PlainText())
}

func TestMockProvider_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockProvider("stub").Send(ctx, &Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRequest_MaxTokensOrDefault(t *testing.T) {
	assert.Equal(t, 4096, (&Request{}).MaxTokensOrDefault())
	assert.Equal(t, 10, (&Request{MaxTokens: 10}).MaxTokensOrDefault())
}
