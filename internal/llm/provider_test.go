package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	forgeerrors "github.com/maxxentropy/agentforge-sub001/internal/errors"
)

func TestEstimateCounter(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "short", text: "abc", want: 0},
		{name: "eight chars", text: "abcdefgh", want: 2},
		{name: "sentence", text: "Fix the complexity violation in parser.py", want: 10},
	}

	counter := EstimateCounter{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, counter.Count(tt.text))
		})
	}
}

func TestNewTiktokenCounter_UnknownEncoding(t *testing.T) {
	_, err := NewTiktokenCounter("no-such-encoding")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-encoding")
}

func TestTokenUsage_Total(t *testing.T) {
	usage := TokenUsage{PromptTokens: 1200, ResponseTokens: 300}
	assert.Equal(t, 1500, usage.Total())
	assert.Zero(t, TokenUsage{}.Total())
}

func TestScriptedProvider(t *testing.T) {
	t.Run("replays responses in order", func(t *testing.T) {
		p := NewScriptedProvider("first", "second")

		resp, err := p.Generate(context.Background(), &Request{User: "a"})
		require.NoError(t, err)
		assert.Equal(t, "first", resp.Text)

		resp, err = p.Generate(context.Background(), &Request{User: "b"})
		require.NoError(t, err)
		assert.Equal(t, "second", resp.Text)
	})

	t.Run("records requests", func(t *testing.T) {
		p := NewScriptedProvider("ok")

		_, err := p.Generate(context.Background(), &Request{System: "sys", User: "usr"})
		require.NoError(t, err)

		calls := p.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, "sys", calls[0].System)
		assert.Equal(t, "usr", calls[0].User)
		assert.Equal(t, 1, p.CallCount())
	})

	t.Run("estimates usage", func(t *testing.T) {
		p := NewScriptedProvider("12345678")

		resp, err := p.Generate(context.Background(), &Request{User: "abcdefgh"})
		require.NoError(t, err)
		assert.Equal(t, 2, resp.Usage.PromptTokens)
		assert.Equal(t, 2, resp.Usage.ResponseTokens)
	})

	t.Run("errors when the script runs out", func(t *testing.T) {
		p := NewScriptedProvider("only")

		_, err := p.Generate(context.Background(), &Request{User: "a"})
		require.NoError(t, err)

		_, err = p.Generate(context.Background(), &Request{User: "b"})
		require.ErrorIs(t, err, forgeerrors.ErrProviderEmptyResponse)
		assert.Equal(t, 2, p.CallCount(), "the exhausted call is still recorded")
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		p := NewScriptedProvider("ok")
		_, err := p.Generate(ctx, &Request{User: "a"})

		require.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, p.CallCount())
	})
}
