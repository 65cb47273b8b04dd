package llm

import (
	"context"
	"fmt"
	"sync"

	forgeerrors "github.com/maxxentropy/agentforge-sub001/internal/errors"
)

// ScriptedProvider replays canned responses in order. It is the test
// double the engine and workflow tests drive deterministic runs with.
type ScriptedProvider struct {
	mu        sync.Mutex
	responses []string
	calls     []*Request
}

// NewScriptedProvider creates a provider that returns the given
// responses one per call, in order.
func NewScriptedProvider(responses ...string) *ScriptedProvider {
	return &ScriptedProvider{responses: responses}
}

// Generate returns the next scripted response. Calls beyond the script
// fail, so tests must size their scripts to the expected step count.
func (p *ScriptedProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, req)
	if len(p.calls) > len(p.responses) {
		return nil, fmt.Errorf("%w: script exhausted after %d responses", forgeerrors.ErrProviderEmptyResponse, len(p.responses))
	}

	text := p.responses[len(p.calls)-1]
	counter := EstimateCounter{}
	return &Response{
		Text: text,
		Usage: TokenUsage{
			PromptTokens:   counter.Count(req.System) + counter.Count(req.User),
			ResponseTokens: counter.Count(text),
		},
	}, nil
}

// Calls returns the requests received so far.
func (p *ScriptedProvider) Calls() []*Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Request, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns how many times Generate ran.
func (p *ScriptedProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// Compile-time check that ScriptedProvider implements Provider.
var _ Provider = (*ScriptedProvider)(nil)
