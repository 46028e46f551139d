package recall

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/harun/recall/pkg/agent"
	"github.com/harun/recall/pkg/history"
)

func newTestStore(t *testing.T) *history.Store {
	t.Helper()
	s, err := history.Open(history.Config{
		Path:   filepath.Join(t.TempDir(), "recall.db"),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// stubProvider is a canned agent.Provider for orchestrator tests
type stubProvider struct {
	mu       sync.Mutex
	reply    string
	err      error
	block    bool
	requests []agent.Request
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Generate(ctx context.Context, req agent.Request) (*agent.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return &agent.Response{
		Content: s.reply,
		Usage:   &agent.TokenUsage{InputTokens: 10, OutputTokens: 5},
	}, nil
}

func (s *stubProvider) calls() []agent.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]agent.Request, len(s.requests))
	copy(out, s.requests)
	return out
}
