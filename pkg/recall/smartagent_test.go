package recall

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/recall/pkg/history"
	"github.com/harun/recall/pkg/trace"
)

func newTestAgent(t *testing.T, store *history.Store, p *stubProvider, mutate func(*Config)) *SmartAgent {
	t.Helper()
	cfg := Config{
		Store:    store,
		Provider: p,
		Model:    "test-model",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	sa, err := New(cfg)
	require.NoError(t, err)
	return sa
}

func TestNewValidation(t *testing.T) {
	store := newTestStore(t)
	p := &stubProvider{}

	_, err := New(Config{Provider: p, Model: "m"})
	assert.Error(t, err)

	_, err = New(Config{Store: store, Model: "m"})
	assert.Error(t, err)

	_, err = New(Config{Store: store, Provider: p})
	assert.Error(t, err)
}

func TestChatLogsBothTurns(t *testing.T) {
	store := newTestStore(t)
	p := &stubProvider{reply: "the answer"}
	sa := newTestAgent(t, store, p, nil)

	reply, err := sa.Chat(context.Background(), "s1", "a question")
	require.NoError(t, err)
	assert.Equal(t, "the answer", reply)

	recent, err := store.Recent(context.Background(), "s1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	// Newest first: assistant then user
	assistant, user := recent[0], recent[1]
	assert.Equal(t, trace.RoleAssistant, assistant.Role)
	assert.Equal(t, "the answer", assistant.Content)
	assert.True(t, assistant.IsSuccess())
	assert.Equal(t, float64(15), assistant.Metadata[trace.MetaTokensUsed])
	_, hasDuration := assistant.GetMetadata(trace.MetaDurationMS)
	assert.True(t, hasDuration)

	assert.Equal(t, trace.RoleUser, user.Role)
	assert.Equal(t, "a question", user.Content)
	assert.Equal(t, float64(0), user.Metadata[trace.MetaRecalledTraces])
}

func TestChatEmptySession(t *testing.T) {
	store := newTestStore(t)
	sa := newTestAgent(t, store, &stubProvider{}, nil)

	_, err := sa.Chat(context.Background(), "", "hello")
	assert.ErrorIs(t, err, history.ErrEmptySessionID)
}

func TestChatRecallsPastExperience(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Seed an earlier session with relevant material
	_, err := store.LogTurn(ctx, "earlier", trace.RoleAssistant,
		"the parsing bug is fixed by replacing the tab character", trace.Metadata{trace.MetaSuccess: true})
	require.NoError(t, err)

	p := &stubProvider{reply: "replace the tab"}
	sa := newTestAgent(t, store, p, func(c *Config) { c.CrossSession = true })

	_, err = sa.Chat(ctx, "now", "I have a parsing bug again")
	require.NoError(t, err)

	calls := p.calls()
	require.Len(t, calls, 1)
	msgs := calls[0].Messages
	require.Len(t, msgs, 2)

	assert.Equal(t, trace.RoleSystem, msgs[0].Role)
	assert.True(t, strings.HasPrefix(msgs[0].Content, "Relevant past interactions:"))
	assert.Contains(t, msgs[0].Content, "replacing the tab character")

	assert.Equal(t, trace.RoleUser, msgs[1].Role)
	assert.Equal(t, "I have a parsing bug again", msgs[1].Content)

	// The user trace records how much was recalled
	recent, err := store.Recent(ctx, "now", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, float64(1), recent[1].Metadata[trace.MetaRecalledTraces])
}

func TestChatDoesNotRecallOwnUtterance(t *testing.T) {
	store := newTestStore(t)
	p := &stubProvider{reply: "hi"}
	sa := newTestAgent(t, store, p, nil)

	_, err := sa.Chat(context.Background(), "fresh", "completely novel utterance")
	require.NoError(t, err)

	calls := p.calls()
	require.Len(t, calls, 1)
	// Nothing stored beforehand, so no context message precedes the utterance
	require.Len(t, calls[0].Messages, 1)
	assert.Equal(t, trace.RoleUser, calls[0].Messages[0].Role)
}

func TestChatProviderFailureStillLogged(t *testing.T) {
	store := newTestStore(t)
	p := &stubProvider{err: errors.New("invalid api key")}
	sa := newTestAgent(t, store, p, nil)

	_, err := sa.Chat(context.Background(), "s1", "please answer")
	require.Error(t, err)
	assert.ErrorIs(t, err, history.ErrUpstream)

	recent, err := store.Recent(context.Background(), "s1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	assistant := recent[0]
	assert.Equal(t, trace.RoleAssistant, assistant.Role)
	assert.Empty(t, assistant.Content)
	assert.False(t, assistant.IsSuccess())
	assert.Contains(t, assistant.Metadata[trace.MetaError], "invalid api key")
}

func TestChatTimeoutStillLogged(t *testing.T) {
	store := newTestStore(t)
	p := &stubProvider{block: true}
	sa := newTestAgent(t, store, p, func(c *Config) {
		c.GenerateTimeout = 50 * time.Millisecond
	})

	start := time.Now()
	_, err := sa.Chat(context.Background(), "s1", "slow question")
	require.Error(t, err)
	assert.ErrorIs(t, err, history.ErrUpstream)
	assert.Less(t, time.Since(start), 5*time.Second)

	recent, err := store.Recent(context.Background(), "s1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.False(t, recent[0].IsSuccess())
	assert.Equal(t, trace.RoleUser, recent[1].Role)
}

func TestChatCallerCancellation(t *testing.T) {
	store := newTestStore(t)
	p := &stubProvider{block: true}
	sa := newTestAgent(t, store, p, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := sa.Chat(ctx, "s1", "cancelled question")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	// Cancellation still leaves the full turn in the history: the user
	// utterance plus a failed assistant trace written after ctx died.
	recent, err := store.Recent(context.Background(), "s1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	assistant := recent[0]
	assert.Equal(t, trace.RoleAssistant, assistant.Role)
	assert.Empty(t, assistant.Content)
	assert.False(t, assistant.IsSuccess())
	assert.Contains(t, assistant.Metadata[trace.MetaError], "context canceled")
	assert.Equal(t, trace.RoleUser, recent[1].Role)
}

func TestChatSummarizesEveryN(t *testing.T) {
	store := newTestStore(t)
	p := &stubProvider{reply: "ok"}

	summarizerCalls := 0
	sa := newTestAgent(t, store, p, func(c *Config) {
		c.SummarizeEvery = 2
		c.Summarizer = func(ctx context.Context, hist []trace.Trace) (string, error) {
			summarizerCalls++
			return "rolling summary", nil
		}
	})

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := sa.Chat(ctx, "s1", "turn")
		require.NoError(t, err)
	}

	assert.Equal(t, 2, summarizerCalls)

	info, err := store.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "rolling summary", info.Summary)
}

func TestChatSummarizerFailureDoesNotFailTurn(t *testing.T) {
	store := newTestStore(t)
	p := &stubProvider{reply: "ok"}
	sa := newTestAgent(t, store, p, func(c *Config) {
		c.SummarizeEvery = 1
		c.Summarizer = func(context.Context, []trace.Trace) (string, error) {
			return "", errors.New("summarizer down")
		}
	})

	reply, err := sa.Chat(context.Background(), "s1", "turn one")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
}

func TestChatSummarizationDisabled(t *testing.T) {
	store := newTestStore(t)
	p := &stubProvider{reply: "ok"}
	sa := newTestAgent(t, store, p, func(c *Config) {
		c.SummarizeEvery = -1
		c.Summarizer = func(context.Context, []trace.Trace) (string, error) {
			t.Fatal("summarizer must not run when disabled")
			return "", nil
		}
	})

	_, err := sa.Chat(context.Background(), "s1", "turn")
	require.NoError(t, err)
}

func TestForcedSummarize(t *testing.T) {
	store := newTestStore(t)
	p := &stubProvider{reply: "a concise summary"}
	sa := newTestAgent(t, store, p, nil)

	_, err := sa.Chat(context.Background(), "s1", "something to remember")
	require.NoError(t, err)

	summary, err := sa.Summarize(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "a concise summary", summary)
}
