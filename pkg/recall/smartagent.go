package recall

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/recall/internal/observability"
	"github.com/harun/recall/internal/tracing"
	"github.com/harun/recall/pkg/agent"
	"github.com/harun/recall/pkg/history"
	"github.com/harun/recall/pkg/trace"
)

// Defaults tuned for interactive chat
const (
	DefaultTopK            = 4
	DefaultSummarizeEvery  = 20
	DefaultGenerateTimeout = 60 * time.Second
)

// Config configures a SmartAgent
type Config struct {
	Store    *history.Store
	Provider agent.Provider
	Logger   zerolog.Logger

	Model        string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	MaxRetries   int

	// TopK is how many past traces each turn recalls (default 4)
	TopK int

	// SummarizeEvery triggers a session summary every N turns (default 20);
	// negative disables turn-triggered summarization.
	SummarizeEvery int

	// GenerateTimeout bounds one provider call (default 60s)
	GenerateTimeout time.Duration

	// CrossSession recalls from all sessions instead of only the current one
	CrossSession bool

	// Summarizer overrides the default provider-backed summarizer
	Summarizer history.SummarizeFunc
}

// SmartAgent runs a memory-augmented conversation loop: each turn recalls
// relevant past traces, generates a reply with that context, and logs both
// sides of the exchange.
type SmartAgent struct {
	store      *history.Store
	provider   agent.Provider
	logger     zerolog.Logger
	cfg        Config
	summarizer history.SummarizeFunc

	mu    sync.Mutex
	turns map[string]int
}

// New creates a SmartAgent
func New(cfg Config) (*SmartAgent, error) {
	if cfg.Store == nil {
		return nil, errors.New("smart agent requires a store")
	}
	if cfg.Provider == nil {
		return nil, errors.New("smart agent requires a provider")
	}
	if cfg.Model == "" {
		return nil, errors.New("smart agent requires a model")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.SummarizeEvery == 0 {
		cfg.SummarizeEvery = DefaultSummarizeEvery
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = DefaultGenerateTimeout
	}

	summarizer := cfg.Summarizer
	if summarizer == nil {
		summarizer = ProviderSummarizer(cfg.Provider, cfg.Model, cfg.MaxTokens)
	}

	return &SmartAgent{
		store:      cfg.Store,
		provider:   cfg.Provider,
		logger:     cfg.Logger,
		cfg:        cfg,
		summarizer: summarizer,
		turns:      make(map[string]int),
	}, nil
}

// Chat runs one conversational turn. The turn always leaves a trace pair
// behind: the user utterance, and either the assistant reply or a failed
// assistant trace carrying the error. Concurrent calls across sessions are
// safe.
func (sa *SmartAgent) Chat(ctx context.Context, sessionID, utterance string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if sessionID == "" {
		return "", history.ErrEmptySessionID
	}

	ctx = tracing.NewTurnContext(ctx, sessionID)
	ctx, span := tracing.StartSpan(ctx, "recall.agent", "agent.chat")
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, sa.logger)
	turnStart := time.Now()

	// Retrieve before logging so the utterance cannot recall itself
	recalled, err := sa.assembler(sessionID).Recall(ctx, utterance, sa.cfg.TopK)
	if err != nil {
		// Degrade to memory-less generation rather than dropping the turn
		logger.Warn().Err(err).Msg("Recall failed, continuing without context")
		recalled = nil
	}

	if _, err := sa.store.LogTurn(ctx, sessionID, trace.RoleUser, utterance, trace.Metadata{
		trace.MetaRecalledTraces: len(recalled),
	}); err != nil {
		return "", fmt.Errorf("failed to log user turn: %w", err)
	}

	messages := append(RenderContext(recalled), agent.Message{
		Role:    trace.RoleUser,
		Content: utterance,
	})

	genCtx, cancel := context.WithTimeout(ctx, sa.cfg.GenerateTimeout)
	defer cancel()

	genStart := time.Now()
	resp, genErr := agent.GenerateWithRetry(genCtx, sa.provider, agent.Request{
		Model:        sa.cfg.Model,
		Messages:     messages,
		SystemPrompt: sa.cfg.SystemPrompt,
		Temperature:  sa.cfg.Temperature,
		MaxTokens:    sa.cfg.MaxTokens,
	}, sa.cfg.MaxRetries)
	genDuration := time.Since(genStart)

	if genErr != nil {
		// The failed turn is part of the history too. The caller's ctx may
		// already be cancelled (that can be why generation failed), so the
		// audit write runs detached from it.
		md := trace.Metadata{
			trace.MetaSuccess:    false,
			trace.MetaError:      genErr.Error(),
			trace.MetaDurationMS: genDuration.Milliseconds(),
		}
		logCtx := context.WithoutCancel(ctx)
		if _, logErr := sa.store.LogTurn(logCtx, sessionID, trace.RoleAssistant, "", md); logErr != nil {
			logger.Error().Err(logErr).Msg("Failed to log failed assistant turn")
		}
		observability.RecordTurn(time.Since(turnStart), false)
		logger.Error().Err(genErr).Dur("duration", genDuration).Msg("Generation failed")
		return "", fmt.Errorf("generation failed (%v): %w", genErr, history.ErrUpstream)
	}

	md := trace.Metadata{
		trace.MetaSuccess:    true,
		trace.MetaDurationMS: genDuration.Milliseconds(),
	}
	if resp.Usage != nil {
		md[trace.MetaTokensUsed] = resp.Usage.InputTokens + resp.Usage.OutputTokens
	}
	if _, err := sa.store.LogTurn(ctx, sessionID, trace.RoleAssistant, resp.Content, md); err != nil {
		return "", fmt.Errorf("failed to log assistant turn: %w", err)
	}

	sa.maybeSummarize(ctx, sessionID, logger)

	observability.RecordTurn(time.Since(turnStart), true)
	logger.Info().
		Int("recalled", len(recalled)).
		Dur("duration", genDuration).
		Msg("Turn completed")

	return resp.Content, nil
}

// Summarize forces a summary of the session right now
func (sa *SmartAgent) Summarize(ctx context.Context, sessionID string) (string, error) {
	return sa.store.Summarize(ctx, sessionID, sa.summarizer)
}

func (sa *SmartAgent) assembler(sessionID string) *Assembler {
	scope := sessionID
	if sa.cfg.CrossSession {
		scope = ""
	}
	a, _ := NewAssembler(AssemblerConfig{
		Store:     sa.store,
		SessionID: scope,
		Logger:    sa.logger,
	})
	return a
}

// maybeSummarize bumps the per-session turn counter and re-summarizes the
// session every SummarizeEvery completed turns. Summarizer failures are
// logged and swallowed: they must not fail the turn.
func (sa *SmartAgent) maybeSummarize(ctx context.Context, sessionID string, logger zerolog.Logger) {
	if sa.cfg.SummarizeEvery < 0 {
		return
	}

	sa.mu.Lock()
	sa.turns[sessionID]++
	due := sa.turns[sessionID]%sa.cfg.SummarizeEvery == 0
	sa.mu.Unlock()

	if !due {
		return
	}

	if _, err := sa.store.Summarize(ctx, sessionID, sa.summarizer); err != nil {
		logger.Warn().Err(err).Msg("Scheduled summarization failed")
	}
}
