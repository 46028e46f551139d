package recall

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/harun/recall/internal/observability"
	"github.com/harun/recall/internal/tracing"
	"github.com/harun/recall/pkg/agent"
	"github.com/harun/recall/pkg/history"
	"github.com/harun/recall/pkg/trace"
)

// contextHeader opens the assembled system message so the model can tell
// recalled material apart from the live conversation.
const contextHeader = "Relevant past interactions:"

// Assembler retrieves stored traces relevant to an utterance and renders
// them into a context message.
type Assembler struct {
	store       *history.Store
	logger      zerolog.Logger
	sessionID   string
	successOnly bool
}

// AssemblerConfig configures a context assembler
type AssemblerConfig struct {
	Store *history.Store

	// SessionID scopes retrieval to one session; empty recalls across
	// all sessions.
	SessionID string

	// SuccessOnly skips traces whose success metadata is falsy
	SuccessOnly bool

	Logger zerolog.Logger
}

// NewAssembler creates a context assembler over the given store
func NewAssembler(cfg AssemblerConfig) (*Assembler, error) {
	if cfg.Store == nil {
		return nil, errors.New("assembler requires a store")
	}
	return &Assembler{
		store:       cfg.Store,
		logger:      cfg.Logger,
		sessionID:   cfg.SessionID,
		successOnly: cfg.SuccessOnly,
	}, nil
}

// Recall returns the topK stored traces most relevant to the query text.
// An utterance with no usable tokens yields no matches, never an error.
func (a *Assembler) Recall(ctx context.Context, queryText string, topK int) ([]trace.Trace, error) {
	if topK <= 0 {
		topK = 4
	}

	matches, err := a.store.Search(ctx, history.SearchQuery{
		Text:        queryText,
		SessionID:   a.sessionID,
		Limit:       topK,
		SuccessOnly: a.successOnly,
	})
	if errors.Is(err, history.ErrEmptyQuery) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("context retrieval failed: %w", err)
	}

	observability.RecordContextBuild(len(matches))

	logger := tracing.LoggerFromContext(ctx, a.logger)
	logger.Debug().
		Str("query", queryText).
		Int("recalled", len(matches)).
		Msg("Context assembled")

	return matches, nil
}

// Build is Recall plus rendering: it returns either a single system message
// carrying the recalled traces, or an empty slice when nothing matched.
func (a *Assembler) Build(ctx context.Context, queryText string, topK int) ([]agent.Message, error) {
	matches, err := a.Recall(ctx, queryText, topK)
	if err != nil {
		return nil, err
	}
	return RenderContext(matches), nil
}

// RenderContext formats recalled traces as one system message, oldest
// relevance rank first, one timestamped line per trace.
func RenderContext(matches []trace.Trace) []agent.Message {
	if len(matches) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString(contextHeader)
	for _, tr := range matches {
		b.WriteString("\n")
		fmt.Fprintf(&b, "[%s] %s: %s", tr.CreatedAt.UTC().Format("2006-01-02 15:04"), tr.Role, tr.Content)
	}

	return []agent.Message{{Role: trace.RoleSystem, Content: b.String()}}
}
