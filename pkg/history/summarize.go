package history

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/recall/internal/observability"
	"github.com/harun/recall/internal/tracing"
	"github.com/harun/recall/pkg/trace"
)

// SummarizeFunc compresses a session's history into a short summary. It is
// caller-supplied, typically backed by an LLM provider.
type SummarizeFunc func(ctx context.Context, history []trace.Trace) (string, error)

// Summarize reads the session's full history oldest-first, delegates to fn,
// and persists the result as the session's rolling summary. If fn fails the
// stored summary is left untouched and the error is surfaced.
func (s *Store) Summarize(ctx context.Context, sessionID string, fn SummarizeFunc) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartSpan(
		ctx,
		"recall.history",
		"history.summarize",
		attribute.String("session_id", sessionID),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, s.logger)
	start := time.Now()
	defer func() {
		observability.RecordSummarize(time.Since(start))
	}()

	if sessionID == "" {
		return "", ErrEmptySessionID
	}
	if _, err := s.Session(ctx, sessionID); err != nil {
		return "", err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, metadata, created_at, embedding
		FROM traces
		WHERE session_id = ?
		ORDER BY created_at ASC, id ASC`, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to read session history: %w", err)
	}
	defer rows.Close()

	history, err := scanTraces(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	summary, err := fn(ctx, history)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		// Previous summary stays intact
		return "", fmt.Errorf("summarizer failed (%v): %w", err, ErrUpstream)
	}

	now := time.Now().UTC().Format(timeLayout)
	if _, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET summary = ?, updated_at = ? WHERE id = ?",
		summary, now, sessionID,
	); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to store summary: %w", err)
	}

	logger.Info().
		Str("session_id", sessionID).
		Int("traces", len(history)).
		Msg("Session summarized")

	return summary, nil
}
