package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/recall/internal/observability"
	"github.com/harun/recall/internal/tracing"
	"github.com/harun/recall/pkg/trace"
)

// SearchQuery describes one ranked full-text search
type SearchQuery struct {
	// Text is the free-form query. Empty or whitespace-only is a
	// validation error, distinguishing "no query" from "no matches".
	Text string

	// SessionID scopes the search to one session when non-empty;
	// empty searches across all sessions.
	SessionID string

	// Limit caps the number of results (defaults to 10)
	Limit int

	// SuccessOnly restricts matches to traces whose success metadata is
	// truthy, applied before ranking and limiting.
	SuccessOnly bool
}

// Search runs a ranked full-text query over trace content, role, and
// metadata. Results are ordered by bm25 relevance; ties break newest first.
func (s *Store) Search(ctx context.Context, q SearchQuery) ([]trace.Trace, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartSpan(
		ctx,
		"recall.history",
		"history.search",
		attribute.String("query", q.Text),
		attribute.String("session_id", q.SessionID),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, s.logger)
	start := time.Now()
	defer func() {
		observability.RecordSearch(time.Since(start))
	}()

	match := buildMatchExpr(q.Text)
	if match == "" {
		return nil, ErrEmptyQuery
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}

	query := `
		SELECT t.id, t.session_id, t.role, t.content, t.metadata, t.created_at, t.embedding
		FROM traces_fts f
		JOIN traces t ON t.rowid = f.rowid
		WHERE traces_fts MATCH ?`
	args := []interface{}{match}

	if q.SessionID != "" {
		query += " AND t.session_id = ?"
		args = append(args, q.SessionID)
	}
	if q.SuccessOnly {
		query += " AND " + successCondition
	}

	query += `
		ORDER BY bm25(traces_fts), t.created_at DESC, t.id DESC
		LIMIT ?`
	args = append(args, q.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	traces, err := scanTraces(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	logger.Debug().
		Str("query", q.Text).
		Int("results", len(traces)).
		Msg("Search completed")

	return traces, nil
}

// buildMatchExpr compiles free-form user text into a safe FTS5 MATCH
// expression: each token is double-quoted so FTS operators in user input
// stay literal, tokens are OR-joined for fuzzy recall, and the last token
// gets prefix expansion so partially typed words still match. Returns ""
// when the text has no tokens.
func buildMatchExpr(text string) string {
	fields := strings.Fields(text)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		// Strip embedded quotes rather than trying to escape them
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		tokens = append(tokens, f)
	}
	if len(tokens) == 0 {
		return ""
	}

	parts := make([]string, len(tokens))
	for i, tok := range tokens {
		if i == len(tokens)-1 {
			parts[i] = fmt.Sprintf(`"%s"*`, tok)
		} else {
			parts[i] = fmt.Sprintf(`"%s"`, tok)
		}
	}
	return strings.Join(parts, " OR ")
}
