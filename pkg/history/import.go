package history

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/recall/internal/observability"
	"github.com/harun/recall/internal/tracing"
	"github.com/harun/recall/pkg/trace"
)

// ImportRecord is one raw turn record from a bulk import source. ID and
// CreatedAt are optional: migrated logs keep their own, fresh records get
// store-assigned ones.
type ImportRecord struct {
	ID        string         `json:"id,omitempty"`
	SessionID string         `json:"session_id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Metadata  trace.Metadata `json:"metadata,omitempty"`
	CreatedAt *time.Time     `json:"created_at,omitempty"`
}

// importRecordSchema validates raw JSONL lines before they touch the store.
const importRecordSchema = `{
	"type": "object",
	"required": ["session_id", "role", "content"],
	"properties": {
		"id": {"type": "string"},
		"session_id": {"type": "string", "minLength": 1},
		"role": {"type": "string", "minLength": 1},
		"content": {"type": "string"},
		"metadata": {"type": "object"},
		"created_at": {"type": "string"}
	}
}`

var importSchema = gojsonschema.NewStringLoader(importRecordSchema)

// ImportBulk inserts many turn records in one logical batch. Each record
// commits individually, so a failure partway through never un-indexes or
// loses earlier records: the return value is how many committed before the
// first failure, and those are fully searchable.
func (s *Store) ImportBulk(ctx context.Context, records []ImportRecord) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartSpan(
		ctx,
		"recall.history",
		"history.import_bulk",
		attribute.Int("records", len(records)),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, s.logger)
	start := time.Now()
	defer func() {
		observability.RecordImport(time.Since(start))
	}()

	count := 0
	for i, rec := range records {
		if err := s.importOne(ctx, rec); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn().
				Int("imported", count).
				Int("failed_index", i).
				Err(err).
				Msg("Bulk import stopped")
			return count, fmt.Errorf("record %d: %w", i, err)
		}
		count++
	}

	s.refreshGauges(ctx)
	logger.Info().Int("imported", count).Msg("Bulk import completed")
	return count, nil
}

// ImportJSONL reads one turn record per line from a JSONL file and imports
// them in order. Lines are schema-validated before insert; the import stops
// at the first invalid line and reports how many records committed.
func (s *Store) ImportJSONL(ctx context.Context, path string) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()

	start := time.Now()
	defer func() {
		observability.RecordImport(time.Since(start))
	}()

	count := 0
	lineNum := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		rec, err := parseImportLine(line)
		if err != nil {
			return count, fmt.Errorf("line %d: %w", lineNum, err)
		}

		if err := s.importOne(ctx, rec); err != nil {
			return count, fmt.Errorf("line %d: %w", lineNum, err)
		}
		count++
	}

	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("failed to read import file: %w", err)
	}

	s.refreshGauges(ctx)
	s.logger.Info().Str("path", path).Int("imported", count).Msg("JSONL import completed")
	return count, nil
}

func parseImportLine(line []byte) (ImportRecord, error) {
	var rec ImportRecord

	result, err := gojsonschema.Validate(importSchema, gojsonschema.NewBytesLoader(line))
	if err != nil {
		return rec, fmt.Errorf("malformed record: %w", err)
	}
	if !result.Valid() {
		return rec, fmt.Errorf("invalid record: %s", result.Errors()[0])
	}

	if err := json.Unmarshal(line, &rec); err != nil {
		return rec, fmt.Errorf("failed to decode record: %w", err)
	}
	return rec, nil
}

// importOne commits a single record in its own transaction; the FTS
// triggers index it in the same unit of work.
func (s *Store) importOne(ctx context.Context, rec ImportRecord) error {
	if rec.SessionID == "" {
		return ErrEmptySessionID
	}
	if rec.Role == "" {
		return ErrEmptyRole
	}

	md := rec.Metadata
	if md == nil {
		md = trace.Metadata{}
	}
	metadataJSON, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	now := time.Now().UTC()
	createdAt := now
	if rec.CreatedAt != nil {
		createdAt = rec.CreatedAt.UTC()
	}
	id := rec.ID
	if id == "" {
		id = newTraceID(createdAt)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO sessions (id, updated_at) VALUES (?, ?)",
		rec.SessionID, now.Format(timeLayout),
	); err != nil {
		return fmt.Errorf("failed to ensure session: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO traces (id, session_id, role, content, metadata, created_at, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, NULL)`,
		id, rec.SessionID, rec.Role, rec.Content, string(metadataJSON), createdAt.Format(timeLayout),
	); err != nil {
		return fmt.Errorf("failed to insert trace: %w", err)
	}

	return tx.Commit()
}
