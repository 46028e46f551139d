// Package history implements the persistent trace store and search engine.
//
// Invariants:
//   - Every trace belongs to exactly one session; session deletion cascades.
//   - The FTS index is updated by triggers inside the writer's transaction, so
//     a committed trace is always searchable and a deleted one never is.
//   - Trace IDs and created_at timestamps are assigned at the write boundary
//     and sort with commit order.
//
// The search index is an FTS5 virtual table, so builds need mattn/go-sqlite3
// compiled with the sqlite_fts5 build tag ("go build -tags sqlite_fts5").
//
// Usage:
//
//	store, _ := history.Open(history.Config{Path: "/data/recall.db"})
//	defer store.Close()
//	tr, _ := store.LogTurn(ctx, "session-1", trace.RoleUser, "hello", nil)
//	matches, _ := store.Search(ctx, history.SearchQuery{Text: "hello", Limit: 5})
//	_, _ = tr, matches
package history
