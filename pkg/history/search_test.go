package history

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/recall/pkg/trace"
)

func TestSearchFindsJustLoggedTrace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	logged, err := s.LogTurn(ctx, "s1", trace.RoleUser, "how do I fix the flaky deploy pipeline", nil)
	require.NoError(t, err)

	// No flush or rebuild step: the index is synchronized in the same transaction
	results, err := s.Search(ctx, SearchQuery{Text: "deploy pipeline"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, logged.ID, results[0].ID)
}

func TestSearchEmptyQuery(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Search(context.Background(), SearchQuery{Text: ""})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = s.Search(context.Background(), SearchQuery{Text: "   \t "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearchSessionScope(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LogTurn(ctx, "alpha", trace.RoleUser, "database migration failed", nil)
	require.NoError(t, err)
	_, err = s.LogTurn(ctx, "beta", trace.RoleUser, "database migration succeeded", nil)
	require.NoError(t, err)

	scoped, err := s.Search(ctx, SearchQuery{Text: "migration", SessionID: "alpha"})
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "alpha", scoped[0].SessionID)

	global, err := s.Search(ctx, SearchQuery{Text: "migration"})
	require.NoError(t, err)
	assert.Len(t, global, 2)
}

func TestSearchSuccessOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LogTurn(ctx, "s1", trace.RoleAssistant, "parsed the config file", trace.Metadata{
		trace.MetaSuccess: true,
	})
	require.NoError(t, err)
	_, err = s.LogTurn(ctx, "s1", trace.RoleAssistant, "failed to parse the config file", trace.Metadata{
		trace.MetaSuccess: false,
		trace.MetaError:   "unexpected token",
	})
	require.NoError(t, err)
	// No success key at all counts as successful
	_, err = s.LogTurn(ctx, "s1", trace.RoleUser, "can you parse this config", nil)
	require.NoError(t, err)

	all, err := s.Search(ctx, SearchQuery{Text: "parse config"})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	ok, err := s.Search(ctx, SearchQuery{Text: "parse config", SuccessOnly: true})
	require.NoError(t, err)
	require.Len(t, ok, 2)
	for _, r := range ok {
		assert.True(t, r.IsSuccess())
	}
}

// Every falsy spelling of the success marker is filtered the same way
// trace.IsTruthy reads it back.
func TestSearchSuccessOnlyFalsySpellings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LogTurn(ctx, "s1", trace.RoleAssistant, "rebuilt the search index", trace.Metadata{
		trace.MetaSuccess: true,
	})
	require.NoError(t, err)

	for _, falsy := range []interface{}{false, 0, "0", "false", ""} {
		_, err = s.LogTurn(ctx, "s1", trace.RoleAssistant, "rebuilt the search index badly", trace.Metadata{
			trace.MetaSuccess: falsy,
		})
		require.NoError(t, err)
	}

	ok, err := s.Search(ctx, SearchQuery{Text: "rebuilt index", SuccessOnly: true})
	require.NoError(t, err)
	require.Len(t, ok, 1)
	assert.True(t, ok[0].IsSuccess())
}

func TestSearchSuccessFilterAppliedBeforeLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Many failed matches logged after the successful one so they would win
	// a pure recency cut
	_, err := s.LogTurn(ctx, "s1", trace.RoleAssistant, "retry handshake worked", trace.Metadata{
		trace.MetaSuccess: true,
	})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = s.LogTurn(ctx, "s1", trace.RoleAssistant, fmt.Sprintf("retry handshake attempt %d", i), trace.Metadata{
			trace.MetaSuccess: false,
		})
		require.NoError(t, err)
	}

	results, err := s.Search(ctx, SearchQuery{Text: "retry handshake", SuccessOnly: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsSuccess())
	assert.Equal(t, "retry handshake worked", results[0].Content)
}

func TestSearchLimitDefault(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		_, err := s.LogTurn(ctx, "s1", trace.RoleUser, fmt.Sprintf("common phrase %d", i), nil)
		require.NoError(t, err)
	}

	results, err := s.Search(ctx, SearchQuery{Text: "common phrase"})
	require.NoError(t, err)
	assert.Len(t, results, 10)
}

func TestSearchStableOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		_, err := s.LogTurn(ctx, "s1", trace.RoleUser, "identical content for every trace", nil)
		require.NoError(t, err)
	}

	first, err := s.Search(ctx, SearchQuery{Text: "identical content", Limit: 8})
	require.NoError(t, err)
	second, err := s.Search(ctx, SearchQuery{Text: "identical content", Limit: 8})
	require.NoError(t, err)

	require.Len(t, first, 8)
	require.Len(t, second, 8)
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}

	// Equal relevance falls back to recency, newest first
	for i := 1; i < len(first); i++ {
		assert.False(t, first[i].CreatedAt.After(first[i-1].CreatedAt))
	}
}

func TestSearchNoMatches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LogTurn(ctx, "s1", trace.RoleUser, "completely unrelated text", nil)
	require.NoError(t, err)

	results, err := s.Search(ctx, SearchQuery{Text: "zzzqqqxxx"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchParsingBugScenario(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LogTurn(ctx, "support", trace.RoleUser, "I hit a parsing bug in the YAML loader", nil)
	require.NoError(t, err)
	_, err = s.LogTurn(ctx, "support", trace.RoleAssistant, "The parsing bug is caused by a tab character, replace it with spaces", trace.Metadata{
		trace.MetaSuccess: true,
	})
	require.NoError(t, err)
	_, err = s.LogTurn(ctx, "support", trace.RoleUser, "thanks, that fixed it", nil)
	require.NoError(t, err)

	results, err := s.Search(ctx, SearchQuery{Text: "parsing bug", SessionID: "support"})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestBuildMatchExpr(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"deploy", `"deploy"*`},
		{"deploy pipeline", `"deploy" OR "pipeline"*`},
		{`"quoted" token`, `"quoted" OR "token"*`},
		{"  spaced   out  ", `"spaced" OR "out"*`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, buildMatchExpr(tc.in), "input %q", tc.in)
	}
}
