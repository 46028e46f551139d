package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := NewLoader(filepath.Join(t.TempDir(), "absent.json")).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Recall.TopK, cfg.Recall.TopK)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recall.json")
	content := `{
		"database": {"path": "/data/mem.db", "max_open_conns": 2},
		"recall": {"top_k": 6},
		"provider": {"name": "openai", "model": "gpt-4"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "/data/mem.db", cfg.Database.Path)
	assert.Equal(t, 2, cfg.Database.MaxOpenConns)
	assert.Equal(t, 6, cfg.Recall.TopK)
	assert.Equal(t, "openai", cfg.Provider.Name)
	// Untouched fields keep defaults
	assert.Equal(t, 20, cfg.Recall.SummarizeEvery)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recall.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"provider": {"name": "mystery"}}`), 0600))

	_, err := NewLoader(path).Load()
	assert.Error(t, err)
}

func TestLoadMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recall.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewLoader(path).Load()
	assert.Error(t, err)
}
