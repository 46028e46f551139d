package cli

import (
	"fmt"

	"github.com/harun/recall/internal/config"
	"github.com/harun/recall/internal/logger"
	"github.com/harun/recall/pkg/agent"
	"github.com/harun/recall/pkg/history"
)

// runtime bundles the pieces most commands need
type runtime struct {
	cfg   *config.Config
	log   *logger.Logger
	store *history.Store
}

func (r *runtime) close() {
	if r.store != nil {
		_ = r.store.Close()
	}
	if r.log != nil {
		_ = r.log.Close()
	}
}

// newRuntime loads config, builds the logger, and opens the store
func newRuntime() (*runtime, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, err
	}

	lvl := cfg.Logging.Level
	if logLevel != "" {
		lvl = logLevel
	}

	log, err := logger.New(logger.Config{
		Level:     lvl,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	store, err := history.Open(history.Config{
		Path:          cfg.Database.Path,
		BusyTimeoutMS: cfg.Database.BusyTimeoutMS,
		MaxOpenConns:  cfg.Database.MaxOpenConns,
		Logger:        log.GetZerolog(),
	})
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	return &runtime{cfg: cfg, log: log, store: store}, nil
}

// newProvider builds the configured LLM provider, requiring an API key
func newProvider(cfg *config.Config) (agent.Provider, error) {
	if cfg.Provider.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %q (set it in the config file or the provider's environment variable)", cfg.Provider.Name)
	}
	return agent.NewProvider(cfg.Provider.Name, cfg.Provider.APIKey)
}
