package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/mailpilot/internal/adapters/store"
	"github.com/mikey/mailpilot/internal/config"
	"github.com/mikey/mailpilot/internal/core"
	"go.uber.org/zap"
)

// StoppableStore is a core.Store with a background cleanup task
type StoppableStore interface {
	core.Store
	Stop()
}

// StoreFactory creates stores based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateStore creates a store based on the configuration
func (f *StoreFactory) CreateStore() (StoppableStore, error) {
	sc, err := f.cfg.GetStore()
	if err != nil {
		return nil, fmt.Errorf("invalid store configuration: %w", err)
	}

	opts := store.Options{
		Retention:   sc.Retention,
		ClaimTTL:    sc.ClaimTTL,
		CleanupFreq: sc.CleanupFreq,
	}

	switch sc.Type {
	case "memory":
		return store.NewMemoryStore(opts, f.logger), nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(sc.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return store.NewSQLiteStore(sc.SQLitePath, opts, f.logger)
	case "mysql":
		return store.NewMySQLStore(sc.MySQLDSN, opts, f.logger)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", sc.Type)
	}
}
