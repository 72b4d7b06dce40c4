package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/eqtrak/internal/config"
	"github.com/aristath/eqtrak/internal/database"
)

// InitializeDatabases opens both databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{Config: cfg}

	// eqtrak.db - portfolios, ledger, metric catalog and values
	mainDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "eqtrak.db"),
		Profile: database.ProfileStandard,
		Name:    database.NameMain,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize main database: %w", err)
	}
	container.MainDB = mainDB

	// cache.db - ephemeral market price cache
	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    database.NameCache,
	})
	if err != nil {
		mainDB.Close()
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}
	container.CacheDB = cacheDB

	for _, db := range []*database.DB{mainDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to migrate %s database: %w", db.Name(), err)
		}
	}

	log.Info().Str("data_dir", cfg.DataDir).Msg("Databases initialized")
	return container, nil
}
