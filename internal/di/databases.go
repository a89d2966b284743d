package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/config"
	"github.com/aristath/hindsight/internal/database"
)

// InitializeDatabases opens the four databases and applies their schemas.
// On any failure the databases opened so far are closed.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	specs := []struct {
		name    string
		profile database.DatabaseProfile
		target  **database.DB
	}{
		{"market", database.ProfileStandard, &container.MarketDB},
		{"cache", database.ProfileCache, &container.CacheDB},
		{"ledger", database.ProfileLedger, &container.LedgerDB},
		{"results", database.ProfileStandard, &container.ResultsDB},
	}

	for _, spec := range specs {
		db, err := database.New(database.Config{
			Path:    filepath.Join(cfg.DataDir, spec.name+".db"),
			Profile: spec.profile,
			Name:    spec.name,
		})
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to open %s database: %w", spec.name, err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			container.Close()
			return nil, fmt.Errorf("failed to migrate %s database: %w", spec.name, err)
		}
		*spec.target = db
		log.Debug().Str("database", spec.name).Str("profile", string(spec.profile)).Msg("Database opened")
	}

	return container, nil
}
