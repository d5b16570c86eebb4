package bootstrap

import (
	"context"
	"strconv"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/config"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/coordinator"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/database"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/database/memstore"
)

// Storage is the store a running engine uses.
type Storage interface {
	coordinator.Store
	Ping(ctx context.Context) error
}

// SetupStorage opens the configured store. The returned close function
// releases it.
func SetupStorage(cfg *config.Config) (Storage, func() error, error) {
	if cfg.Database.Driver == config.StorageMemory {
		return memstore.New(), func() error { return nil }, nil
	}

	db, connErr := database.NewPostgresConnection(database.Config{
		Host:         cfg.Database.Host,
		Port:         strconv.Itoa(cfg.Database.Port),
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		DBName:       cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxConnections,
	})
	if connErr != nil {
		return nil, nil, connErr
	}

	store := database.NewStore(db)
	return store, store.Close, nil
}
