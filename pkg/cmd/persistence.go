package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/quantarc/finflow/pkg/persistence"
	"github.com/quantarc/finflow/pkg/persistence/file"
	"github.com/quantarc/finflow/pkg/persistence/postgresql"
	"github.com/quantarc/finflow/pkg/persistence/redis"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql", "redis", "rediss"}

// NewPersistence builds a checkpoint store from a database URL; the
// scheme selects the backend. Anything unrecognized is treated as a
// file system path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.CheckpointStore, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewStore(ctx, logger, databaseURL)
	case "redis", "rediss":
		return redis.NewStore(ctx, databaseURL, 0)
	default:
		return file.NewStore(databaseURL), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	parts := strings.Split(databaseURL, "://")

	provider := parts[0]
	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
