package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/novacriatura/rota/internal/assignments"
	"github.com/novacriatura/rota/internal/catalog"
	"github.com/novacriatura/rota/internal/platform/db"
)

// Store is an opened assignment history backend.
type Store struct {
	Repo   assignments.Repository
	Driver string

	pool *pgxpool.Pool
	conn *sql.DB
}

// OpenStore opens the backend selected by STORE_DRIVER and prepares its schema.
func OpenStore(ctx context.Context, cfg *Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.StoreDriver {
	case StorePostgres:
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("app: connect postgres: %w", err)
		}
		repo := assignments.NewPGRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("app: migrate postgres: %w", err)
		}
		logger.Info("assignment store ready", slog.String("driver", StorePostgres))
		return &Store{Repo: repo, Driver: StorePostgres, pool: pool}, nil
	case StoreSQLite:
		conn, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		repo, err := assignments.NewSQLiteRepository(ctx, conn)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("app: prepare sqlite: %w", err)
		}
		logger.Info("assignment store ready", slog.String("driver", StoreSQLite), slog.String("path", cfg.SQLitePath))
		return &Store{Repo: repo, Driver: StoreSQLite, conn: conn}, nil
	default:
		return nil, fmt.Errorf("app: unknown store driver %q", cfg.StoreDriver)
	}
}

// Ping checks the backend answers.
func (s *Store) Ping(ctx context.Context) error {
	switch {
	case s == nil:
		return fmt.Errorf("app: store not opened")
	case s.pool != nil:
		return s.pool.Ping(ctx)
	case s.conn != nil:
		return s.conn.PingContext(ctx)
	}
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	if s.pool != nil {
		s.pool.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// LoadCatalog reads CATALOG_PATH or falls back to the embedded catalog.
func LoadCatalog(cfg *Config) (*catalog.Catalog, error) {
	if cfg == nil || strings.TrimSpace(cfg.CatalogPath) == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(cfg.CatalogPath)
}
