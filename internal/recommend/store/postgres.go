package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"manhwa-recommender/internal/common/logger"
)

//go:embed schema.sql
var schemaSQL string

// Postgres serves the catalog, reading history, user preferences and
// recommendation records from one connection pool.
type Postgres struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgres(db *sql.DB, log logger.Logger) *Postgres {
	return &Postgres{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "postgres-store"}),
	}
}

// Migrate applies the idempotent schema.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	p.logger.Info("schema applied", nil)
	return nil
}
