package datalayer

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/keel-api/keel/internal/cache"
	"github.com/keel-api/keel/internal/schema"
)

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx,
// letting every query path run either directly or inside a transaction
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLDataLayer is the relational DataLayer implementation. It runs over
// database/sql with the pgx stdlib driver.
type SQLDataLayer struct {
	db       Querier
	root     *sql.DB // nil when bound to a transaction
	registry *schema.Registry
	counts   cache.CountCache
	logger   *zap.Logger
}

// NewSQLDataLayer creates a data layer over an open database handle
func NewSQLDataLayer(db *sql.DB, registry *schema.Registry, logger *zap.Logger) *SQLDataLayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLDataLayer{
		db:       db,
		root:     db,
		registry: registry,
		logger:   logger,
	}
}

// UseCountCache routes unfiltered collection counts through c. Callers
// remain responsible for invalidating entries after mutations.
func (l *SQLDataLayer) UseCountCache(c cache.CountCache) {
	l.counts = c
}

// withTx returns a view of the layer bound to one transaction. The count
// cache is deliberately not carried over: totals read mid-transaction
// must come from the transaction's own snapshot.
func (l *SQLDataLayer) withTx(tx *sql.Tx) *SQLDataLayer {
	return &SQLDataLayer{
		db:       tx,
		root:     nil,
		registry: l.registry,
		logger:   l.logger,
	}
}

// SupportsTransactions reports true: SQL backends provide rollback
func (l *SQLDataLayer) SupportsTransactions() bool {
	return true
}

// WithTransaction runs fn inside a transaction, rolling back on error or
// panic. When the layer is already transaction-bound, fn joins the open
// transaction instead of nesting a new one.
func (l *SQLDataLayer) WithTransaction(ctx context.Context, fn func(DataLayer) error) error {
	if l.root == nil {
		return fn(l)
	}

	tx, err := l.root.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				l.logger.Error("rollback after panic failed", zap.Error(rbErr))
			}
			panic(p)
		}
	}()

	if err := fn(l.withTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			l.logger.Error("rollback failed", zap.Error(rbErr), zap.NamedError("cause", err))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
