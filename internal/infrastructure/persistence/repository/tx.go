package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bangunpro/rab-approval/internal/application/port"
	"go.uber.org/zap"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const txKey contextKey = "tx"

// executor interface covers both *sql.DB and *sql.Tx
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// extractTx retrieves the transaction from the context if present.
// The key lives in this package, so every repository built here sees the
// same transaction the manager opened.
func extractTx(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey).(*sql.Tx); ok {
		return tx
	}
	return nil
}

func getExecutor(ctx context.Context, db *sql.DB) executor {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return db
}

// TxManager implements port.TransactionManager over a single sql.DB
type TxManager struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTxManager creates a new transaction manager
func NewTxManager(db *sql.DB, logger *zap.Logger) *TxManager {
	return &TxManager{
		db:     db,
		logger: logger,
	}
}

// WithTransaction executes fn within a database transaction. Nested calls
// reuse the transaction already carried by the context.
func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx := extractTx(ctx); tx != nil {
		return fn(ctx)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		m.logger.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey, tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			m.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			m.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		m.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Verify interface compliance
var _ port.TransactionManager = (*TxManager)(nil)
