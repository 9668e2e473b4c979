package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type TxContextKey string

const txKey = TxContextKey("tx-context-key")

type Tx interface {
	Queryer
	IsOpen() bool
	// Owned reports whether this handle began the transaction. Only the owner
	// commits or rolls back; joined handles are no-ops.
	Owned() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transaction wraps sqlx.Tx and tracks whether it is still open
type Transaction struct {
	*sqlx.Tx
	logger   *zap.Logger
	isClosed bool
	owned    bool
}

func NewTx(tx *sqlx.Tx, logger *zap.Logger) Tx {
	return &Transaction{
		Tx:     tx,
		logger: logger,
		owned:  true,
	}
}

// GetTx returns the transaction carried by ctx when one is open, otherwise it
// begins a new one and stores it on the returned context.
func GetTx(ctx context.Context, logger *zap.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if ctxTx, ok := ctx.Value(txKey).(*Transaction); ok && ctxTx != nil && ctxTx.IsOpen() {
		return ctx, &Transaction{Tx: ctxTx.Tx, logger: logger, owned: false}, nil
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.Error("error while beginning transaction", zap.Error(err))
		return ctx, nil, fmt.Errorf("error while beginning transaction: %w", err)
	}

	newTx := &Transaction{Tx: tx, logger: logger, owned: true}
	ctx = context.WithValue(ctx, txKey, newTx)
	return ctx, newTx, nil
}

// Conn returns the open transaction on ctx, or db when there is none.
func Conn(ctx context.Context, db Queryer) Queryer {
	if ctxTx, ok := ctx.Value(txKey).(*Transaction); ok && ctxTx != nil && ctxTx.IsOpen() {
		return ctxTx.Tx
	}
	return db
}

// InTx reports whether ctx carries an open transaction.
func InTx(ctx context.Context) bool {
	ctxTx, ok := ctx.Value(txKey).(*Transaction)
	return ok && ctxTx != nil && ctxTx.IsOpen()
}

func (t *Transaction) IsOpen() bool {
	return !t.isClosed
}

func (t *Transaction) Owned() bool {
	return t.owned
}

func (t *Transaction) Rollback(ctx context.Context) error {
	if t.isClosed || !t.owned {
		return nil
	}

	t.isClosed = true
	if err := t.Tx.Rollback(); err != nil && err != sql.ErrTxDone {
		t.logger.Error("error while rolling back transaction", zap.Error(err))
		return fmt.Errorf("error while rolling back transaction: %w", err)
	}
	return nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	if t.isClosed || !t.owned {
		return nil
	}

	t.isClosed = true
	if err := t.Tx.Commit(); err != nil {
		t.logger.Error("error while committing transaction", zap.Error(err))
		return fmt.Errorf("error while committing transaction: %w", err)
	}
	return nil
}
