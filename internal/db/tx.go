package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var ErrNestedTx = errors.New("transaction already in progress")

type txKey struct{}

// Querier is implemented by both *sqlx.DB and *sqlx.Tx.
type Querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// TxFrom returns the transaction carried by ctx, if any.
func TxFrom(ctx context.Context) (*sqlx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx, ok && tx != nil
}

// Conn returns the transaction in ctx, falling back to db.
func Conn(ctx context.Context, db *sqlx.DB) Querier {
	if tx, ok := TxFrom(ctx); ok {
		return tx
	}
	return db
}

type Transactor struct {
	db *sqlx.DB
}

func NewTransactor(db *sqlx.DB) *Transactor {
	return &Transactor{db: db}
}

// WithinTx runs fn inside a transaction that repositories pick up from the
// context. If fn returns an error or panics the transaction is rolled back.
// afterCommit, when non-nil, runs only after Commit returned nil. It gets a
// context that is no longer cancelled with ctx.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error, afterCommit func(ctx context.Context)) (err error) {
	if _, ok := TxFrom(ctx); ok {
		return ErrNestedTx
	}

	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		rbErr := tx.Rollback()
		if rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) && err != nil {
			err = errors.Join(err, fmt.Errorf("failed to rollback: %w", rbErr))
		}
	}()

	err = fn(context.WithValue(ctx, txKey{}, tx))
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true

	if afterCommit != nil {
		afterCommit(context.WithoutCancel(ctx))
	}
	return nil
}
