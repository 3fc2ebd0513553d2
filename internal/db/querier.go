package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx.
// Services are written against it so they can run standalone or inside a
// caller-owned transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Tx is a transaction handle exposing the Querier surface plus lifecycle.
type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TxStarter opens transactions. *Pool implements it; tests substitute fakes.
type TxStarter interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// Pool adapts a pgxpool.Pool to TxStarter.
type Pool struct {
	*pgxpool.Pool
}

func (p Pool) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := p.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation. The contact resolver and the inbound message insert rely on this
// to stay idempotent under concurrent duplicate delivery.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// IsNoRows reports whether err is the pgx no-rows sentinel.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
