// Package postgres persists the ledger in PostgreSQL through pgx. Amounts are
// stored as BIGINT minor units and rates as integer basis points.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/bizledger/internal/store"
)

const (
	saleNumberConstraint     = "sales_business_number_uniq"
	saleCommissionConstraint = "commission_sale_employee_uniq"
)

// Store implements the sale, commission and event stores on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping reports database readiness.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// inTx runs fn in a transaction, committing when fn succeeds.
func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", mapErr(err))
	}
	return nil
}

// mapErr translates driver errors into the store contract.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == saleNumberConstraint:
		return fmt.Errorf("%w: %s", store.ErrReferenceConflict, pgErr.Detail)
	case pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == saleCommissionConstraint:
		return fmt.Errorf("%w: %s", store.ErrDuplicate, pgErr.Detail)
	case pgErr.Code == pgerrcode.ForeignKeyViolation:
		return fmt.Errorf("%w: %s", store.ErrNotFound, pgErr.Detail)
	}
	return err
}

func pgUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}

func uuidPtr(v pgtype.UUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := uuid.UUID(v.Bytes)
	return &id
}
