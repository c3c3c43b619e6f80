package pgstore

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ Driver = &PGXDriver{}

// PGXDriver is a Driver backed by jackc/pgx.
type PGXDriver struct {
	db *pgxpool.Pool
}

// NewPGXDriver returns a new pgx-backed Driver, opening a fresh pool.
func NewPGXDriver(ctx context.Context, config Config) (*PGXDriver, error) {
	db, err := NewPGXPool(ctx, config)
	if err != nil {
		return nil, err
	}
	return &PGXDriver{db: db}, nil
}

// NewPGXDriverFromPool returns a new pgx-backed Driver over an existing pool.
func NewPGXDriverFromPool(db *pgxpool.Pool) *PGXDriver {
	return &PGXDriver{db: db}
}

// QueryRow satisfies Driver.
func (driver *PGXDriver) QueryRow(ctx context.Context, sql string, args ...interface{}) ScannableRow {
	return driver.db.QueryRow(ctx, sql, args...)
}

// Exec satisfies Driver.
func (driver *PGXDriver) Exec(ctx context.Context, sql string, args ...interface{}) (Result, error) {
	res, err := driver.db.Exec(ctx, sql, args...)
	return resultWrapper{ct: res}, err
}

// NoRows satisfies Driver.
func (driver *PGXDriver) NoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

type resultWrapper struct {
	ct pgconn.CommandTag
}

func (r resultWrapper) RowsAffected() (int64, error) {
	return r.ct.RowsAffected(), nil
}
