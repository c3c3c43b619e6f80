package pgstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var _ Driver = &SQLXDriver{}

// SQLXDriver is a Driver backed by jmoiron/sqlx + lib/pq.
type SQLXDriver struct {
	db *sqlx.DB
}

// NewSQLXDriver returns a new sqlx-backed Driver, opening a fresh pool.
func NewSQLXDriver(ctx context.Context, config Config) (*SQLXDriver, error) {
	db, err := NewSQLXPool(ctx, config)
	if err != nil {
		return nil, err
	}
	if config.MaxConns > 0 {
		db.SetMaxOpenConns(config.MaxConns)
	}
	if config.MaxConnLifetime > 0 {
		db.SetConnMaxLifetime(config.MaxConnLifetime)
	}
	db.SetMaxIdleConns(config.MaxIdle)
	return &SQLXDriver{db: db}, nil
}

// NewSQLXDriverFromPool returns a new sqlx-backed Driver over an existing
// pool.
func NewSQLXDriverFromPool(db *sqlx.DB) *SQLXDriver {
	return &SQLXDriver{db: db}
}

// QueryRow satisfies Driver.
func (driver *SQLXDriver) QueryRow(_ context.Context, sql string, args ...interface{}) ScannableRow {
	return driver.db.QueryRowx(sql, args...)
}

// Exec satisfies Driver.
func (driver *SQLXDriver) Exec(_ context.Context, sql string, args ...interface{}) (Result, error) {
	return driver.db.Exec(sql, args...)
}

// NoRows satisfies Driver.
func (driver *SQLXDriver) NoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
