package pgstore

import "context"

// Driver is the subset of a Postgres client library the blob store needs,
// letting pgx and database/sql+lib/pq sit behind one interface.
type Driver interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) ScannableRow
	Exec(ctx context.Context, sql string, args ...interface{}) (Result, error)
	// NoRows reports whether err is the driver's "no rows returned" error,
	// since pgx and database/sql use distinct sentinel values for it.
	NoRows(err error) bool
}

// ScannableRow accommodates the different concrete row types pgx and sqlx
// return from QueryRow.
type ScannableRow interface {
	Scan(dest ...interface{}) error
}

// Result accommodates the different concrete result types pgx and sqlx
// return from Exec.
type Result interface {
	RowsAffected() (int64, error)
}
