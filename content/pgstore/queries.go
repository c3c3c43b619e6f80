package pgstore

// Schema is the DDL a deployment applies before pointing a Store at a
// database (not run automatically; migrations are left to the operator,
// assuming the target database already exists).
const Schema = `CREATE TABLE IF NOT EXISTS kvs_blobs (
	ref  text PRIMARY KEY,
	data bytea NOT NULL
)`

const (
	loadBlobStmt  = `SELECT data FROM kvs_blobs WHERE ref = $1`
	storeBlobStmt = `INSERT INTO kvs_blobs (ref, data) VALUES ($1, $2) ON CONFLICT (ref) DO NOTHING`
)
