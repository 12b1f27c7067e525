package db

import "gorm.io/gorm"

// Dialect identifiers supported by the database layer.
const (
	// DialectPostgres is the PostgreSQL dialect name.
	DialectPostgres = "postgres"
	// DialectSQLite is the SQLite dialect name.
	DialectSQLite = "sqlite"
)

// DialectName returns the active database dialect name.
func DialectName(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	return conn.Dialector.Name()
}

// IsSQLite reports whether the connection uses SQLite.
func IsSQLite(conn *gorm.DB) bool {
	return DialectName(conn) == DialectSQLite
}

// SupportsRowLocking reports whether SELECT ... FOR UPDATE is available.
//
// SQLite rejects the locking clause; its single-writer transactions already
// serialize balance mutations, so callers skip the clause there.
func SupportsRowLocking(conn *gorm.DB) bool {
	return !IsSQLite(conn)
}
