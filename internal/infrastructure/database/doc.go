// Package database provides the SQLite store behind the session history.
//
// This package manages:
//   - Connection setup with WAL mode and a busy timeout
//   - Forward and rollback schema migrations read from any fs.FS
//   - Health checks used by the /health endpoint
//
// SQLite allows one writer, so the pool is pinned to a single connection.
// The database file is restricted to its owner (0600).
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql.
package database
