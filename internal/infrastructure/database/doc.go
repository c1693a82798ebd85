// Package database provides the SQLite connection used by the default
// button store.
//
// It covers:
//   - Opening the database with WAL mode and a busy timeout
//   - Versioned schema migrations read from an fs.FS
//   - Health checks for the /health endpoint
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive. Every .up.sql file should ship with a matching
// .down.sql so MigrateDown can revert it during development.
package database
