// Package migration applies versioned SQL files to a SQLite database.
//
// Files are read from an fs.FS (usually an embed.FS compiled into the
// binary) and must be named {version}_{description}.sql, for example
// "001_bookings.sql". Each file runs in its own transaction and is recorded
// in the schema_migrations table so it is applied exactly once.
//
// Example usage:
//
//	manager := migration.NewManager(migration.NewScanner(files, "."), migration.NewSQLiteExecutor(db), logger)
//	if err := manager.Run(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
