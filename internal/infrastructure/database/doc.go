// Package database provides SQLite connectivity for the medication tracker.
//
// It manages the connection (WAL mode, busy timeout, foreign keys) and
// applies schema migrations read from an fs.FS, normally the embedded
// migrations package.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or carry a
// default, and every .up.sql has a matching .down.sql.
package database
