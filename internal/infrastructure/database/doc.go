// Package database manages the SQLite store for Passage Core.
//
// It owns connection setup (WAL mode, busy timeout, foreign keys, a
// single pooled connection to match SQLite's one-writer model) and the
// embedded schema migrations.
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files live in the top-level migrations/ directory and are
// embedded into the binary. Migrations are additive: new columns are
// nullable or defaulted, and columns are never dropped or renamed, so a
// rolled-back binary can still read a migrated database.
//
// The database file is chmod'd to 0600 because it holds credential
// hashes and webhook secrets.
package database
