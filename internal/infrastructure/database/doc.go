// Package database owns the embedded SQLite store used for operation
// history and the audit trail.
//
// The pool is pinned to a single connection because SQLite allows one
// writer at a time; WAL mode keeps readers unblocked during writes. The
// database file is created with 0600 permissions.
//
// Schema changes ship as paired .up.sql/.down.sql files embedded by the
// migrations package and applied in filename order:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are nullable or carry defaults,
// and existing columns are never dropped or renamed.
package database
