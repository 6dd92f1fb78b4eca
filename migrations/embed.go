// Package migrations compiles the SQL migration files into the binary so
// the benchlink executable can bring its schema up to date without any
// files on disk.
package migrations

import (
	"embed"

	"github.com/openbench/benchlink-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	// Hand the embedded filesystem to the database package, which owns
	// the apply/revert logic.
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
