package postgres

import (
	"embed"
	"io/fs"

	"github.com/md-rashed-zaman/clinicdesk/libs/db"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrations returns the schema migrations of the scheduling service.
func Migrations() ([]db.Migration, error) {
	sub, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return nil, err
	}
	return db.LoadMigrations(sub)
}
