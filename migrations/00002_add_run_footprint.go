package migration

import (
	"database/sql"

	"github.com/pressly/goose"
)

func init() {
	goose.AddMigration(Up00002, Down00002)
}

// Up00002 adds a column holding the scene corner ring of each run
func Up00002(tx *sql.Tx) error {
	_, err := tx.Exec(`ALTER TABLE public.ndvi_runs ADD COLUMN footprint json;`)
	return err
}

// Down00002 undoes the effects of Up00002
func Down00002(tx *sql.Tx) error {
	_, err := tx.Exec(`ALTER TABLE public.ndvi_runs DROP COLUMN footprint;`)
	return err
}
