package migration

import (
	"database/sql"

	"github.com/pressly/goose"
)

func init() {
	goose.AddMigration(Up00001, Down00001)
}

//Up00001 creates the table NDVI run summaries are recorded in
func Up00001(tx *sql.Tx) error {
	_, err := tx.Exec(`
	CREATE TABLE public.ndvi_runs
	(
		id bigserial NOT NULL,
		scene_id text NOT NULL,
		red_band smallint NOT NULL,
		nir_band smallint NOT NULL,
		red_mult double precision NOT NULL,
		red_add double precision NOT NULL,
		nir_mult double precision NOT NULL,
		nir_add double precision NOT NULL,
		row_count integer NOT NULL,
		col_count integer NOT NULL,
		finite_count bigint NOT NULL,
		non_finite_count bigint NOT NULL,
		min_ndvi double precision,
		max_ndvi double precision,
		mean_ndvi double precision,
		created_at timestamp with time zone NOT NULL DEFAULT now(),
		CONSTRAINT ndvi_runs_pk PRIMARY KEY (id)
	);

	CREATE INDEX idx_ndvi_runs_scene
		ON public.ndvi_runs (scene_id, created_at DESC);
	`)
	return err
}

//Down00001 drops the run table
func Down00001(tx *sql.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS public.ndvi_runs;`)
	return err
}
