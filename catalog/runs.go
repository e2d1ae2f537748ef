package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"time"

	"github.com/venicegeo/geojson-go/geojson"

	"github.com/venicegeo/bf-ndvi/raster"
)

// Run is one recorded NDVI computation
type Run struct {
	ID        int64            `json:"id"`
	SceneID   string           `json:"sceneId"`
	RedBand   int              `json:"redBand"`
	NIRBand   int              `json:"nirBand"`
	RedMult   float64          `json:"redMult"`
	RedAdd    float64          `json:"redAdd"`
	NIRMult   float64          `json:"nirMult"`
	NIRAdd    float64          `json:"nirAdd"`
	Summary   raster.Summary   `json:"summary"`
	Footprint *geojson.Polygon `json:"footprint,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Store reads and writes the ndvi_runs table
type Store struct {
	DB *sql.DB
}

// NewStore wraps an open database
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Insert records run and fills in its ID and creation time
func (s *Store) Insert(ctx context.Context, run *Run) error {
	footprint, err := footprintValue(run.Footprint)
	if err != nil {
		return err
	}
	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO ndvi_runs
		(scene_id, red_band, nir_band, red_mult, red_add, nir_mult, nir_add,
		 row_count, col_count, finite_count, non_finite_count, min_ndvi, max_ndvi, mean_ndvi, footprint)
		VALUES
		($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at`,
		run.SceneID, run.RedBand, run.NIRBand, run.RedMult, run.RedAdd, run.NIRMult, run.NIRAdd,
		run.Summary.Rows, run.Summary.Cols, run.Summary.Finite, run.Summary.NonFinite,
		nullable(run.Summary.Min), nullable(run.Summary.Max), nullable(run.Summary.Mean), footprint)
	return row.Scan(&run.ID, &run.CreatedAt)
}

// ListByScene returns the most recent runs of a scene, newest first.
// limit <= 0 returns every run.
func (s *Store) ListByScene(ctx context.Context, sceneID string, limit int) ([]Run, error) {
	query := `
		SELECT id, scene_id, red_band, nir_band, red_mult, red_add, nir_mult, nir_add,
		       row_count, col_count, finite_count, non_finite_count, min_ndvi, max_ndvi, mean_ndvi, footprint, created_at
		FROM ndvi_runs
		WHERE scene_id = $1
		ORDER BY created_at DESC, id DESC`
	args := []interface{}{sceneID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			run            Run
			min, max, mean sql.NullFloat64
			footprint      []byte
		)
		err = rows.Scan(&run.ID, &run.SceneID, &run.RedBand, &run.NIRBand,
			&run.RedMult, &run.RedAdd, &run.NIRMult, &run.NIRAdd,
			&run.Summary.Rows, &run.Summary.Cols, &run.Summary.Finite, &run.Summary.NonFinite,
			&min, &max, &mean, &footprint, &run.CreatedAt)
		if err != nil {
			return nil, err
		}
		run.Summary.Min = fromNullable(min)
		run.Summary.Max = fromNullable(max)
		run.Summary.Mean = fromNullable(mean)
		if len(footprint) > 0 {
			if run.Footprint, err = geojson.PolygonFromBytes(footprint); err != nil {
				return nil, err
			}
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// footprintValue is the GeoJSON text stored in the footprint column
func footprintValue(polygon *geojson.Polygon) (interface{}, error) {
	if polygon == nil {
		return nil, nil
	}
	data, err := json.Marshal(polygon)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
