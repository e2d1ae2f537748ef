package raster

import (
	"context"
	"fmt"
	"sync"

	"github.com/airbusgeo/godal"
	"gonum.org/v1/gonum/mat"
)

var registerDrivers sync.Once

// gdalArray reads row windows of one dataset band on demand. GDAL dataset
// handles are not safe for concurrent use, so reads are serialized.
type gdalArray struct {
	mu         sync.Mutex
	ds         *godal.Dataset
	band       godal.Band
	rows, cols int
}

func (g *gdalArray) Dims() (int, int) { return g.rows, g.cols }

func (g *gdalArray) ReadRows(ctx context.Context, r0, r1 int, dst []float64) error {
	if err := checkWindow(g, r0, r1, dst); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if r0 == r1 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.band.Read(0, r0, dst, g.cols, r1-r0); err != nil {
		return fmt.Errorf("reading rows %d-%d: %w", r0, r1, err)
	}
	return nil
}

// Dataset is an open GeoTIFF. Close it once every band read from it has been
// computed.
type Dataset struct {
	ds *godal.Dataset
}

// Close releases the GDAL dataset
func (d *Dataset) Close() error {
	return d.ds.Close()
}

// Open opens a raster file and returns its first band. Sample reads are
// deferred until the band is computed.
func Open(path string) (*Band, *Dataset, error) {
	registerDrivers.Do(godal.RegisterAll)

	ds, err := godal.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	bands := ds.Bands()
	if len(bands) == 0 {
		ds.Close()
		return nil, nil, fmt.Errorf("%s has no raster bands", path)
	}
	structure := bands[0].Structure()

	band := &Band{
		Array: &gdalArray{ds: ds, band: bands[0], rows: structure.SizeY, cols: structure.SizeX},
	}
	// A raster with no geotransform keeps the zero transform.
	if transform, err := ds.GeoTransform(); err == nil {
		band.GeoTransform = transform
	}
	band.Projection = ds.Projection()
	return band, &Dataset{ds: ds}, nil
}

// WriteGeoTIFF writes a single-band Float64 GeoTIFF with the band's georeferencing
func WriteGeoTIFF(path string, m *mat.Dense, geoTransform [6]float64, projection string) error {
	registerDrivers.Do(godal.RegisterAll)

	rows, cols := m.Dims()
	ds, err := godal.Create(godal.GTiff, path, 1, godal.Float64, cols, rows)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err = ds.SetGeoTransform(geoTransform); err != nil {
		ds.Close()
		return err
	}
	if projection != "" {
		if err = ds.SetProjection(projection); err != nil {
			ds.Close()
			return err
		}
	}

	data := make([]float64, rows*cols)
	if err = FromMatrix(m).ReadRows(context.Background(), 0, rows, data); err != nil {
		ds.Close()
		return err
	}
	if err = ds.Bands()[0].Write(0, 0, data, cols, rows); err != nil {
		ds.Close()
		return err
	}
	return ds.Close()
}
