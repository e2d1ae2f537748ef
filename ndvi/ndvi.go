// Package ndvi converts Landsat 8 digital numbers to top-of-atmosphere
// reflectance and combines red and near-infrared reflectance into NDVI.
package ndvi

import (
	"context"
	"fmt"
	"math"

	"github.com/venicegeo/bf-ndvi/raster"
)

// Calibration holds the reflectance rescaling factors of one band
type Calibration struct {
	Mult float64 `json:"mult"`
	Add  float64 `json:"add"`
}

// Reflectance rescales one sample: Mult*v + Add
func Reflectance(v float64, cal Calibration) float64 {
	return cal.Mult*v + cal.Add
}

// NormalizedDifference returns (nir-red)/(nir+red). A zero sum yields NaN or
// ±Inf; it is not masked.
func NormalizedDifference(nir, red float64) float64 {
	return (nir - red) / (nir + red)
}

// ToReflectance rescales every sample of band, keeping its shape and georeferencing
func ToReflectance(ctx context.Context, ev raster.Evaluator, band *raster.Band, cal Calibration) (*raster.Band, error) {
	out, err := ev.Map(ctx, band.Array, func(v float64) float64 { return Reflectance(v, cal) })
	if err != nil {
		return nil, err
	}
	return band.WithArray(out), nil
}

// CorrectSunElevation divides reflectance by the sine of the sun elevation angle
func CorrectSunElevation(ctx context.Context, ev raster.Evaluator, band *raster.Band, elevationDegrees float64) (*raster.Band, error) {
	if elevationDegrees <= 0 || elevationDegrees > 90 {
		return nil, fmt.Errorf("sun elevation %v is outside (0, 90] degrees", elevationDegrees)
	}
	sin := math.Sin(elevationDegrees * math.Pi / 180)
	out, err := ev.Map(ctx, band.Array, func(v float64) float64 { return v / sin })
	if err != nil {
		return nil, err
	}
	return band.WithArray(out), nil
}

// NDVI combines near-infrared and red reflectance. The result carries the
// georeferencing of nir.
func NDVI(ctx context.Context, ev raster.Evaluator, nir, red *raster.Band) (*raster.Band, error) {
	out, err := ev.Zip(ctx, nir.Array, red.Array, NormalizedDifference)
	if err != nil {
		return nil, err
	}
	return nir.WithArray(out), nil
}
