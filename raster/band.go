package raster

// Band is one spectral band: a sample grid plus georeferencing that is carried
// along unchanged and never computed on.
type Band struct {
	Array
	// GeoTransform is the GDAL affine transform from pixel to projected coordinates.
	GeoTransform [6]float64
	// Projection is the coordinate reference system as WKT.
	Projection string
}

// WithArray returns a band with b's georeferencing and a new sample grid
func (b *Band) WithArray(a Array) *Band {
	return &Band{Array: a, GeoTransform: b.GeoTransform, Projection: b.Projection}
}
