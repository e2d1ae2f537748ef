package landsat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/venicegeo/geojson-go/geojson"
)

// ErrMissingKey is returned when a metadata group or key is absent
var ErrMissingKey = errors.New("missing metadata key")

const (
	collection1Root = "L1_METADATA_FILE"
	collection2Root = "LANDSAT_METADATA_FILE"
)

// group names differ between Collection 1 and Collection 2 documents
type mtlLayout struct {
	rescaling string
	image     string
	corners   string
}

var mtlLayouts = map[string]mtlLayout{
	collection1Root: {rescaling: "RADIOMETRIC_RESCALING", image: "IMAGE_ATTRIBUTES", corners: "PRODUCT_METADATA"},
	collection2Root: {rescaling: "LEVEL1_RADIOMETRIC_RESCALING", image: "IMAGE_ATTRIBUTES", corners: "PROJECTION_ATTRIBUTES"},
}

// MTL is a parsed Landsat MTL JSON metadata document
type MTL struct {
	root   string
	layout mtlLayout
	groups map[string]json.RawMessage
}

// Corners are the scene's product corner coordinates as [lon, lat] pairs
type Corners struct {
	UpperLeft  [2]float64 `json:"upperLeft"`
	UpperRight [2]float64 `json:"upperRight"`
	LowerRight [2]float64 `json:"lowerRight"`
	LowerLeft  [2]float64 `json:"lowerLeft"`
}

// Polygon returns the corners as a closed GeoJSON polygon
func (c Corners) Polygon() *geojson.Polygon {
	ring := [][]float64{}
	for _, corner := range [][2]float64{c.UpperLeft, c.UpperRight, c.LowerRight, c.LowerLeft, c.UpperLeft} {
		ring = append(ring, []float64{corner[0], corner[1]})
	}
	return geojson.NewPolygon([][][]float64{ring})
}

// ParseMTL reads an MTL JSON document. Collection 1 documents are preferred;
// Collection 2 documents are accepted when no Collection 1 root is present.
func ParseMTL(r io.Reader) (*MTL, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading MTL: %w", err)
	}
	var doc map[string]json.RawMessage
	if err = json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error parsing MTL JSON: %w", err)
	}

	for _, root := range []string{collection1Root, collection2Root} {
		raw, ok := doc[root]
		if !ok {
			continue
		}
		mtl := MTL{root: root, layout: mtlLayouts[root]}
		if err = json.Unmarshal(raw, &mtl.groups); err != nil {
			return nil, fmt.Errorf("error parsing %s: %w", root, err)
		}
		return &mtl, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrMissingKey, collection1Root)
}

// Root returns the name of the document's top-level group
func (m *MTL) Root() string {
	return m.root
}

// Value returns the numeric value at group.key. Values may be JSON numbers or
// numeric strings.
func (m *MTL) Value(group string, key string) (float64, error) {
	keyPath := strings.Join([]string{m.root, group, key}, ".")

	rawGroup, ok := m.groups[group]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingKey, keyPath)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(rawGroup, &fields); err != nil {
		return 0, fmt.Errorf("metadata group %s.%s is not an object: %w", m.root, group, err)
	}
	rawValue, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingKey, keyPath)
	}

	decoder := json.NewDecoder(bytes.NewReader(rawValue))
	decoder.UseNumber()
	var value interface{}
	if err := decoder.Decode(&value); err != nil {
		return 0, fmt.Errorf("metadata value %s is malformed: %w", keyPath, err)
	}
	switch v := value.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("metadata value %s is not a number: %w", keyPath, err)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("metadata value %s is not a number: %q", keyPath, v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("metadata value %s is not a number: %v", keyPath, value)
	}
}

// ReflectanceScaling returns the reflectance multiplicative and additive
// rescaling factors for a band
func (m *MTL) ReflectanceScaling(band int) (mult float64, add float64, err error) {
	if mult, err = m.Value(m.layout.rescaling, fmt.Sprintf("REFLECTANCE_MULT_BAND_%d", band)); err != nil {
		return 0, 0, err
	}
	if add, err = m.Value(m.layout.rescaling, fmt.Sprintf("REFLECTANCE_ADD_BAND_%d", band)); err != nil {
		return 0, 0, err
	}
	return mult, add, nil
}

// SunElevation returns the scene-center sun elevation in degrees
func (m *MTL) SunElevation() (float64, error) {
	return m.Value(m.layout.image, "SUN_ELEVATION")
}

// Corners returns the product corner coordinates
func (m *MTL) Corners() (*Corners, error) {
	var c Corners
	targets := []struct {
		corner string
		dest   *[2]float64
	}{
		{"UL", &c.UpperLeft},
		{"UR", &c.UpperRight},
		{"LR", &c.LowerRight},
		{"LL", &c.LowerLeft},
	}
	for _, target := range targets {
		lon, err := m.Value(m.layout.corners, fmt.Sprintf("CORNER_%s_LON_PRODUCT", target.corner))
		if err != nil {
			return nil, err
		}
		lat, err := m.Value(m.layout.corners, fmt.Sprintf("CORNER_%s_LAT_PRODUCT", target.corner))
		if err != nil {
			return nil, err
		}
		*target.dest = [2]float64{lon, lat}
	}
	return &c, nil
}

// LoadMTL opens and parses an MTL JSON file
func LoadMTL(metadataPath string) (*MTL, error) {
	file, err := os.Open(metadataPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ParseMTL(file)
}

// LoadScaleFactors reads the reflectance rescaling factors M_p and A_p of a
// band from an MTL JSON file
func LoadScaleFactors(metadataPath string, band int) (mult float64, add float64, err error) {
	mtl, err := LoadMTL(metadataPath)
	if err != nil {
		return 0, 0, fmt.Errorf("error loading metadata %s: %w", metadataPath, err)
	}
	return mtl.ReflectanceScaling(band)
}
