package landsat

import (
	"errors"
	"fmt"
	"net/url"
	"path"
)

// Landsat 8 OLI/TIRS band numbers
const (
	Coastal      = 1
	Blue         = 2
	Green        = 3
	Red          = 4
	NIR          = 5
	SWIR1        = 6
	SWIR2        = 7
	Panchromatic = 8
	Cirrus       = 9
	TIRS1        = 10
	TIRS2        = 11
)

// BandNames maps each band number to its short name
var BandNames = map[int]string{
	Coastal:      "coastal",
	Blue:         "blue",
	Green:        "green",
	Red:          "red",
	NIR:          "nir",
	SWIR1:        "swir1",
	SWIR2:        "swir2",
	Panchromatic: "panchromatic",
	Cirrus:       "cirrus",
	TIRS1:        "tirs1",
	TIRS2:        "tirs2",
}

// SceneFiles locates the downloadable files of a single scene
type SceneFiles struct {
	SceneID string
	Folder  url.URL
}

// NewSceneFiles creates a SceneFiles rooted at the scene's bucket folder
func NewSceneFiles(folderURL string, sceneID string) (*SceneFiles, error) {
	baseURL, err := url.Parse(folderURL)
	if err == nil && (baseURL == nil || baseURL.String() == "") {
		err = errors.New("No base Landsat folder URL could be parsed")
	}
	if err != nil {
		return nil, err
	}
	if sceneID == "" {
		return nil, errors.New("No scene ID given")
	}
	if baseURL.Path != "" && baseURL.Path[len(baseURL.Path)-1] != '/' {
		baseURL.Path += "/"
	}
	return &SceneFiles{SceneID: sceneID, Folder: *baseURL}, nil
}

// BandURL returns the GeoTIFF URL of the given band
func (sf SceneFiles) BandURL(band int) (string, error) {
	if _, ok := BandNames[band]; !ok {
		return "", fmt.Errorf("Unknown Landsat 8 band: %d", band)
	}
	return sf.resolve(fmt.Sprintf("%s_B%d.TIF", sf.SceneID, band)), nil
}

// MetadataURL returns the URL of the scene's MTL JSON document
func (sf SceneFiles) MetadataURL() string {
	return sf.resolve(fmt.Sprintf("%s_MTL.json", sf.SceneID))
}

func (sf SceneFiles) resolve(filename string) string {
	fileURL, _ := url.Parse("./" + filename)
	return sf.Folder.ResolveReference(fileURL).String()
}

// LocalName is the cache file name for a remote file: the last path element of its URL
func LocalName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("could not determine a file name from %s", rawURL)
	}
	return name, nil
}
