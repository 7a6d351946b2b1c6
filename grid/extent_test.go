package grid

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const layer = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[2,48]}},
 {"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[1,47],[3,47],[3,49.5],[1,49.5],[1,47]]]}}
]}`

func TestExtentFromGeoJSON(t *testing.T) {
	t.Parallel()

	b, err := ExtentFromGeoJSON([]byte(layer))
	require.NoError(t, err)
	assert.Equal(t, bound(1, 47, 3, 49.5), b)

	_, err = ExtentFromGeoJSON([]byte(`{"type":"FeatureCollection","features":[]}`))
	assert.ErrorIs(t, err, ErrNoFeatures)
	_, err = ExtentFromGeoJSON([]byte(`not json`))
	assert.Error(t, err)
}

func TestLoadExtent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "layer.geojson")
	require.NoError(t, os.WriteFile(path, []byte(layer), 0o644))
	b, err := LoadExtent(path)
	require.NoError(t, err)
	assert.Equal(t, 1.0, b.Min[0])

	_, err = LoadExtent(filepath.Join(t.TempDir(), "missing.geojson"))
	assert.Error(t, err)
}
