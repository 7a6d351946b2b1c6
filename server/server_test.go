package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"GpkgTiler/crs"
	"GpkgTiler/export"
	"GpkgTiler/source"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func basemap(t *testing.T, kind source.Kind) *source.Image {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, color.RGBA{B: 255, A: 255})
		}
	}
	src, err := source.NewImage("basemap", img, orb.Bound{Min: orb.Point{-1000, -1000}, Max: orb.Point{1000, 1000}}, crs.WebMercator)
	require.NoError(t, err)
	src.As = kind
	return src
}

// gated blocks every read until release is closed.
type gated struct {
	source.Provider
	release chan struct{}
}

func (g *gated) Read(ctx context.Context, b orb.Bound, w, h int, p source.ProgressFunc) (*image.RGBA, error) {
	<-g.release
	return g.Provider.Read(ctx, b, w, h, p)
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	out := map[string]interface{}{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func cellsOf(t *testing.T, body map[string]interface{}) []map[string]interface{} {
	t.Helper()
	raw, ok := body["cells"].([]interface{})
	require.True(t, ok, body)
	out := make([]map[string]interface{}, len(raw))
	for i, c := range raw {
		out[i] = c.(map[string]interface{})
	}
	return out
}

func TestGridSession(t *testing.T) {
	t.Parallel()

	s := NewSession(Options{Source: basemap(t, source.KindWebTiles), Output: filepath.Join(t.TempDir(), "s.gpkg")})
	r := s.Router()

	code, _ := do(t, r, http.MethodGet, "/grid", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body := do(t, r, http.MethodPost, "/grid", gin.H{"extent": []float64{0, 0, 200, 200}, "rows": 2, "cols": 2})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "0/4", body["label"])
	assert.Equal(t, "EPSG:3857", body["crs"])
	cells := cellsOf(t, body)
	require.Len(t, cells, 4)
	assert.Equal(t, "5m", cells[0]["label"])
	assert.Equal(t, "image_tile4", cells[3]["table"])

	code, body = do(t, r, http.MethodPost, "/grid/edit", gin.H{"mode": "resolution", "x": 50, "y": 50, "resolution": 20})
	require.Equal(t, http.StatusOK, code, body)
	cells = cellsOf(t, body)
	assert.EqualValues(t, 20, cells[0]["resolution"])
	assert.EqualValues(t, 5, cells[1]["resolution"])

	code, body = do(t, r, http.MethodPost, "/grid/edit", gin.H{"x": 150, "y": 150, "resolution": 10, "apply_all": true})
	require.Equal(t, http.StatusOK, code, body)
	for _, c := range cellsOf(t, body) {
		assert.EqualValues(t, 10, c["resolution"])
	}

	code, _ = do(t, r, http.MethodPost, "/grid/edit", gin.H{"x": 50, "y": 50, "resolution": 0})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, r, http.MethodPost, "/grid/edit", gin.H{"mode": "delete", "x": 500, "y": 500})
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = do(t, r, http.MethodPost, "/grid/edit", gin.H{"mode": "paint", "x": 50, "y": 50})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, r, http.MethodPost, "/grid/edit", gin.H{"mode": "delete", "x": 150, "y": 150})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "0/3", body["label"])
	// the hole left by the deleted cell
	code, _ = do(t, r, http.MethodPost, "/grid/edit", gin.H{"mode": "delete", "x": 150, "y": 150})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, r, http.MethodDelete, "/grid", nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = do(t, r, http.MethodGet, "/grid", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestGridFromExtentAndCRS(t *testing.T) {
	t.Parallel()

	s := NewSession(Options{Source: basemap(t, source.KindWebTiles), Output: "unused.gpkg"})
	r := s.Router()

	code, body := do(t, r, http.MethodPost, "/grid/extent", gin.H{"extent": []float64{-1, -1, 1, 1}, "crs": "EPSG:4326", "rows": 1, "cols": 1})
	require.Equal(t, http.StatusCreated, code, body)
	extent := body["extent"].([]interface{})
	assert.InDelta(t, 111319.49, extent[2].(float64), 0.01)
	assert.InDelta(t, -111319.49, extent[0].(float64), 0.01)

	code, body = do(t, r, http.MethodPost, "/grid/crs", gin.H{"crs": "4326"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "EPSG:4326", body["crs"])

	code, body = do(t, r, http.MethodGet, "/grid", nil)
	require.Equal(t, http.StatusOK, code)
	extent = body["extent"].([]interface{})
	assert.InDelta(t, 1, extent[2].(float64), 1e-9)

	code, _ = do(t, r, http.MethodPost, "/grid/crs", gin.H{"crs": "EPSG:2154"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, r, http.MethodPost, "/grid/extent", gin.H{"extent": []float64{0, 0, 1, 1}, "crs": "bogus", "rows": 1, "cols": 1})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestExportSession(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "s.gpkg")
	var seen []string
	s := NewSession(Options{
		Source: basemap(t, source.KindWebTiles),
		Output: path,
		Handlers: func(id string) []export.Handler {
			return []export.Handler{func(ev export.Event) {
				if ev.Kind == export.EventCurrent {
					seen = append(seen, ev.Label)
				}
			}}
		},
	})
	r := s.Router()

	code, _ := do(t, r, http.MethodGet, "/export", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = do(t, r, http.MethodPost, "/export", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := do(t, r, http.MethodPost, "/grid", gin.H{"extent": []float64{0, 0, 200, 200}, "rows": 2, "cols": 2, "resolution": 10})
	require.Equal(t, http.StatusCreated, code, body)

	code, body = do(t, r, http.MethodPost, "/export", nil)
	require.Equal(t, http.StatusAccepted, code, body)
	assert.Equal(t, "0/4", body["label"])
	assert.EqualValues(t, 4, body["total"])

	res := s.Wait()
	require.NotNil(t, res)
	assert.Equal(t, export.AllOk, res.Status)
	assert.Equal(t, []string{"1/4", "2/4", "3/4", "4/4"}, seen)

	code, body = do(t, r, http.MethodGet, "/export", nil)
	require.Equal(t, http.StatusOK, code)
	// the label falls back to the idle count once the run is over
	assert.Equal(t, "0/4", body["label"])
	assert.Equal(t, "all_ok", body["status"])
	assert.Equal(t, "terminated", body["state"])
	assert.Equal(t, true, body["success"])
	assert.Len(t, body["tiles"], 4)
}

func TestExportRejects(t *testing.T) {
	t.Parallel()

	s := NewSession(Options{Source: basemap(t, source.KindImage), Output: filepath.Join(t.TempDir(), "s.gpkg")})
	r := s.Router()
	code, _ := do(t, r, http.MethodPost, "/grid", gin.H{"extent": []float64{0, 0, 100, 100}, "rows": 1, "cols": 1})
	require.Equal(t, http.StatusCreated, code)
	code, body := do(t, r, http.MethodPost, "/export", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "basemap")

	gate := &gated{Provider: basemap(t, source.KindWebTiles), release: make(chan struct{})}
	s = NewSession(Options{Source: gate, Output: filepath.Join(t.TempDir(), "g.gpkg")})
	r = s.Router()
	code, _ = do(t, r, http.MethodPost, "/grid", gin.H{"extent": []float64{0, 0, 100, 100}, "rows": 1, "cols": 1})
	require.Equal(t, http.StatusCreated, code)
	code, _ = do(t, r, http.MethodPost, "/export", gin.H{"overviews": true})
	require.Equal(t, http.StatusAccepted, code)
	code, _ = do(t, r, http.MethodPost, "/export", nil)
	assert.Equal(t, http.StatusConflict, code)

	close(gate.release)
	res := s.Wait()
	require.NotNil(t, res)
	assert.Equal(t, export.AllOk, res.Status)
	code, _ = do(t, r, http.MethodPost, "/export", gin.H{"output": filepath.Join(t.TempDir(), "again.gpkg")})
	assert.Equal(t, http.StatusAccepted, code)
	s.Wait()
}

func TestAbortExport(t *testing.T) {
	t.Parallel()

	gate := &gated{Provider: basemap(t, source.KindWebTiles), release: make(chan struct{})}
	s := NewSession(Options{Source: gate, Output: filepath.Join(t.TempDir(), "a.gpkg")})
	r := s.Router()

	code, _ := do(t, r, http.MethodDelete, "/export", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, r, http.MethodPost, "/grid", gin.H{"extent": []float64{0, 0, 200, 100}, "rows": 1, "cols": 2, "resolution": 10})
	require.Equal(t, http.StatusCreated, code)
	code, _ = do(t, r, http.MethodPost, "/export", nil)
	require.Equal(t, http.StatusAccepted, code)

	code, body := do(t, r, http.MethodDelete, "/export", nil)
	require.Equal(t, http.StatusAccepted, code, body)
	assert.Equal(t, "aborting", body["state"])

	close(gate.release)
	res := s.Wait()
	require.NotNil(t, res)
	assert.NotEqual(t, export.AllOk, res.Status)
	require.Len(t, res.Tiles, 2)
	assert.ErrorIs(t, res.Tiles[1].Err, context.Canceled)

	code, body = do(t, r, http.MethodGet, "/export", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "terminated", body["state"])
	assert.Equal(t, "0/2", body["label"])
	code, _ = do(t, r, http.MethodDelete, "/export", nil)
	assert.Equal(t, http.StatusNotFound, code)
}
