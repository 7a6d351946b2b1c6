package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"GpkgTiler/crs"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	log "github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"
)

//WebTilesOptions settings of a tiled web layer
type WebTilesOptions struct {
	Name      string
	URL       string // template with {z}, {x}, {y} or {-y}
	MinZoom   int
	MaxZoom   int
	Workers   int
	CacheSize int
	Timeout   time.Duration
	UserAgent string
	Client    *http.Client
}

//WebTiles a tiled web map layer in web mercator
type WebTiles struct {
	name      string
	url       string
	minZoom   maptile.Zoom
	maxZoom   maptile.Zoom
	workers   int
	userAgent string
	client    *http.Client
	cache     *lru.Cache[maptile.Tile, image.Image]
}

// NewWebTiles validates the options and prepares the HTTP client and cache.
func NewWebTiles(o WebTilesOptions) (*WebTiles, error) {
	if o.URL == "" {
		return nil, errors.New("web tile source needs a url template")
	}
	if !strings.Contains(o.URL, "{z}") || !strings.Contains(o.URL, "{x}") ||
		!(strings.Contains(o.URL, "{y}") || strings.Contains(o.URL, "{-y}")) {
		return nil, fmt.Errorf("url template %q lacks {z}/{x}/{y}", o.URL)
	}
	if o.MaxZoom <= 0 || o.MaxZoom > 24 {
		o.MaxZoom = 19
	}
	if o.MinZoom < 0 || o.MinZoom > o.MaxZoom {
		o.MinZoom = 0
	}
	if o.Workers < 1 {
		o.Workers = 4
	}
	if o.CacheSize < 1 {
		o.CacheSize = 512
	}
	if o.Name == "" {
		o.Name = o.URL
	}
	cache, err := lru.New[maptile.Tile, image.Image](o.CacheSize)
	if err != nil {
		return nil, err
	}
	client := o.Client
	if client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.MaxIdleConnsPerHost = o.Workers
		transport.MaxConnsPerHost = o.Workers
		transport.MaxIdleConns = o.Workers
		transport.IdleConnTimeout = time.Second * 5
		timeout := o.Timeout
		if timeout <= 0 {
			timeout = time.Minute
		}
		client = &http.Client{Transport: transport, Timeout: timeout}
	}
	return &WebTiles{
		name:      o.Name,
		url:       o.URL,
		minZoom:   maptile.Zoom(o.MinZoom),
		maxZoom:   maptile.Zoom(o.MaxZoom),
		workers:   o.Workers,
		userAgent: o.UserAgent,
		client:    client,
		cache:     cache,
	}, nil
}

func (w *WebTiles) Name() string { return w.name }
func (w *WebTiles) Kind() Kind   { return KindWebTiles }
func (w *WebTiles) CRS() crs.CRS { return crs.WebMercator }

func (w *WebTiles) tileURL(t maptile.Tile) string {
	url := strings.Replace(w.url, "{x}", strconv.Itoa(int(t.X)), -1)
	url = strings.Replace(url, "{-y}", strconv.Itoa(int(flipY(t))), -1)
	url = strings.Replace(url, "{y}", strconv.Itoa(int(t.Y)), -1)
	url = strings.Replace(url, "{z}", strconv.Itoa(int(t.Z)), -1)
	return url
}

// Read picks a zoom level for the requested resolution, fetches the
// covering tiles and samples them into a width×height window.
func (w *WebTiles) Read(ctx context.Context, bound orb.Bound, width, height int, progress ProgressFunc) (*image.RGBA, error) {
	if err := checkWindow(bound, width, height); err != nil {
		return nil, err
	}
	res := (bound.Max[0] - bound.Min[0]) / float64(width)
	if ry := (bound.Max[1] - bound.Min[1]) / float64(height); ry < res {
		res = ry
	}
	z := ZoomFor(res, w.minZoom, w.maxZoom)
	rng := CoveringRange(bound, z)
	tiles, err := w.fetchRange(ctx, rng, progress)
	if err != nil {
		return nil, err
	}

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	for j := 0; j < height; j++ {
		for i := 0; i < width; i++ {
			px, py := worldPixel(pixelCenter(bound, width, height, i, j), z)
			if px < 0 || py < 0 {
				continue
			}
			t := maptile.New(uint32(px/TileSize), uint32(py/TileSize), z)
			img := tiles[t]
			if img == nil {
				continue
			}
			b := img.Bounds()
			x := int((px - float64(t.X)*TileSize) / TileSize * float64(b.Dx()))
			y := int((py - float64(t.Y)*TileSize) / TileSize * float64(b.Dy()))
			if x < 0 || y < 0 || x >= b.Dx() || y >= b.Dy() {
				continue
			}
			out.Set(i, j, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out, nil
}

func (w *WebTiles) fetchRange(ctx context.Context, rng TileRange, progress ProgressFunc) (map[maptile.Tile]image.Image, error) {
	list := rng.Tiles()
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
		done     int
	)
	tiles := make(map[maptile.Tile]image.Image, len(list))
	workers := make(chan struct{}, w.workers)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, t := range list {
		select {
		case workers <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(t maptile.Tile) {
			defer func() {
				wg.Done()
				<-workers
			}()
			img, err := w.tile(ctx, t)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				return
			}
			tiles[t] = img
			done++
			report(progress, float64(done)*100/float64(len(list)))
		}(t)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return tiles, nil
}

// tile returns the decoded tile, nil for tiles the server does not have.
func (w *WebTiles) tile(ctx context.Context, t maptile.Tile) (image.Image, error) {
	if img, ok := w.cache.Get(t); ok {
		return img, nil
	}
	url := w.tileURL(t)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if w.userAgent != "" {
		req.Header.Set("User-Agent", w.userAgent)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		log.Errorf("fetch :%v error, details: %s ~", t, err)
		return nil, fmt.Errorf("fetch tile %d/%d/%d: %w", t.Z, t.X, t.Y, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warnf("response close failure")
		}
	}()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		w.cache.Add(t, nil)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		log.Errorf("fetch %v tile error, status code: %d ~", t, resp.StatusCode)
		return nil, fmt.Errorf("fetch tile %d/%d/%d: status %d", t.Z, t.X, t.Y, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tile %d/%d/%d: %w", t.Z, t.X, t.Y, err)
	}
	if len(body) == 0 {
		w.cache.Add(t, nil)
		return nil, nil
	}
	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decode tile %d/%d/%d: %w", t.Z, t.X, t.Y, err)
	}
	w.cache.Add(t, img)
	return img, nil
}
