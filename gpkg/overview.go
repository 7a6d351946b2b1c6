package gpkg

import (
	"context"
	"fmt"
	"image"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
)

type Resampling int

const (
	Nearest Resampling = iota
	Bilinear
)

func (r Resampling) String() string {
	if r == Bilinear {
		return "bilinear"
	}
	return "nearest"
}

func (r Resampling) scaler() draw.Scaler {
	if r == Bilinear {
		return draw.ApproxBiLinear
	}
	return draw.NearestNeighbor
}

// ParseResampling accepts "nearest" (or empty) and "bilinear".
func ParseResampling(s string) (Resampling, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nearest", "near":
		return Nearest, nil
	case "bilinear":
		return Bilinear, nil
	}
	return Nearest, fmt.Errorf("unknown resampling %q", s)
}

// BuildOverviews adds one reduced zoom level per factor below the base matrix
// of table. The base keeps its tiles but moves to zoom len(factors), so the
// coarsest overview is zoom 0 and detail grows with the zoom number.
func (c *Container) BuildOverviews(ctx context.Context, table string, factors []int, r Resampling) error {
	fs, err := normalizeFactors(factors)
	if err != nil {
		return err
	}
	matrices, err := c.TileMatrices(ctx, table)
	if err != nil {
		return err
	}
	if len(matrices) > 1 {
		return fmt.Errorf("%w: %s", ErrOverviewsExist, table)
	}
	base := matrices[0]
	w, h, err := c.RasterSize(ctx, table)
	if err != nil {
		return err
	}
	mosaic, _, err := c.ReadMatrix(ctx, table, base.Zoom)
	if err != nil {
		return err
	}
	src := mosaic.SubImage(image.Rect(0, 0, w, h))

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	top := len(fs)
	_, err = tx.ExecContext(ctx, `update gpkg_tile_matrix set zoom_level = ? where table_name = ? and zoom_level = ?`,
		top, table, base.Zoom)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`update "%s" set zoom_level = ? where zoom_level = ?`, table), top, base.Zoom)
	if err != nil {
		return err
	}
	for i, f := range fs {
		ow, oh := ceilDiv(w, f), ceilDiv(h, f)
		scaled := image.NewRGBA(image.Rect(0, 0, ow, oh))
		r.scaler().Scale(scaled, scaled.Bounds(), src, src.Bounds(), draw.Src, nil)
		tm := TileMatrix{
			Zoom:         top - 1 - i,
			MatrixWidth:  ceilDiv(ow, c.tileSize),
			MatrixHeight: ceilDiv(oh, c.tileSize),
			TileWidth:    c.tileSize,
			TileHeight:   c.tileSize,
			PixelXSize:   base.PixelXSize * float64(f),
			PixelYSize:   base.PixelYSize * float64(f),
		}
		n, err := c.insertMatrix(ctx, tx, table, tm, scaled)
		if err != nil {
			return fmt.Errorf("overview x%d: %w", f, err)
		}
		log.Debugf("overview %s x%d at zoom %d, %d tiles", table, f, tm.Zoom, n)
	}
	return tx.Commit()
}

func normalizeFactors(factors []int) ([]int, error) {
	if len(factors) == 0 {
		return nil, ErrFactors
	}
	fs := append([]int(nil), factors...)
	sort.Ints(fs)
	for i, f := range fs {
		if f < 2 || (i > 0 && fs[i-1] == f) {
			return nil, fmt.Errorf("%w: %v", ErrFactors, factors)
		}
	}
	return fs, nil
}
