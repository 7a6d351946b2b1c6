package gpkg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/paulmach/orb"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

//RasterTable a tile-pyramid entry of gpkg_contents
type RasterTable struct {
	Name   string
	SRSID  int
	Bound  orb.Bound
	Levels int
	Tiles  int
}

// Tables lists the raster tables in the order they were written.
func (c *Container) Tables(ctx context.Context) ([]RasterTable, error) {
	rows, err := c.db.QueryContext(ctx, `select table_name, srs_id, min_x, min_y, max_x, max_y
		from gpkg_contents where data_type = 'tiles' order by rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tables []RasterTable
	for rows.Next() {
		var t RasterTable
		if err := rows.Scan(&t.Name, &t.SRSID, &t.Bound.Min[0], &t.Bound.Min[1], &t.Bound.Max[0], &t.Bound.Max[1]); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range tables {
		t := &tables[i]
		err := c.db.QueryRowContext(ctx, `select count(*) from gpkg_tile_matrix where table_name = ?`, t.Name).Scan(&t.Levels)
		if err != nil {
			return nil, err
		}
		if t.Tiles, err = c.TileCount(ctx, t.Name); err != nil {
			return nil, err
		}
	}
	return tables, nil
}

func (c *Container) TileCount(ctx context.Context, table string) (int, error) {
	if err := checkTableName(table); err != nil {
		return 0, err
	}
	var n int
	err := c.db.QueryRowContext(ctx, fmt.Sprintf(`select count(*) from "%s"`, table)).Scan(&n)
	return n, err
}

// TileMatrices returns the zoom levels of table, coarsest first.
func (c *Container) TileMatrices(ctx context.Context, table string) ([]TileMatrix, error) {
	rows, err := c.db.QueryContext(ctx, `select zoom_level, matrix_width, matrix_height, tile_width, tile_height,
		pixel_x_size, pixel_y_size from gpkg_tile_matrix where table_name = ? order by zoom_level`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TileMatrix
	for rows.Next() {
		var tm TileMatrix
		if err := rows.Scan(&tm.Zoom, &tm.MatrixWidth, &tm.MatrixHeight, &tm.TileWidth, &tm.TileHeight,
			&tm.PixelXSize, &tm.PixelYSize); err != nil {
			return nil, err
		}
		out = append(out, tm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoTable, table)
	}
	return out, nil
}

// RasterSize is the pixel size of the full-resolution raster, derived from
// the data bound and the finest pixel size.
func (c *Container) RasterSize(ctx context.Context, table string) (int, int, error) {
	matrices, err := c.TileMatrices(ctx, table)
	if err != nil {
		return 0, 0, err
	}
	finest := matrices[len(matrices)-1]
	var minX, minY, maxX, maxY float64
	err = c.db.QueryRowContext(ctx, `select min_x, min_y, max_x, max_y from gpkg_contents where table_name = ?`, table).
		Scan(&minX, &minY, &maxX, &maxY)
	if err != nil {
		return 0, 0, err
	}
	w := int(math.Round((maxX - minX) / finest.PixelXSize))
	h := int(math.Round((maxY - minY) / finest.PixelYSize))
	return w, h, nil
}

// ReadMatrix decodes every tile of one zoom level into a single mosaic with
// the matrix origin at (0,0). Missing tiles stay transparent.
func (c *Container) ReadMatrix(ctx context.Context, table string, zoom int) (*image.RGBA, TileMatrix, error) {
	matrices, err := c.TileMatrices(ctx, table)
	if err != nil {
		return nil, TileMatrix{}, err
	}
	var tm TileMatrix
	found := false
	for _, m := range matrices {
		if m.Zoom == zoom {
			tm, found = m, true
		}
	}
	if !found {
		return nil, TileMatrix{}, fmt.Errorf("%w: %s zoom %d", ErrNoTable, table, zoom)
	}
	mosaic := image.NewRGBA(image.Rect(0, 0, tm.MatrixWidth*tm.TileWidth, tm.MatrixHeight*tm.TileHeight))
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(
		`select tile_column, tile_row, tile_data from "%s" where zoom_level = ?`, table), zoom)
	if err != nil {
		return nil, tm, err
	}
	defer rows.Close()
	for rows.Next() {
		var col, row int
		var data []byte
		if err := rows.Scan(&col, &row, &data); err != nil {
			return nil, tm, err
		}
		tile, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, tm, fmt.Errorf("decode %s %d/%d/%d: %w", table, zoom, col, row, err)
		}
		at := image.Pt(col*tm.TileWidth, row*tm.TileHeight)
		draw.Draw(mosaic, tile.Bounds().Sub(tile.Bounds().Min).Add(at), tile, tile.Bounds().Min, draw.Src)
	}
	return mosaic, tm, rows.Err()
}
