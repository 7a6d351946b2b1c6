package gpkg

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"

	"GpkgTiler/crs"

	"github.com/HugoSmits86/nativewebp"
	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
)

const webpExtensionDef = "http://www.geopackage.org/spec120/#extension_tiles_webp"

//TileMatrix one zoom level of a raster table
type TileMatrix struct {
	Zoom         int
	MatrixWidth  int
	MatrixHeight int
	TileWidth    int
	TileHeight   int
	PixelXSize   float64
	PixelYSize   float64
}

// WriteRaster appends img as a new tile-pyramid table covering bound in
// system sys. Everything is written in one transaction, so a failed write
// leaves no trace of the table.
func (c *Container) WriteRaster(ctx context.Context, table string, img image.Image, bound orb.Bound, sys crs.CRS) error {
	if err := checkTableName(table); err != nil {
		return err
	}
	if img == nil || img.Bounds().Empty() {
		return fmt.Errorf("raster %s is empty", table)
	}
	exists, err := c.HasTable(ctx, table)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrTableExists, table)
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	px := (bound.Max[0] - bound.Min[0]) / float64(w)
	py := (bound.Max[1] - bound.Min[1]) / float64(h)
	tm := TileMatrix{
		Zoom:         0,
		MatrixWidth:  ceilDiv(w, c.tileSize),
		MatrixHeight: ceilDiv(h, c.tileSize),
		TileWidth:    c.tileSize,
		TileHeight:   c.tileSize,
		PixelXSize:   px,
		PixelYSize:   py,
	}
	setMaxX := bound.Min[0] + float64(tm.MatrixWidth*c.tileSize)*px
	setMinY := bound.Max[1] - float64(tm.MatrixHeight*c.tileSize)*py

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	if err := ensureSRS(ctx, tx, sys); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`create table "%s" (
		id integer primary key autoincrement,
		zoom_level integer not null,
		tile_column integer not null,
		tile_row integer not null,
		tile_data blob not null,
		unique (zoom_level, tile_column, tile_row));`, table))
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `insert into gpkg_contents
		(table_name, data_type, identifier, description, min_x, min_y, max_x, max_y, srs_id)
		values (?, 'tiles', ?, ?, ?, ?, ?, ?, ?)`,
		table, table, fmt.Sprintf("%dx%d", w, h), bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1], sys.Code)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `insert into gpkg_tile_matrix_set (table_name, srs_id, min_x, min_y, max_x, max_y)
		values (?, ?, ?, ?, ?, ?)`, table, sys.Code, bound.Min[0], setMinY, setMaxX, bound.Max[1])
	if err != nil {
		return err
	}
	if c.format == "webp" {
		_, err = tx.ExecContext(ctx, `insert or ignore into gpkg_extensions
			(table_name, column_name, extension_name, definition, scope) values (?, 'tile_data', 'gpkg_webp', ?, 'read-write')`,
			table, webpExtensionDef)
		if err != nil {
			return err
		}
	}
	n, err := c.insertMatrix(ctx, tx, table, tm, img)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	log.Debugf("raster %s %dx%d written, %d tiles", table, w, h, n)
	return nil
}

// insertMatrix registers tm and stores img cut into tiles. img's origin is
// the top-left corner of the matrix. Fully transparent tiles are skipped.
func (c *Container) insertMatrix(ctx context.Context, tx *sql.Tx, table string, tm TileMatrix, img image.Image) (int, error) {
	_, err := tx.ExecContext(ctx, `insert into gpkg_tile_matrix
		(table_name, zoom_level, matrix_width, matrix_height, tile_width, tile_height, pixel_x_size, pixel_y_size)
		values (?, ?, ?, ?, ?, ?, ?, ?)`,
		table, tm.Zoom, tm.MatrixWidth, tm.MatrixHeight, tm.TileWidth, tm.TileHeight, tm.PixelXSize, tm.PixelYSize)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`insert into "%s" (zoom_level, tile_column, tile_row, tile_data) values (?, ?, ?, ?)`, table))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	origin := img.Bounds().Min
	count := 0
	for row := 0; row < tm.MatrixHeight; row++ {
		for col := 0; col < tm.MatrixWidth; col++ {
			if err := ctx.Err(); err != nil {
				return count, err
			}
			tile := image.NewRGBA(image.Rect(0, 0, tm.TileWidth, tm.TileHeight))
			sp := origin.Add(image.Pt(col*tm.TileWidth, row*tm.TileHeight))
			draw.Draw(tile, tile.Bounds(), img, sp, draw.Src)
			if transparent(tile) {
				continue
			}
			data, err := c.encode(tile)
			if err != nil {
				return count, err
			}
			if _, err := stmt.ExecContext(ctx, tm.Zoom, col, row, data); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

func (c *Container) encode(tile *image.RGBA) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch c.format {
	case "jpeg":
		err = jpeg.Encode(&buf, flatten(tile), &jpeg.Options{Quality: c.quality})
	case "webp":
		err = nativewebp.Encode(&buf, tile, nil)
	default:
		err = png.Encode(&buf, tile)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// flatten composes tile over white since JPEG has no alpha.
func flatten(tile *image.RGBA) *image.RGBA {
	out := image.NewRGBA(tile.Bounds())
	draw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), tile, tile.Bounds().Min, draw.Over)
	return out
}

func transparent(img *image.RGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0 {
			return false
		}
	}
	return true
}

func ceilDiv(a, b int) int {
	return int(math.Ceil(float64(a) / float64(b)))
}
