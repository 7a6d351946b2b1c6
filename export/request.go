// Package export writes every cell of a grid as its own raster table in one
// GeoPackage, on a single background worker that reports progress as it goes.
package export

import (
	"errors"
	"fmt"
	"math"

	"GpkgTiler/crs"
	"GpkgTiler/gpkg"
	"GpkgTiler/grid"
	"GpkgTiler/source"

	"github.com/paulmach/orb"
)

// OverviewFactors are the pyramid levels built for each table.
var OverviewFactors = []int{2, 4, 8, 16}

var ErrOutput = errors.New("output path is required")

//Request everything an export needs, frozen when the export is submitted
type Request struct {
	Source     source.Provider
	Output     string
	Working    crs.CRS
	Target     crs.CRS
	Overviews  bool
	Resampling gpkg.Resampling
	// Container options forwarded to gpkg.Open.
	Container []gpkg.Option
	Cells     []grid.Cell

	meter             crs.CRS
	toSource, toMeter *crs.Transform
	toTarget          *crs.Transform
}

// NewRequest checks that src may be exported and takes a copy of the grid's
// cells. Later edits to g do not affect the request.
func NewRequest(src source.Provider, g *grid.Grid, output string, working, target crs.CRS, overviews bool) (*Request, error) {
	if err := source.Eligible(src); err != nil {
		return nil, err
	}
	if output == "" {
		return nil, ErrOutput
	}
	if g == nil {
		return nil, fmt.Errorf("%w: no grid", grid.ErrNoCell)
	}
	r := &Request{
		Source:    src,
		Output:    output,
		Working:   working,
		Target:    target,
		Overviews: overviews,
		Cells:     g.Snapshot(),
		meter:     crs.MeterCRS(src.CRS(), working),
	}
	var err error
	if r.toSource, err = crs.NewTransform(working, src.CRS()); err != nil {
		return nil, err
	}
	if r.toMeter, err = crs.NewTransform(working, r.meter); err != nil {
		return nil, err
	}
	if r.toTarget, err = crs.NewTransform(working, target); err != nil {
		return nil, err
	}
	return r, nil
}

// TableName is the raster table written for the i-th cell (zero based).
func TableName(i int) string {
	return fmt.Sprintf("image_tile%d", i+1)
}

// PixelDims is the raster size of a footprint measured in meters at res
// meters per pixel, never smaller than 1×1.
func PixelDims(bound orb.Bound, res int) (cols, rows int) {
	if res < 1 {
		res = 1
	}
	cols = int(math.Round((bound.Max[0] - bound.Min[0]) / float64(res)))
	rows = int(math.Round((bound.Max[1] - bound.Min[1]) / float64(res)))
	return max(cols, 1), max(rows, 1)
}
