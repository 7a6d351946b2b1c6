// Package source reads georeferenced pixel windows from raster providers and
// reprojects them on the fly.
package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"GpkgTiler/crs"

	"github.com/paulmach/orb"
)

//Kind provider family
type Kind string

const (
	KindWebTiles Kind = "webtiles"
	KindImage    Kind = "image"
)

var (
	ErrIneligible = errors.New("please select a web tile (wms/wmts/xyz) basemap")
	ErrWindow     = errors.New("read window must be non-empty")
)

// ProgressFunc receives read progress in percent, 0 to 100.
type ProgressFunc func(percent float64)

// Provider materializes exactly width×height pixels covering bound, which is
// expressed in the provider's CRS.
type Provider interface {
	Name() string
	Kind() Kind
	CRS() crs.CRS
	Read(ctx context.Context, bound orb.Bound, width, height int, progress ProgressFunc) (*image.RGBA, error)
}

// Eligible reports whether p may be used as an export source. Only tiled web
// layers qualify.
func Eligible(p Provider) error {
	if p == nil {
		return ErrIneligible
	}
	if p.Kind() != KindWebTiles {
		return fmt.Errorf("%w: %s is a %s source", ErrIneligible, p.Name(), p.Kind())
	}
	return nil
}

func checkWindow(bound orb.Bound, width, height int) error {
	if width < 1 || height < 1 || !(bound.Max[0] > bound.Min[0]) || !(bound.Max[1] > bound.Min[1]) {
		return fmt.Errorf("%w: %dx%d over %v", ErrWindow, width, height, bound)
	}
	return nil
}

func report(progress ProgressFunc, pct float64) {
	if progress != nil {
		progress(pct)
	}
}

// pixelCenter returns the map coordinate of the centre of pixel (i, j) of a
// width×height raster covering bound. Row 0 is the top.
func pixelCenter(bound orb.Bound, width, height, i, j int) orb.Point {
	rx := (bound.Max[0] - bound.Min[0]) / float64(width)
	ry := (bound.Max[1] - bound.Min[1]) / float64(height)
	return orb.Point{bound.Min[0] + (float64(i)+0.5)*rx, bound.Max[1] - (float64(j)+0.5)*ry}
}

// sampleNearest picks the pixel of img (covering bound) under p. It returns
// false when p falls outside the raster.
func sampleNearest(img image.Image, bound orb.Bound, p orb.Point) (color.Color, bool) {
	b := img.Bounds()
	fx := (p[0] - bound.Min[0]) / (bound.Max[0] - bound.Min[0]) * float64(b.Dx())
	fy := (bound.Max[1] - p[1]) / (bound.Max[1] - bound.Min[1]) * float64(b.Dy())
	if fx < 0 || fy < 0 || math.IsNaN(fx) || math.IsNaN(fy) {
		return nil, false
	}
	x, y := int(fx), int(fy)
	if x >= b.Dx() || y >= b.Dy() {
		return nil, false
	}
	return img.At(b.Min.X+x, b.Min.Y+y), true
}
