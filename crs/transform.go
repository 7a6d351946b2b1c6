package crs

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/wroge/wgs84"
)

const webMercatorLatLimit float64 = 85.05112877980659

// edgeSamples is the number of points taken along each bound edge when a
// bound is transformed, so curved edges are enveloped.
const edgeSamples = 21

//Transform converts coordinates between two registered systems
type Transform struct {
	Src, Dst CRS
	proj     projection
}

type projection func(orb.Point) orb.Point

func toMercator(p orb.Point) orb.Point {
	lat := math.Max(-webMercatorLatLimit, math.Min(webMercatorLatLimit, p.Lat()))
	return project.WGS84.ToMercator(orb.Point{p.Lon(), lat})
}

func identity(p orb.Point) orb.Point { return p }

var epsg = wgs84.EPSG()

// NewTransform builds a transform from src to dst. Both must be registered;
// web mercator and geographic WGS 84 convert through orb/project, every
// other pair through the EPSG repository of wroge/wgs84.
func NewTransform(src, dst CRS) (*Transform, error) {
	src, err := Lookup(src.Code)
	if err != nil {
		return nil, err
	}
	if dst, err = Lookup(dst.Code); err != nil {
		return nil, err
	}
	t := &Transform{Src: src, Dst: dst}
	switch {
	case src.Equal(dst):
		t.proj = identity
	case src.Equal(WGS84) && dst.Equal(WebMercator):
		t.proj = toMercator
	case src.Equal(WebMercator) && dst.Equal(WGS84):
		t.proj = projection(project.Mercator.ToWGS84)
	default:
		if t.proj, err = epsgProjection(src, dst); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func epsgProjection(src, dst CRS) (proj projection, err error) {
	defer func() {
		if r := recover(); r != nil {
			proj, err = nil, fmt.Errorf("%w: no transform %s -> %s", ErrUnknown, src, dst)
		}
	}()
	f := epsg.Transform(src.Code, dst.Code)
	// unsupported pairs come back as NaN
	if x, y, _ := f(0, 0, 0); math.IsNaN(x) || math.IsNaN(y) {
		return nil, fmt.Errorf("%w: no transform %s -> %s", ErrUnknown, src, dst)
	}
	return func(p orb.Point) orb.Point {
		x, y, _ := f(p[0], p[1], 0)
		return orb.Point{x, y}
	}, nil
}

func (t *Transform) IsIdentity() bool {
	return t.Src.Equal(t.Dst)
}

func (t *Transform) Point(p orb.Point) orb.Point {
	return t.proj(p)
}

// Inverse returns the transform in the opposite direction.
func (t *Transform) Inverse() *Transform {
	inv, _ := NewTransform(t.Dst, t.Src)
	return inv
}

// Bound transforms a rectangle and returns the envelope of its densified
// outline in the destination system.
func (t *Transform) Bound(b orb.Bound) orb.Bound {
	if t.IsIdentity() {
		return b
	}
	w, h := b.Max[0]-b.Min[0], b.Max[1]-b.Min[1]
	out := orb.Bound{Min: t.proj(b.Min), Max: t.proj(b.Min)}
	for i := 0; i < edgeSamples; i++ {
		f := float64(i) / float64(edgeSamples-1)
		for _, p := range []orb.Point{
			{b.Min[0] + f*w, b.Min[1]},
			{b.Min[0] + f*w, b.Max[1]},
			{b.Min[0], b.Min[1] + f*h},
			{b.Max[0], b.Min[1] + f*h},
		} {
			out = out.Extend(t.proj(p))
		}
	}
	return out
}
