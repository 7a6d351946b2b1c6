package source

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

//TileSize pixel size of a web tile
const TileSize = 256

// Equator is the web mercator world width in meters.
const Equator = 2 * math.Pi * 6378137.0

// flipY is the TMS row of t, counted from the bottom.
func flipY(t maptile.Tile) uint32 {
	return (1 << uint32(t.Z)) - t.Y - 1
}

// TileRange is the inclusive block of tiles covering a bound at one zoom.
type TileRange struct {
	Zoom       maptile.Zoom
	MinX, MaxX uint32
	MinY, MaxY uint32
}

func (r TileRange) Count() int {
	return int(r.MaxX-r.MinX+1) * int(r.MaxY-r.MinY+1)
}

// Tiles lists the range row by row from the top.
func (r TileRange) Tiles() []maptile.Tile {
	out := make([]maptile.Tile, 0, r.Count())
	for y := r.MinY; y <= r.MaxY; y++ {
		for x := r.MinX; x <= r.MaxX; x++ {
			out = append(out, maptile.New(x, y, r.Zoom))
		}
	}
	return out
}

// ZoomResolution is the native ground resolution of a zoom level in web
// mercator meters per pixel.
func ZoomResolution(z maptile.Zoom) float64 {
	return Equator / (TileSize * math.Exp2(float64(z)))
}

// ZoomFor returns the shallowest zoom in [min, max] whose resolution is at
// least as fine as res.
func ZoomFor(res float64, min, max maptile.Zoom) maptile.Zoom {
	for z := min; z < max; z++ {
		if ZoomResolution(z) <= res {
			return z
		}
	}
	return max
}

// worldPixel converts a web mercator coordinate to global pixel space at z.
func worldPixel(p orb.Point, z maptile.Zoom) (float64, float64) {
	n := TileSize * math.Exp2(float64(z))
	return (p[0]/Equator + 0.5) * n, (0.5 - p[1]/Equator) * n
}

// CoveringRange returns the tiles at z that intersect a web mercator bound.
func CoveringRange(b orb.Bound, z maptile.Zoom) TileRange {
	last := float64(uint32(1)<<uint32(z)) - 1
	clamp := func(v float64) uint32 {
		return uint32(math.Max(0, math.Min(last, math.Floor(v/TileSize))))
	}
	minX, minY := worldPixel(orb.Point{b.Min[0], b.Max[1]}, z)
	maxX, maxY := worldPixel(orb.Point{b.Max[0], b.Min[1]}, z)
	// a bound ending exactly on a tile edge does not need the next tile
	const eps = 1e-9
	return TileRange{
		Zoom: z,
		MinX: clamp(minX),
		MaxX: clamp(math.Max(minX, maxX-eps)),
		MinY: clamp(minY),
		MaxY: clamp(math.Max(minY, maxY-eps)),
	}
}
