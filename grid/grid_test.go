package grid

import (
	"testing"

	"GpkgTiler/crs"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bound(minx, miny, maxx, maxy float64) orb.Bound {
	return orb.Bound{Min: orb.Point{minx, miny}, Max: orb.Point{maxx, maxy}}
}

func TestNewPartitionsExtent(t *testing.T) {
	t.Parallel()

	extent := bound(-13.7, 4.1, 1001.3, 777.77)
	for _, dims := range [][2]int{{1, 1}, {2, 2}, {3, 7}, {5, 1}, {11, 13}} {
		rows, cols := dims[0], dims[1]
		g, err := New(extent, rows, cols, 5)
		require.NoError(t, err)

		cells := g.Cells()
		require.Len(t, cells, rows*cols)

		area := 0.0
		for i, c := range cells {
			assert.Equal(t, i/cols, c.Row)
			assert.Equal(t, i%cols, c.Col)
			assert.Equal(t, 5, c.Resolution)
			area += (c.Bound.Max[0] - c.Bound.Min[0]) * (c.Bound.Max[1] - c.Bound.Min[1])

			// right neighbour shares the edge exactly
			if c.Col < cols-1 {
				assert.Equal(t, c.Bound.Max[0], cells[i+1].Bound.Min[0])
				assert.Equal(t, c.Bound.Min[1], cells[i+1].Bound.Min[1])
			} else {
				assert.Equal(t, extent.Max[0], c.Bound.Max[0])
			}
			// upper neighbour shares the edge exactly
			if c.Row < rows-1 {
				assert.Equal(t, c.Bound.Max[1], cells[i+cols].Bound.Min[1])
			} else {
				assert.Equal(t, extent.Max[1], c.Bound.Max[1])
			}
			if c.Col == 0 {
				assert.Equal(t, extent.Min[0], c.Bound.Min[0])
			}
			if c.Row == 0 {
				assert.Equal(t, extent.Min[1], c.Bound.Min[1])
			}
		}
		want := (extent.Max[0] - extent.Min[0]) * (extent.Max[1] - extent.Min[1])
		assert.InDelta(t, want, area, want*1e-9)
	}
}

func TestNewOrder(t *testing.T) {
	t.Parallel()

	g, err := New(bound(0, 0, 100, 100), 2, 2, 10)
	require.NoError(t, err)
	cells := g.Cells()
	assert.Equal(t, bound(0, 0, 50, 50), cells[0].Bound)
	assert.Equal(t, bound(50, 0, 100, 50), cells[1].Bound)
	assert.Equal(t, bound(0, 50, 50, 100), cells[2].Bound)
	assert.Equal(t, bound(50, 50, 100, 100), cells[3].Bound)
	assert.Equal(t, "0/4", g.ProgressLabel())
	assert.Equal(t, "10m", cells[0].Label())
}

func TestNewInvalid(t *testing.T) {
	t.Parallel()

	_, err := New(bound(0, 0, 0, 10), 1, 1, 5)
	assert.ErrorIs(t, err, ErrExtent)
	_, err = New(bound(10, 0, 0, 10), 1, 1, 5)
	assert.ErrorIs(t, err, ErrExtent)
	_, err = New(bound(0, 0, 10, 10), 0, 1, 5)
	assert.ErrorIs(t, err, ErrDimensions)
	_, err = New(bound(0, 0, 10, 10), 1, -2, 5)
	assert.ErrorIs(t, err, ErrDimensions)
	_, err = New(bound(0, 0, 10, 10), 1, 1, 0)
	assert.ErrorIs(t, err, ErrResolution)
}

func TestSetResolutionAt(t *testing.T) {
	t.Parallel()

	g, err := New(bound(0, 0, 90, 90), 3, 3, 5)
	require.NoError(t, err)
	before := g.Cells()

	c, err := g.SetResolutionAt(orb.Point{45, 45}, 12)
	require.NoError(t, err)
	assert.Equal(t, 12, c.Resolution)

	after := g.Cells()
	changed := 0
	for i := range after {
		if after[i].Resolution != before[i].Resolution {
			changed++
			assert.Equal(t, 4, i)
		}
		assert.Equal(t, before[i].Bound, after[i].Bound)
	}
	assert.Equal(t, 1, changed)

	_, err = g.SetResolutionAt(orb.Point{45, 45}, 0)
	assert.ErrorIs(t, err, ErrResolution)
	_, err = g.SetResolutionAt(orb.Point{-1, 45}, 3)
	assert.ErrorIs(t, err, ErrOutside)
}

func TestSetResolutionBulk(t *testing.T) {
	t.Parallel()

	g, err := New(bound(0, 0, 90, 90), 3, 3, 5)
	require.NoError(t, err)
	_, err = g.SetResolutionAt(orb.Point{10, 10}, 30)
	require.NoError(t, err)

	require.NoError(t, g.SetResolution(7))
	for _, c := range g.Cells() {
		assert.Equal(t, 7, c.Resolution)
	}
	assert.ErrorIs(t, g.SetResolution(-1), ErrResolution)
}

func TestDeleteAt(t *testing.T) {
	t.Parallel()

	g, err := New(bound(0, 0, 90, 90), 3, 3, 5)
	require.NoError(t, err)
	_, err = g.SetResolutionAt(orb.Point{80, 80}, 20)
	require.NoError(t, err)
	before := g.Cells()

	removed, err := g.DeleteAt(orb.Point{45, 15})
	require.NoError(t, err)
	assert.Equal(t, before[1], removed)

	after := g.Cells()
	require.Len(t, after, len(before)-1)
	assert.Equal(t, before[:1], after[:1])
	assert.Equal(t, before[2:], after[1:])

	// the hole stays a hole
	_, err = g.DeleteAt(orb.Point{45, 15})
	assert.ErrorIs(t, err, ErrNoCell)
	_, _, err = g.CellAt(orb.Point{45, 15})
	assert.ErrorIs(t, err, ErrNoCell)
	_, err = g.DeleteAt(orb.Point{200, 15})
	assert.ErrorIs(t, err, ErrOutside)
}

func TestSnapshotIsIndependent(t *testing.T) {
	t.Parallel()

	g, err := New(bound(0, 0, 100, 100), 2, 2, 5)
	require.NoError(t, err)
	snap := g.Snapshot()

	require.NoError(t, g.SetResolution(9))
	_, err = g.DeleteAt(orb.Point{10, 10})
	require.NoError(t, err)

	require.Len(t, snap, 4)
	for _, c := range snap {
		assert.Equal(t, 5, c.Resolution)
	}
}

func TestReproject(t *testing.T) {
	t.Parallel()

	g, err := New(bound(-10, 40, 10, 60), 2, 2, 5)
	require.NoError(t, err)
	tr, err := crs.NewTransform(crs.WGS84, crs.WebMercator)
	require.NoError(t, err)

	g.Reproject(tr)
	cells := g.Cells()
	ext := g.Extent()
	assert.InDelta(t, tr.Point(orb.Point{-10, 40}).X(), ext.Min.X(), 1e-6)
	assert.Equal(t, cells[0].Bound.Max[0], cells[1].Bound.Min[0])
	assert.Equal(t, cells[0].Bound.Max[1], cells[2].Bound.Min[1])
	assert.Equal(t, ext.Max[0], cells[3].Bound.Max[0])
}
