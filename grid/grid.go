// Package grid partitions an export extent into rectangular cells, each with
// its own ground resolution, and supports editing resolutions and removing
// cells.
package grid

import (
	"errors"
	"fmt"
	"sync"

	"GpkgTiler/crs"

	"github.com/paulmach/orb"
)

var (
	ErrExtent     = errors.New("grid extent is empty")
	ErrDimensions = errors.New("grid rows and columns must be positive")
	ErrResolution = errors.New("resolution must be a positive integer")
	ErrOutside    = errors.New("point is outside the grid extent")
	ErrNoCell     = errors.New("no grid cell at point")
)

//Cell one tile footprint and its ground resolution in meters
type Cell struct {
	Bound      orb.Bound
	Resolution int
	Row        int
	Col        int
}

// Label is the annotation shown for the cell, e.g. "5m".
func (c Cell) Label() string {
	return fmt.Sprintf("%dm", c.Resolution)
}

//Grid ordered cells covering an extent
type Grid struct {
	mu         sync.RWMutex
	extent     orb.Bound
	rows, cols int
	defaultRes int
	cells      []Cell
}

// New splits extent into rows×cols equal cells, left to right within a row
// and bottom to top across rows. Every cell starts at defaultRes.
func New(extent orb.Bound, rows, cols, defaultRes int) (*Grid, error) {
	if !(extent.Max[0] > extent.Min[0] && extent.Max[1] > extent.Min[1]) {
		return nil, ErrExtent
	}
	if rows < 1 || cols < 1 {
		return nil, ErrDimensions
	}
	if defaultRes < 1 {
		return nil, ErrResolution
	}
	g := &Grid{
		extent:     extent,
		rows:       rows,
		cols:       cols,
		defaultRes: defaultRes,
		cells:      make([]Cell, 0, rows*cols),
	}
	for r := 0; r < rows; r++ {
		bottom := edge(extent.Min[1], extent.Max[1], r, rows)
		top := edge(extent.Min[1], extent.Max[1], r+1, rows)
		for c := 0; c < cols; c++ {
			left := edge(extent.Min[0], extent.Max[0], c, cols)
			right := edge(extent.Min[0], extent.Max[0], c+1, cols)
			g.cells = append(g.cells, Cell{
				Bound:      orb.Bound{Min: orb.Point{left, bottom}, Max: orb.Point{right, top}},
				Resolution: defaultRes,
				Row:        r,
				Col:        c,
			})
		}
	}
	return g, nil
}

// edge returns the i-th of n+1 partition lines between lo and hi. Neighbour
// cells evaluate the same expression, so shared edges are identical.
func edge(lo, hi float64, i, n int) float64 {
	if i == n {
		return hi
	}
	return lo + (hi-lo)*float64(i)/float64(n)
}

func (g *Grid) Extent() orb.Bound {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.extent
}

// Dims returns the rows and columns the grid was built with.
func (g *Grid) Dims() (rows, cols int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rows, g.cols
}

func (g *Grid) DefaultResolution() int {
	return g.defaultRes
}

func (g *Grid) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.cells)
}

// Cells returns a copy of the cells in iteration order.
func (g *Grid) Cells() []Cell {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Cell, len(g.cells))
	copy(out, g.cells)
	return out
}

// Snapshot is the immutable view handed to an export. Later edits to the
// grid never reach it.
func (g *Grid) Snapshot() []Cell {
	return g.Cells()
}

// ProgressLabel is the idle export label, "0/<cells>".
func (g *Grid) ProgressLabel() string {
	return fmt.Sprintf("0/%d", g.Len())
}

// CellAt returns the index and value of the first cell containing p.
func (g *Grid) CellAt(p orb.Point) (int, Cell, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.find(p)
}

func (g *Grid) find(p orb.Point) (int, Cell, error) {
	if !g.extent.Contains(p) {
		return -1, Cell{}, ErrOutside
	}
	for i, c := range g.cells {
		if c.Bound.Contains(p) {
			return i, c, nil
		}
	}
	return -1, Cell{}, ErrNoCell
}

// SetResolutionAt changes the resolution of the cell containing p only.
func (g *Grid) SetResolutionAt(p orb.Point, res int) (Cell, error) {
	if res < 1 {
		return Cell{}, ErrResolution
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	i, _, err := g.find(p)
	if err != nil {
		return Cell{}, err
	}
	g.cells[i].Resolution = res
	return g.cells[i], nil
}

// SetResolution applies res to every cell.
func (g *Grid) SetResolution(res int) error {
	if res < 1 {
		return ErrResolution
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.cells {
		g.cells[i].Resolution = res
	}
	return nil
}

// DeleteAt removes the cell containing p. Remaining cells keep their
// footprints and resolutions.
func (g *Grid) DeleteAt(p orb.Point) (Cell, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i, c, err := g.find(p)
	if err != nil {
		return Cell{}, err
	}
	g.cells = append(g.cells[:i], g.cells[i+1:]...)
	return c, nil
}

// Reproject re-expresses the extent and every footprint through t, used when
// the working coordinate system changes.
func (g *Grid) Reproject(t *crs.Transform) {
	if t.IsIdentity() {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.extent = t.Bound(g.extent)
	for i := range g.cells {
		g.cells[i].Bound = t.Bound(g.cells[i].Bound)
	}
}
