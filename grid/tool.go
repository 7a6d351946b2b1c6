package grid

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

//Mode what a click on the grid does
type Mode int

const (
	ModeResolution Mode = iota
	ModeDelete
)

func (m Mode) String() string {
	switch m {
	case ModeResolution:
		return "resolution"
	case ModeDelete:
		return "delete"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode maps "resolution" or "delete" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "resolution", "res", "":
		return ModeResolution, nil
	case "delete", "remove":
		return ModeDelete, nil
	}
	return 0, fmt.Errorf("unknown edit mode %q", s)
}

//Edit one click on the grid
type Edit struct {
	Point      orb.Point
	Resolution int
	// ApplyAll sets Resolution on every cell instead of the clicked one.
	ApplyAll bool
}

//Tool the grid customisation tool
type Tool struct {
	Mode Mode
	// Confirm is asked before a cell is removed. Nil removes without asking.
	Confirm func(Cell) bool
}

// Apply performs the tool's action for e. It returns the affected cell; for
// bulk edits the returned cell is the clicked one after the change. A
// declined deletion returns the cell and a nil error with the grid unchanged.
func (t Tool) Apply(g *Grid, e Edit) (Cell, error) {
	switch t.Mode {
	case ModeResolution:
		if !e.ApplyAll {
			return g.SetResolutionAt(e.Point, e.Resolution)
		}
		if _, _, err := g.CellAt(e.Point); err != nil {
			return Cell{}, err
		}
		if err := g.SetResolution(e.Resolution); err != nil {
			return Cell{}, err
		}
		_, c, err := g.CellAt(e.Point)
		return c, err
	case ModeDelete:
		_, c, err := g.CellAt(e.Point)
		if err != nil {
			return Cell{}, err
		}
		if t.Confirm != nil && !t.Confirm(c) {
			return c, nil
		}
		return g.DeleteAt(e.Point)
	}
	return Cell{}, fmt.Errorf("unsupported mode %s", t.Mode)
}
