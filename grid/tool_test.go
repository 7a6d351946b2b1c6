package grid

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	t.Parallel()

	m, err := ParseMode("Delete")
	require.NoError(t, err)
	assert.Equal(t, ModeDelete, m)
	m, err = ParseMode("resolution")
	require.NoError(t, err)
	assert.Equal(t, ModeResolution, m)
	_, err = ParseMode("pan")
	assert.Error(t, err)
}

func TestToolResolution(t *testing.T) {
	t.Parallel()

	g, err := New(bound(0, 0, 100, 100), 2, 2, 5)
	require.NoError(t, err)

	tool := Tool{Mode: ModeResolution}
	c, err := tool.Apply(g, Edit{Point: orb.Point{75, 25}, Resolution: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, c.Resolution)
	cells := g.Cells()
	assert.Equal(t, []int{5, 3, 5, 5}, []int{cells[0].Resolution, cells[1].Resolution, cells[2].Resolution, cells[3].Resolution})

	_, err = tool.Apply(g, Edit{Point: orb.Point{25, 25}, Resolution: 8, ApplyAll: true})
	require.NoError(t, err)
	for _, c := range g.Cells() {
		assert.Equal(t, 8, c.Resolution)
	}

	// bulk edits still need a click inside the grid
	_, err = tool.Apply(g, Edit{Point: orb.Point{-5, 25}, Resolution: 1, ApplyAll: true})
	assert.ErrorIs(t, err, ErrOutside)
	assert.Equal(t, 8, g.Cells()[0].Resolution)
}

func TestToolDelete(t *testing.T) {
	t.Parallel()

	g, err := New(bound(0, 0, 100, 100), 2, 2, 5)
	require.NoError(t, err)

	declined := Tool{Mode: ModeDelete, Confirm: func(Cell) bool { return false }}
	_, err = declined.Apply(g, Edit{Point: orb.Point{25, 75}})
	require.NoError(t, err)
	assert.Equal(t, 4, g.Len())

	var asked Cell
	tool := Tool{Mode: ModeDelete, Confirm: func(c Cell) bool { asked = c; return true }}
	c, err := tool.Apply(g, Edit{Point: orb.Point{25, 75}})
	require.NoError(t, err)
	assert.Equal(t, asked, c)
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, bound(0, 50, 50, 100), c.Bound)
}
