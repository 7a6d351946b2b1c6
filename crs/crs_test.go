package crs

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int
		err  bool
	}{
		{"EPSG:3857", 3857, false},
		{"epsg:4326", 4326, false},
		{" 3857 ", 3857, false},
		{"EPSG:900913", 3857, false},
		{"102100", 3857, false},
		{"EPSG:32633", 32633, false},
		{"EPSG:32733", 32733, false},
		{"EPSG:25832", 25832, false},
		{"EPSG:27700", 27700, false},
		{"EPSG:3395", 3395, false},
		{"EPSG:32661", 0, true},
		{"EPSG:2154", 0, true},
		{"ESRI:3857", 0, true},
		{"mercator", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, err := Parse(tt.in)
			if tt.err {
				assert.ErrorIs(t, err, ErrUnknown)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Code)
		})
	}
}

func TestMeterCRS(t *testing.T) {
	t.Parallel()

	assert.Equal(t, WebMercator, MeterCRS(WebMercator, WGS84))
	assert.Equal(t, WebMercator, MeterCRS(WGS84, WebMercator))
	assert.Equal(t, WebMercator, MeterCRS(WGS84, WGS84))
	assert.True(t, WebMercator.IsMetric())
	assert.False(t, WGS84.IsMetric())
	assert.Equal(t, "EPSG:4326", WGS84.String())
}

func TestTransformIdentity(t *testing.T) {
	t.Parallel()

	tr, err := NewTransform(WebMercator, WebMercator)
	require.NoError(t, err)
	assert.True(t, tr.IsIdentity())

	b := orb.Bound{Min: orb.Point{1, 2}, Max: orb.Point{3, 4}}
	assert.Equal(t, b, tr.Bound(b))
	assert.Equal(t, orb.Point{5, 6}, tr.Point(orb.Point{5, 6}))
}

func TestTransformRoundTrip(t *testing.T) {
	t.Parallel()

	fwd, err := NewTransform(WGS84, WebMercator)
	require.NoError(t, err)
	inv := fwd.Inverse()
	require.NotNil(t, inv)

	p := orb.Point{13.4, 52.5}
	m := fwd.Point(p)
	assert.InDelta(t, 1491681.0, m.X(), 1.0)
	back := inv.Point(m)
	assert.InDelta(t, p.Lon(), back.Lon(), 1e-9)
	assert.InDelta(t, p.Lat(), back.Lat(), 1e-9)

	// poles are clamped to the web mercator limit
	pole := fwd.Point(orb.Point{0, 90})
	assert.False(t, math.IsInf(pole.Y(), 0))
}

func TestTransformBoundEnvelope(t *testing.T) {
	t.Parallel()

	fwd, err := NewTransform(WGS84, WebMercator)
	require.NoError(t, err)

	b := orb.Bound{Min: orb.Point{-10, 40}, Max: orb.Point{10, 60}}
	out := fwd.Bound(b)
	assert.InDelta(t, fwd.Point(b.Min).X(), out.Min.X(), 1e-6)
	assert.InDelta(t, fwd.Point(b.Max).Y(), out.Max.Y(), 1e-6)
	assert.Less(t, out.Min.Y(), out.Max.Y())
}

func TestLookupUTM(t *testing.T) {
	t.Parallel()

	north, err := Lookup(32633)
	require.NoError(t, err)
	assert.Equal(t, "WGS 84 / UTM zone 33N", north.Name)
	assert.True(t, north.IsMetric())
	assert.Contains(t, north.WKT, `PARAMETER["central_meridian",15]`)
	assert.Contains(t, north.WKT, `AUTHORITY["EPSG","32633"]`)

	south, err := Lookup(32701)
	require.NoError(t, err)
	assert.Equal(t, "WGS 84 / UTM zone 1S", south.Name)
	assert.Contains(t, south.WKT, `PARAMETER["central_meridian",-177]`)
	assert.Contains(t, south.WKT, `PARAMETER["false_northing",10000000]`)

	etrs, err := Lookup(25832)
	require.NoError(t, err)
	assert.Equal(t, "ETRS89 / UTM zone 32N", etrs.Name)

	assert.Equal(t, BritishGrid, MeterCRS(WGS84, BritishGrid))
	assert.Equal(t, north, MeterCRS(north, WebMercator))
}

func TestTransformUTM(t *testing.T) {
	t.Parallel()

	zone, err := Lookup(32633)
	require.NoError(t, err)
	fwd, err := NewTransform(WGS84, zone)
	require.NoError(t, err)
	assert.False(t, fwd.IsIdentity())

	p := fwd.Point(orb.Point{15, 52})
	assert.InDelta(t, 500000.0, p.X(), 0.5)
	assert.InDelta(t, 5761038.21, p.Y(), 0.5)
	p = fwd.Point(orb.Point{16, 52})
	assert.InDelta(t, 568649.70, p.X(), 0.5)
	assert.InDelta(t, 5761510.32, p.Y(), 0.5)

	back := fwd.Inverse().Point(p)
	assert.InDelta(t, 16.0, back.Lon(), 1e-6)
	assert.InDelta(t, 52.0, back.Lat(), 1e-6)

	// web mercator to utm goes through the same repository
	merc, err := NewTransform(WebMercator, zone)
	require.NoError(t, err)
	m, _ := NewTransform(WGS84, WebMercator)
	q := merc.Point(m.Point(orb.Point{15, 52}))
	assert.InDelta(t, 500000.0, q.X(), 0.5)
	assert.InDelta(t, 5761038.21, q.Y(), 0.5)

	b := fwd.Bound(orb.Bound{Min: orb.Point{14, 51}, Max: orb.Point{16, 53}})
	assert.Less(t, b.Min.X(), 500000.0)
	assert.Greater(t, b.Max.X(), 500000.0)
	assert.Less(t, b.Min.Y(), 5761038.21)
	assert.Greater(t, b.Max.Y(), 5761038.21)
}

func TestTransformUnregistered(t *testing.T) {
	t.Parallel()

	_, err := NewTransform(WGS84, CRS{Code: 2154, Units: Meters})
	assert.ErrorIs(t, err, ErrUnknown)
	_, err = NewTransform(CRS{Code: 0}, WebMercator)
	assert.ErrorIs(t, err, ErrUnknown)
}
