package crs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

//Unit linear unit of a system
type Unit int

const (
	Degrees Unit = iota
	Meters
)

func (u Unit) String() string {
	if u == Meters {
		return "metre"
	}
	return "degree"
}

var ErrUnknown = errors.New("unknown coordinate reference system")

//CRS a registered EPSG coordinate reference system
type CRS struct {
	Code  int
	Name  string
	Units Unit
	WKT   string
}

func (c CRS) String() string {
	return fmt.Sprintf("EPSG:%d", c.Code)
}

// IsMetric reports whether linear units of the system are meters.
func (c CRS) IsMetric() bool {
	return c.Units == Meters
}

func (c CRS) Equal(o CRS) bool {
	return c.Code == o.Code
}

const wgs84WKT = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`

const webMercatorWKT = `PROJCS["WGS 84 / Pseudo-Mercator",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]],PROJECTION["Mercator_1SP"],PARAMETER["central_meridian",0],PARAMETER["scale_factor",1],PARAMETER["false_easting",0],PARAMETER["false_northing",0],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AXIS["Easting",EAST],AXIS["Northing",NORTH],EXTENSION["PROJ4","+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m +nadgrids=@null +wktext +no_defs"],AUTHORITY["EPSG","3857"]]`

const geogETRS89 = `GEOGCS["ETRS89",DATUM["European_Terrestrial_Reference_System_1989",SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]],TOWGS84[0,0,0,0,0,0,0],AUTHORITY["EPSG","6258"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4258"]]`

const worldMercatorWKT = `PROJCS["WGS 84 / World Mercator",` + wgs84WKT + `,PROJECTION["Mercator_1SP"],PARAMETER["central_meridian",0],PARAMETER["scale_factor",1],PARAMETER["false_easting",0],PARAMETER["false_northing",0],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AXIS["Easting",EAST],AXIS["Northing",NORTH],AUTHORITY["EPSG","3395"]]`

const britishGridWKT = `PROJCS["OSGB 1936 / British National Grid",GEOGCS["OSGB 1936",DATUM["OSGB_1936",SPHEROID["Airy 1830",6377563.396,299.3249646,AUTHORITY["EPSG","7001"]],TOWGS84[446.448,-125.157,542.06,0.15,0.247,0.842,-20.489],AUTHORITY["EPSG","6277"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4277"]],PROJECTION["Transverse_Mercator"],PARAMETER["latitude_of_origin",49],PARAMETER["central_meridian",-2],PARAMETER["scale_factor",0.9996012717],PARAMETER["false_easting",400000],PARAMETER["false_northing",-100000],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AXIS["Easting",EAST],AXIS["Northing",NORTH],AUTHORITY["EPSG","27700"]]`

var (
	WGS84         = CRS{Code: 4326, Name: "WGS 84", Units: Degrees, WKT: wgs84WKT}
	WebMercator   = CRS{Code: 3857, Name: "WGS 84 / Pseudo-Mercator", Units: Meters, WKT: webMercatorWKT}
	ETRS89        = CRS{Code: 4258, Name: "ETRS89", Units: Degrees, WKT: geogETRS89}
	WorldMercator = CRS{Code: 3395, Name: "WGS 84 / World Mercator", Units: Meters, WKT: worldMercatorWKT}
	BritishGrid   = CRS{Code: 27700, Name: "OSGB 1936 / British National Grid", Units: Meters, WKT: britishGridWKT}
)

var registry = map[int]CRS{
	4326:   WGS84,
	3857:   WebMercator,
	900913: WebMercator,
	3785:   WebMercator,
	102100: WebMercator,
	4258:   ETRS89,
	3395:   WorldMercator,
	27700:  BritishGrid,
}

func init() {
	for zone := 1; zone <= 60; zone++ {
		registry[32600+zone] = utm("WGS 84", wgs84WKT, 32600+zone, zone, false)
		registry[32700+zone] = utm("WGS 84", wgs84WKT, 32700+zone, zone, true)
	}
	for zone := 28; zone <= 38; zone++ {
		registry[25800+zone] = utm("ETRS89", geogETRS89, 25800+zone, zone, false)
	}
}

// utm describes one transverse mercator zone of a datum.
func utm(datum, geogcs string, code, zone int, south bool) CRS {
	hemi, northing := "N", 0
	if south {
		hemi, northing = "S", 10000000
	}
	name := fmt.Sprintf("%s / UTM zone %d%s", datum, zone, hemi)
	wkt := fmt.Sprintf(`PROJCS["%s",%s,PROJECTION["Transverse_Mercator"],PARAMETER["latitude_of_origin",0],`+
		`PARAMETER["central_meridian",%d],PARAMETER["scale_factor",0.9996],PARAMETER["false_easting",500000],`+
		`PARAMETER["false_northing",%d],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AXIS["Easting",EAST],AXIS["Northing",NORTH],`+
		`AUTHORITY["EPSG","%d"]]`, name, geogcs, zone*6-183, northing, code)
	return CRS{Code: code, Name: name, Units: Meters, WKT: wkt}
}

// Lookup returns the registered system for an EPSG code. Legacy web
// mercator codes resolve to EPSG:3857.
func Lookup(code int) (CRS, error) {
	c, ok := registry[code]
	if !ok {
		return CRS{}, fmt.Errorf("%w: EPSG:%d", ErrUnknown, code)
	}
	return c, nil
}

// Parse accepts "EPSG:3857", "epsg:3857" or a bare code.
func Parse(s string) (CRS, error) {
	v := strings.TrimSpace(s)
	if i := strings.IndexByte(v, ':'); i >= 0 {
		if !strings.EqualFold(v[:i], "epsg") {
			return CRS{}, fmt.Errorf("%w: %q", ErrUnknown, s)
		}
		v = v[i+1:]
	}
	code, err := strconv.Atoi(v)
	if err != nil {
		return CRS{}, fmt.Errorf("%w: %q", ErrUnknown, s)
	}
	return Lookup(code)
}

// MeterCRS picks the system tile pixel dimensions are computed in. Ground
// resolutions are meters, so a metric source wins, then a metric working
// system, and web mercator otherwise.
func MeterCRS(source, working CRS) CRS {
	switch {
	case source.IsMetric():
		return source
	case working.IsMetric():
		return working
	default:
		return WebMercator
	}
}
