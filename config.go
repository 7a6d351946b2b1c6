package main

import (
	"fmt"
	"os"
	"time"

	"GpkgTiler/crs"
	"GpkgTiler/export"
	"GpkgTiler/gpkg"
	"GpkgTiler/grid"
	"GpkgTiler/source"

	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type logConf struct {
	Level string
	File  string
}

type outputConf struct {
	Path        string
	Format      string
	TileSize    int `mapstructure:"tile_size"`
	JPEGQuality int `mapstructure:"jpeg_quality"`
}

type editConf struct {
	Mode       string
	X, Y       float64
	Resolution int
	ApplyAll   bool `mapstructure:"apply_all"`
}

type gridConf struct {
	Extent            []float64
	GeoJSON           string `mapstructure:"geojson"`
	GeoJSONCRS        string `mapstructure:"geojson_crs"`
	Rows              int
	Cols              int
	DefaultResolution int `mapstructure:"default_resolution"`
	Edits             []editConf
}

type crsConf struct {
	Working string
	Target  string
}

type sourceConf struct {
	Name      string
	URL       string
	MinZoom   int `mapstructure:"min_zoom"`
	MaxZoom   int `mapstructure:"max_zoom"`
	Workers   int
	CacheSize int `mapstructure:"cache_size"`
	Timeout   time.Duration
	UserAgent string `mapstructure:"user_agent"`
}

type exportConf struct {
	Overviews   bool
	Resampling  string
	EventBuffer int `mapstructure:"event_buffer"`
}

type redisConf struct {
	Addr    string
	Channel string
}

type serverConf struct {
	Addr string
}

//Config everything read from conf.toml
type Config struct {
	Log    logConf
	Output outputConf
	Grid   gridConf
	CRS    crsConf
	Source sourceConf
	Export exportConf
	Redis  redisConf
	Server serverConf
}

var conf Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.file", "gpkgtiler.log")
	v.SetDefault("output.path", "output/tiles.gpkg")
	v.SetDefault("output.format", "png")
	v.SetDefault("output.tile_size", 256)
	v.SetDefault("output.jpeg_quality", 90)
	v.SetDefault("grid.rows", 1)
	v.SetDefault("grid.cols", 1)
	v.SetDefault("grid.default_resolution", 5)
	v.SetDefault("grid.geojson_crs", "EPSG:4326")
	v.SetDefault("crs.working", "EPSG:3857")
	v.SetDefault("crs.target", "")
	v.SetDefault("source.name", "basemap")
	v.SetDefault("source.min_zoom", 0)
	v.SetDefault("source.max_zoom", 19)
	v.SetDefault("source.workers", 4)
	v.SetDefault("source.cache_size", 512)
	v.SetDefault("source.timeout", "1m")
	v.SetDefault("source.user_agent", version)
	v.SetDefault("export.overviews", false)
	v.SetDefault("export.resampling", "nearest")
	v.SetDefault("export.event_buffer", export.DefaultEventBuffer)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.channel", "gpkgtiler")
	v.SetDefault("server.addr", ":8080")
}

// loadConfig reads cfgFile into a Config. A missing file only leaves the
// defaults in place.
func loadConfig(v *viper.Viper, cfgFile string) (Config, error) {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		log.Warnf("config file(%s) not exist", cfgFile)
	} else {
		v.SetConfigType("toml")
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file(%s) error: %w", v.ConfigFileUsed(), err)
		}
	}
	v.AutomaticEnv()
	setDefaults(v)
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}

//initConf loads the global config
func initConf(cfgFile string) {
	c, err := loadConfig(viper.GetViper(), cfgFile)
	if err != nil {
		log.Warnf("%s, using defaults", err)
		setDefaults(viper.GetViper())
		_ = viper.Unmarshal(&c)
	}
	conf = c
}

func (c Config) systems() (working, target crs.CRS, err error) {
	if working, err = crs.Parse(c.CRS.Working); err != nil {
		return
	}
	target = working
	if c.CRS.Target != "" {
		target, err = crs.Parse(c.CRS.Target)
	}
	return
}

func (c Config) containerOptions() []gpkg.Option {
	return []gpkg.Option{
		gpkg.WithFormat(c.Output.Format),
		gpkg.WithTileSize(c.Output.TileSize),
		gpkg.WithJPEGQuality(c.Output.JPEGQuality),
	}
}

func (c Config) newSource() (*source.WebTiles, error) {
	return source.NewWebTiles(source.WebTilesOptions{
		Name:      c.Source.Name,
		URL:       c.Source.URL,
		MinZoom:   c.Source.MinZoom,
		MaxZoom:   c.Source.MaxZoom,
		Workers:   c.Source.Workers,
		CacheSize: c.Source.CacheSize,
		Timeout:   c.Source.Timeout,
		UserAgent: c.Source.UserAgent,
	})
}

// extent is the grid extent in the working system, either given directly or
// taken from a GeoJSON layer.
func (c Config) extent(working crs.CRS) (orb.Bound, error) {
	if c.Grid.GeoJSON != "" {
		b, err := grid.LoadExtent(c.Grid.GeoJSON)
		if err != nil {
			return orb.Bound{}, err
		}
		from, err := crs.Parse(c.Grid.GeoJSONCRS)
		if err != nil {
			return orb.Bound{}, err
		}
		t, err := crs.NewTransform(from, working)
		if err != nil {
			return orb.Bound{}, err
		}
		return t.Bound(b), nil
	}
	if len(c.Grid.Extent) != 4 {
		return orb.Bound{}, fmt.Errorf("grid.extent needs 4 numbers [minx, miny, maxx, maxy], got %d", len(c.Grid.Extent))
	}
	e := c.Grid.Extent
	return orb.Bound{Min: orb.Point{e[0], e[1]}, Max: orb.Point{e[2], e[3]}}, nil
}

// buildGrid creates the grid and replays the configured edits on it.
func (c Config) buildGrid(working crs.CRS) (*grid.Grid, error) {
	extent, err := c.extent(working)
	if err != nil {
		return nil, err
	}
	g, err := grid.New(extent, c.Grid.Rows, c.Grid.Cols, c.Grid.DefaultResolution)
	if err != nil {
		return nil, err
	}
	for i, e := range c.Grid.Edits {
		mode, err := grid.ParseMode(e.Mode)
		if err != nil {
			return nil, fmt.Errorf("grid.edits[%d]: %w", i, err)
		}
		tool := grid.Tool{Mode: mode}
		if _, err := tool.Apply(g, grid.Edit{Point: orb.Point{e.X, e.Y}, Resolution: e.Resolution, ApplyAll: e.ApplyAll}); err != nil {
			return nil, fmt.Errorf("grid.edits[%d]: %w", i, err)
		}
	}
	return g, nil
}
