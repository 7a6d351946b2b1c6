// Package gpkg writes raster tile pyramids into a GeoPackage file, one user
// table per raster.
package gpkg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"GpkgTiler/crs"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

const (
	// ApplicationID is "GPKG" as a big-endian int32.
	ApplicationID = 0x47504B47
	UserVersion   = 10200
)

var (
	ErrTableExists    = errors.New("raster table already exists")
	ErrTableName      = errors.New("invalid raster table name")
	ErrNoTable        = errors.New("raster table not found")
	ErrOverviewsExist = errors.New("raster table already has overviews")
	ErrFactors        = errors.New("overview factors must be distinct integers above 1")
	ErrFormat         = errors.New("unsupported tile format")
	ErrNotGeoPackage  = errors.New("not a GeoPackage")
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var schema = []string{
	`create table if not exists gpkg_spatial_ref_sys (
		srs_name text not null,
		srs_id integer not null primary key,
		organization text not null,
		organization_coordsys_id integer not null,
		definition text not null,
		description text);`,
	`create table if not exists gpkg_contents (
		table_name text not null primary key,
		data_type text not null,
		identifier text unique,
		description text default '',
		last_change datetime not null default (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		min_x double, min_y double, max_x double, max_y double,
		srs_id integer,
		constraint fk_gc_r_srs_id foreign key (srs_id) references gpkg_spatial_ref_sys(srs_id));`,
	`create table if not exists gpkg_tile_matrix_set (
		table_name text not null primary key,
		srs_id integer not null,
		min_x double not null, min_y double not null, max_x double not null, max_y double not null,
		constraint fk_gtms_table_name foreign key (table_name) references gpkg_contents(table_name),
		constraint fk_gtms_srs foreign key (srs_id) references gpkg_spatial_ref_sys (srs_id));`,
	`create table if not exists gpkg_tile_matrix (
		table_name text not null,
		zoom_level integer not null,
		matrix_width integer not null,
		matrix_height integer not null,
		tile_width integer not null,
		tile_height integer not null,
		pixel_x_size double not null,
		pixel_y_size double not null,
		constraint pk_ttm primary key (table_name, zoom_level),
		constraint fk_tmm_table_name foreign key (table_name) references gpkg_contents(table_name));`,
	`create table if not exists gpkg_extensions (
		table_name text,
		column_name text,
		extension_name text not null,
		definition text not null,
		scope text not null,
		constraint ge_tce unique (table_name, column_name, extension_name));`,
}

//Container an open GeoPackage
type Container struct {
	db       *sql.DB
	path     string
	format   string
	tileSize int
	quality  int
	readOnly bool
}

type Option func(*Container)

// WithFormat selects the tile encoding: png, jpeg or webp.
func WithFormat(format string) Option {
	return func(c *Container) { c.format = strings.ToLower(format) }
}

func WithTileSize(size int) Option {
	return func(c *Container) { c.tileSize = size }
}

func WithJPEGQuality(q int) Option {
	return func(c *Container) { c.quality = q }
}

// ReadOnly opens an existing file without creating or changing anything in it.
func ReadOnly() Option {
	return func(c *Container) { c.readOnly = true }
}

// Open creates the file if needed and makes sure the core GeoPackage tables
// exist. Existing raster tables are left untouched.
func Open(path string, opts ...Option) (*Container, error) {
	c := &Container{path: path, format: "png", tileSize: 256, quality: 90}
	for _, o := range opts {
		o(c)
	}
	if c.format == "jpg" {
		c.format = "jpeg"
	}
	switch c.format {
	case "png", "jpeg", "webp":
	default:
		return nil, fmt.Errorf("%w: %s", ErrFormat, c.format)
	}
	if c.tileSize < 16 {
		return nil, fmt.Errorf("tile size %d too small", c.tileSize)
	}
	if c.readOnly {
		return c.openReadOnly()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("%s?_sync=1&_journal_mode=MEMORY&_locking_mode=EXCLUSIVE&_foreign_keys=1", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// the worker owns the file; one connection keeps writes serialized
	db.SetMaxOpenConns(1)
	c.db = db
	if err := c.setup(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) openReadOnly() (*Container, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro&_foreign_keys=1", c.path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	var id int64
	if err := db.QueryRow("PRAGMA application_id").Scan(&id); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open %s: %w", c.path, err)
	}
	if id != ApplicationID {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotGeoPackage, c.path)
	}
	c.db = db
	return c, nil
}

func (c *Container) setup() error {
	if err := optimizeConnection(c.db); err != nil {
		return err
	}
	for _, stmt := range schema {
		if _, err := c.db.Exec(stmt); err != nil {
			return err
		}
	}
	defaults := []struct {
		name, org, def, desc string
		id, orgID           int
	}{
		{"Undefined cartesian SRS", "NONE", "undefined", "undefined cartesian coordinate reference system", -1, -1},
		{"Undefined geographic SRS", "NONE", "undefined", "undefined geographic coordinate reference system", 0, 0},
		{crs.WGS84.Name, "EPSG", crs.WGS84.WKT, "longitude/latitude coordinates in decimal degrees on the WGS 84 spheroid", 4326, 4326},
	}
	for _, d := range defaults {
		_, err := c.db.Exec(`insert or ignore into gpkg_spatial_ref_sys
			(srs_name, srs_id, organization, organization_coordsys_id, definition, description) values (?, ?, ?, ?, ?, ?)`,
			d.name, d.id, d.org, d.orgID, d.def, d.desc)
		if err != nil {
			return err
		}
	}
	return nil
}

func optimizeConnection(db *sql.DB) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA application_id=%d", ApplicationID))
	if err != nil {
		return err
	}
	_, err = db.Exec(fmt.Sprintf("PRAGMA user_version=%d", UserVersion))
	if err != nil {
		return err
	}
	_, err = db.Exec("PRAGMA page_size=4096")
	if err != nil {
		return err
	}
	_, err = db.Exec("PRAGMA cache_size=8000")
	if err != nil {
		return err
	}
	return nil
}

func (c *Container) Path() string   { return c.path }
func (c *Container) Format() string { return c.format }

func (c *Container) Close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// HasTable reports whether name is already used by any table or by a
// gpkg_contents entry.
func (c *Container) HasTable(ctx context.Context, name string) (bool, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `select
		(select count(*) from sqlite_master where type = 'table' and lower(name) = lower(?)) +
		(select count(*) from gpkg_contents where lower(table_name) = lower(?))`, name, name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func checkTableName(name string) error {
	if !tableNameRe.MatchString(name) || strings.HasPrefix(strings.ToLower(name), "gpkg_") ||
		strings.HasPrefix(strings.ToLower(name), "sqlite_") {
		return fmt.Errorf("%w: %q", ErrTableName, name)
	}
	return nil
}

func ensureSRS(ctx context.Context, tx *sql.Tx, c crs.CRS) error {
	_, err := tx.ExecContext(ctx, `insert or ignore into gpkg_spatial_ref_sys
		(srs_name, srs_id, organization, organization_coordsys_id, definition, description) values (?, ?, 'EPSG', ?, ?, ?)`,
		c.Name, c.Code, c.Code, c.WKT, c.String())
	return err
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		log.Errorf("rollback gpkg transaction error ~ %s", err)
	}
}
