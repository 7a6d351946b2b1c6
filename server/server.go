// Package server exposes one editing session over HTTP: a grid, the working
// coordinate system, the configured source and at most one running export.
package server

import (
	"sync"

	"GpkgTiler/crs"
	"GpkgTiler/export"
	"GpkgTiler/gpkg"
	"GpkgTiler/grid"
	"GpkgTiler/source"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

//Options session defaults
type Options struct {
	Source            source.Provider
	Working           crs.CRS
	Target            crs.CRS
	Output            string
	DefaultResolution int
	Overviews         bool
	Resampling        gpkg.Resampling
	Container         []gpkg.Option
	EventBuffer       int
	// Handlers returns extra consumers for the events of a started task.
	Handlers func(taskID string) []export.Handler
}

//Session the state a single user edits
type Session struct {
	mu      sync.Mutex
	opts    Options
	working crs.CRS
	grid    *grid.Grid

	task     *export.Task
	finished chan struct{}
	label    string
	percent  float64
	result   *export.Result
}

func NewSession(opts Options) *Session {
	if opts.DefaultResolution < 1 {
		opts.DefaultResolution = 5
	}
	if opts.Working.Code == 0 {
		opts.Working = crs.WebMercator
	}
	if opts.Target.Code == 0 {
		opts.Target = opts.Working
	}
	return &Session{opts: opts, working: opts.Working}
}

// Router wires the session routes onto a new gin engine.
func (s *Session) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	g := r.Group("/grid")
	g.POST("", s.buildGrid)
	g.GET("", s.getGrid)
	g.DELETE("", s.clearGrid)
	g.POST("/extent", s.gridFromExtent)
	g.POST("/edit", s.editGrid)
	g.POST("/crs", s.setCRS)

	r.POST("/export", s.startExport)
	r.GET("/export", s.getExport)
	r.DELETE("/export", s.abortExport)
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Debugf("%s %s %d", c.Request.Method, c.Request.URL.Path, c.Writer.Status())
	}
}

// Wait blocks until the current export, if any, has finished.
func (s *Session) Wait() *export.Result {
	s.mu.Lock()
	finished := s.finished
	s.mu.Unlock()
	if finished == nil {
		return nil
	}
	<-finished
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}
