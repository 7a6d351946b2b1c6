package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"GpkgTiler/crs"
	"GpkgTiler/export"
	"GpkgTiler/grid"
	"GpkgTiler/source"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"
)

type gridRequest struct {
	Extent     [4]float64 `json:"extent"`
	CRS        string     `json:"crs"`
	Rows       int        `json:"rows" binding:"required"`
	Cols       int        `json:"cols" binding:"required"`
	Resolution int        `json:"resolution"`
}

type editRequest struct {
	Mode       string  `json:"mode"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Resolution int     `json:"resolution"`
	ApplyAll   bool    `json:"apply_all"`
}

type crsRequest struct {
	CRS string `json:"crs" binding:"required"`
}

type exportRequest struct {
	Output    string `json:"output"`
	Target    string `json:"target"`
	Overviews *bool  `json:"overviews"`
}

type cellView struct {
	Index      int        `json:"index"`
	Table      string     `json:"table"`
	Bound      [4]float64 `json:"bound"`
	Resolution int        `json:"resolution"`
	Label      string     `json:"label"`
}

type tileView struct {
	Table    string     `json:"table"`
	Bound    [4]float64 `json:"bound"`
	Cols     int        `json:"cols"`
	Rows     int        `json:"rows"`
	Error    string     `json:"error,omitempty"`
	Overview string     `json:"overview_error,omitempty"`
}

func toBound(b [4]float64) orb.Bound {
	return orb.Bound{Min: orb.Point{b[0], b[1]}, Max: orb.Point{b[2], b[3]}}
}

func fromBound(b orb.Bound) [4]float64 {
	return [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
}

func abort(c *gin.Context, code int, err error) {
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

func gridStatus(err error) int {
	switch {
	case errors.Is(err, grid.ErrOutside), errors.Is(err, grid.ErrNoCell):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

// gridView must be called with s.mu held.
func (s *Session) gridView() gin.H {
	cells := s.grid.Cells()
	views := make([]cellView, len(cells))
	for i, cell := range cells {
		views[i] = cellView{
			Index:      i,
			Table:      export.TableName(i),
			Bound:      fromBound(cell.Bound),
			Resolution: cell.Resolution,
			Label:      cell.Label(),
		}
	}
	rows, cols := s.grid.Dims()
	return gin.H{
		"crs":    s.working.String(),
		"extent": fromBound(s.grid.Extent()),
		"rows":   rows,
		"cols":   cols,
		"label":  s.grid.ProgressLabel(),
		"cells":  views,
	}
}

func (s *Session) newGrid(extent orb.Bound, req gridRequest) error {
	res := req.Resolution
	if res == 0 {
		res = s.opts.DefaultResolution
	}
	g, err := grid.New(extent, req.Rows, req.Cols, res)
	if err != nil {
		return err
	}
	s.grid = g
	return nil
}

func (s *Session) buildGrid(c *gin.Context) {
	var req gridRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.newGrid(toBound(req.Extent), req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusCreated, s.gridView())
}

// gridFromExtent builds the grid over a bound given in another system, the
// way an extent is taken from a layer.
func (s *Session) gridFromExtent(c *gin.Context) {
	var req gridRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	from, err := crs.Parse(req.CRS)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := crs.NewTransform(from, s.working)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if err := s.newGrid(t.Bound(toBound(req.Extent)), req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusCreated, s.gridView())
}

func (s *Session) getGrid(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grid == nil {
		abort(c, http.StatusNotFound, errors.New("no grid"))
		return
	}
	c.JSON(http.StatusOK, s.gridView())
}

func (s *Session) clearGrid(c *gin.Context) {
	s.mu.Lock()
	s.grid = nil
	s.mu.Unlock()
	c.Status(http.StatusNoContent)
}

func (s *Session) editGrid(c *gin.Context) {
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	mode, err := grid.ParseMode(req.Mode)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grid == nil {
		abort(c, http.StatusNotFound, errors.New("no grid"))
		return
	}
	tool := grid.Tool{Mode: mode}
	cell, err := tool.Apply(s.grid, grid.Edit{Point: orb.Point{req.X, req.Y}, Resolution: req.Resolution, ApplyAll: req.ApplyAll})
	if err != nil {
		abort(c, gridStatus(err), err)
		return
	}
	view := s.gridView()
	view["edited"] = cellView{Bound: fromBound(cell.Bound), Resolution: cell.Resolution, Label: cell.Label()}
	c.JSON(http.StatusOK, view)
}

func (s *Session) setCRS(c *gin.Context) {
	var req crsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	to, err := crs.Parse(req.CRS)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := crs.NewTransform(s.working, to)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if s.grid != nil {
		s.grid.Reproject(t)
	}
	s.working = to
	log.Infof("working crs changed to %s", to)
	c.JSON(http.StatusOK, gin.H{"crs": to.String()})
}

// running must be called with s.mu held.
func (s *Session) running() bool {
	if s.finished == nil {
		return false
	}
	select {
	case <-s.finished:
		return false
	default:
		return true
	}
}

func (s *Session) startExport(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abort(c, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running() {
		abort(c, http.StatusConflict, errors.New("an export is already running"))
		return
	}
	if s.grid == nil || s.grid.Len() == 0 {
		abort(c, http.StatusBadRequest, errors.New("grid has no cells"))
		return
	}
	output := s.opts.Output
	if req.Output != "" {
		output = req.Output
	}
	target := s.opts.Target
	if req.Target != "" {
		t, err := crs.Parse(req.Target)
		if err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}
		target = t
	}
	overviews := s.opts.Overviews
	if req.Overviews != nil {
		overviews = *req.Overviews
	}
	er, err := export.NewRequest(s.opts.Source, s.grid, output, s.working, target, overviews)
	if err != nil {
		code := http.StatusBadRequest
		if !errors.Is(err, source.ErrIneligible) && !errors.Is(err, export.ErrOutput) && !errors.Is(err, crs.ErrUnknown) {
			code = http.StatusInternalServerError
		}
		abort(c, code, err)
		return
	}
	er.Resampling = s.opts.Resampling
	er.Container = s.opts.Container

	task := export.NewTask(er, s.opts.EventBuffer)
	handlers := []export.Handler{s.track}
	if s.opts.Handlers != nil {
		handlers = append(handlers, s.opts.Handlers(task.ID)...)
	}
	finished := make(chan struct{})
	s.task, s.finished = task, finished
	s.label, s.percent, s.result = s.grid.ProgressLabel(), 0, nil
	// the export outlives the request
	if err := task.Start(context.Background()); err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	go func() {
		export.Drain(task.Events(), handlers...)
		close(finished)
	}()
	c.JSON(http.StatusAccepted, gin.H{"task": task.ID, "label": s.label, "total": task.Total()})
}

// track mirrors task events into the session.
func (s *Session) track(ev export.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Kind {
	case export.EventCurrent:
		s.label = ev.Label
	case export.EventProgress:
		s.percent = ev.Percent
	case export.EventDone:
		s.result = ev.Result
		s.label = "0/0"
		if s.grid != nil {
			s.label = s.grid.ProgressLabel()
		}
	}
}

// abortExport stops the running export before its next tile.
func (s *Session) abortExport(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running() {
		abort(c, http.StatusNotFound, errors.New("no export running"))
		return
	}
	s.task.Abort()
	log.Infof("export %s aborted", s.task.ID)
	c.JSON(http.StatusAccepted, gin.H{"task": s.task.ID, "state": s.task.State()})
}

func (s *Session) getExport(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.task == nil {
		abort(c, http.StatusNotFound, errors.New("no export started"))
		return
	}
	body := gin.H{
		"task":    s.task.ID,
		"state":   s.task.State(),
		"label":   s.label,
		"percent": s.percent,
	}
	if s.result != nil {
		tiles := make([]tileView, len(s.result.Tiles))
		for i, t := range s.result.Tiles {
			tiles[i] = tileView{Table: t.Table, Bound: fromBound(t.Bound), Cols: t.Cols, Rows: t.Rows}
			if t.Err != nil {
				tiles[i].Error = t.Err.Error()
			}
			if t.OverviewErr != nil {
				tiles[i].Overview = t.OverviewErr.Error()
			}
		}
		body["status"] = s.result.Status
		body["success"] = s.result.Success()
		body["tiles"] = tiles
	}
	c.JSON(http.StatusOK, body)
}
