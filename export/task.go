package export

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"GpkgTiler/gpkg"
	"GpkgTiler/source"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type State int32

const (
	Initialize State = iota
	Running
	Ending
	Aborting
	Terminated
)

func (s State) String() string {
	return [...]string{"initialize", "running", "ending", "aborting", "terminated"}[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var ErrStarted = errors.New("export task already started")

// DefaultEventBuffer is used when NewTask is given a non-positive buffer.
const DefaultEventBuffer = 64

//Task one export run
type Task struct {
	ID     string
	req    *Request
	events chan Event
	signal atomic.Int32
	once   sync.Once
	done   chan struct{}
	cancel context.CancelFunc
	result Result
	log    *log.Entry
}

//NewTask creates an export task for req
func NewTask(req *Request, buffer int) *Task {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	id := uuid.New().String()
	return &Task{
		ID:     id,
		req:    req,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
		log:    log.WithField("task", id),
	}
}

// Events delivers progress labels, read percentages and the final result.
// The channel is closed after the done event. Percent events are dropped
// while the buffer is full; labels and the result are not, so a consumer
// must keep draining until close.
func (task *Task) Events() <-chan Event { return task.events }

func (task *Task) State() State { return State(task.signal.Load()) }

// Total is the number of tables the task will try to write.
func (task *Task) Total() int { return len(task.req.Cells) }

// Start runs the export on one background goroutine.
func (task *Task) Start(ctx context.Context) error {
	started := false
	task.once.Do(func() {
		started = true
		ctx, task.cancel = context.WithCancel(ctx)
		go task.run(ctx)
	})
	if !started {
		return ErrStarted
	}
	return nil
}

// Run executes the export on the calling goroutine and returns its result.
func (task *Task) Run(ctx context.Context) (Result, error) {
	started := false
	task.once.Do(func() {
		started = true
		ctx, task.cancel = context.WithCancel(ctx)
		task.run(ctx)
	})
	if !started {
		return Result{}, ErrStarted
	}
	return task.result, nil
}

// Abort stops the task before its next tile. Tables already written stay in
// the container.
func (task *Task) Abort() {
	if task.State() >= Ending || task.cancel == nil {
		return
	}
	task.signal.Store(int32(Aborting))
	task.cancel()
}

// Wait blocks until the task has finished.
func (task *Task) Wait() Result {
	<-task.done
	return task.result
}

// Done is closed once the result is available.
func (task *Task) Done() <-chan struct{} { return task.done }

func (task *Task) run(ctx context.Context) {
	defer task.cancel()
	task.signal.CompareAndSwap(int32(Initialize), int32(Running))
	task.finish(ctx, task.exportAll(ctx))
}

// exportAll walks the cells in order. The container is closed before it
// returns so the file is complete once the result is announced.
func (task *Task) exportAll(ctx context.Context) []TileResult {
	req := task.req
	total := len(req.Cells)
	tiles := make([]TileResult, total)
	task.log.Infof("export %d tiles from %s to %s (%s)", total, req.Source.Name(), req.Output, req.Target)

	c, err := gpkg.Open(req.Output, req.Container...)
	if err != nil {
		task.log.Errorf("open %s error ~ %s", req.Output, err)
		for i := range tiles {
			tiles[i] = task.failed(i, fmt.Errorf("open output: %w", err))
		}
		return tiles
	}
	defer func() {
		if err := c.Close(); err != nil {
			task.log.Errorf("close %s error ~ %s", req.Output, err)
		}
	}()

	for i := range req.Cells {
		if err := ctx.Err(); err != nil {
			task.signal.Store(int32(Aborting))
			task.log.Infof("task %s got canceled at %d/%d", task.ID, i, total)
			for j := i; j < total; j++ {
				tiles[j] = task.failed(j, err)
			}
			break
		}
		tiles[i] = task.exportTile(ctx, c, i)
		task.emit(ctx, Event{Kind: EventCurrent, Label: currentLabel(i+1, total)})
	}
	return tiles
}

func (task *Task) failed(i int, err error) TileResult {
	return TileResult{Index: i, Table: TableName(i), Err: err}
}

// exportTile sizes, reads, writes and optionally pyramids one cell. Failures
// are recorded in the result and never stop the run.
func (task *Task) exportTile(ctx context.Context, c *gpkg.Container, i int) TileResult {
	req := task.req
	cell := req.Cells[i]
	res := TileResult{Index: i, Table: TableName(i)}

	srcBound := req.toSource.Bound(cell.Bound)
	res.Cols, res.Rows = PixelDims(req.toMeter.Bound(cell.Bound), cell.Resolution)
	res.Bound = req.toTarget.Bound(cell.Bound)
	task.log.Debugf("%s source %v target %v %dx%d at %dm", res.Table, srcBound, res.Bound, res.Cols, res.Rows, cell.Resolution)

	p, err := source.NewProjector(req.Source, req.Target)
	if err != nil {
		res.Err = err
		return res
	}
	img, err := p.ReadWindow(ctx, srcBound, res.Bound, res.Cols, res.Rows, func(pct float64) {
		task.offer(Event{Kind: EventProgress, Percent: pct})
	})
	if err != nil {
		task.log.Errorf("read %s error ~ %s", res.Table, err)
		res.Err = fmt.Errorf("read: %w", err)
		return res
	}
	if err := c.WriteRaster(ctx, res.Table, img, res.Bound, req.Target); err != nil {
		task.log.Errorf("write %s error ~ %s", res.Table, err)
		res.Err = fmt.Errorf("write: %w", err)
		return res
	}
	if req.Overviews {
		if err := c.BuildOverviews(ctx, res.Table, OverviewFactors, req.Resampling); err != nil {
			task.log.Warnf("overviews %s error ~ %s", res.Table, err)
			res.OverviewErr = err
		}
	}
	return res
}

func (task *Task) finish(ctx context.Context, tiles []TileResult) {
	task.signal.CompareAndSwap(int32(Running), int32(Ending))
	task.result = Result{TaskID: task.ID, Tiles: tiles, Status: aggregate(tiles)}
	task.log.Infof("task %s finished, %s ~", task.ID, task.result.Status)
	res := task.result
	// the final event must get through even after cancellation
	task.emit(context.WithoutCancel(ctx), Event{Kind: EventDone, Label: currentLabel(written(tiles), len(tiles)), Result: &res})
	task.signal.Store(int32(Terminated))
	close(task.events)
	close(task.done)
}

func written(tiles []TileResult) int {
	n := 0
	for _, t := range tiles {
		if t.Written() {
			n++
		}
	}
	return n
}

func (task *Task) emit(ctx context.Context, ev Event) {
	select {
	case task.events <- ev:
	case <-ctx.Done():
	}
}

func (task *Task) offer(ev Event) {
	select {
	case task.events <- ev:
	default:
	}
}
