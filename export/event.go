package export

import (
	"fmt"

	"github.com/paulmach/orb"
)

type Status int

const (
	AllOk Status = iota
	PartialFailure
	NoTilesWritten
)

func (s Status) String() string {
	switch s {
	case AllOk:
		return "all_ok"
	case PartialFailure:
		return "partial_failure"
	default:
		return "no_tiles_written"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

//TileResult outcome of one cell
type TileResult struct {
	Index       int
	Table       string
	Bound       orb.Bound
	Cols        int
	Rows        int
	Err         error
	OverviewErr error
}

func (r TileResult) Written() bool { return r.Err == nil }

//Result outcome of a whole export
type Result struct {
	TaskID string
	Tiles  []TileResult
	Status Status
}

// Success is true only when every tile and every requested pyramid was
// written.
func (r Result) Success() bool { return r.Status == AllOk }

func (r Result) Failed() []TileResult {
	var out []TileResult
	for _, t := range r.Tiles {
		if t.Err != nil || t.OverviewErr != nil {
			out = append(out, t)
		}
	}
	return out
}

func aggregate(tiles []TileResult) Status {
	written, clean := 0, 0
	for _, t := range tiles {
		if t.Err == nil {
			written++
			if t.OverviewErr == nil {
				clean++
			}
		}
	}
	switch {
	case written == 0:
		return NoTilesWritten
	case clean == len(tiles):
		return AllOk
	default:
		return PartialFailure
	}
}

type EventKind int

const (
	EventCurrent EventKind = iota
	EventProgress
	EventDone
)

func (k EventKind) String() string {
	switch k {
	case EventCurrent:
		return "current"
	case EventProgress:
		return "progress"
	default:
		return "done"
	}
}

func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

//Event asynchronous notification from a running task
type Event struct {
	Kind    EventKind `json:"kind"`
	Label   string    `json:"label,omitempty"`
	Percent float64   `json:"percent,omitempty"`
	Result  *Result   `json:"-"`
}

func currentLabel(done, total int) string {
	return fmt.Sprintf("%d/%d", done, total)
}

type Handler func(Event)

// Drain feeds every event to each handler in order until the channel closes
// and returns the final result, or nil if the task never finished.
func Drain(events <-chan Event, handlers ...Handler) *Result {
	var res *Result
	for ev := range events {
		for _, h := range handlers {
			h(ev)
		}
		if ev.Kind == EventDone {
			res = ev.Result
		}
	}
	return res
}
