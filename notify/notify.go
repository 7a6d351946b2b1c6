// Package notify fans export events out through redis: every event is
// published on a per-task channel and failed tiles are kept in a per-task
// hash so they can be listed after the run.
package notify

import (
	"encoding/json"
	"time"

	"GpkgTiler/export"

	"github.com/gomodule/redigo/redis"
	log "github.com/sirupsen/logrus"
)

const failListPrefix = "fail_list:"

//Message what gets published for one event
type Message struct {
	Task    string  `json:"task"`
	Kind    string  `json:"kind"`
	Label   string  `json:"label,omitempty"`
	Percent float64 `json:"percent,omitempty"`
	Status  string  `json:"status,omitempty"`
	Failed  int     `json:"failed,omitempty"`
}

//FailedTile one entry of the failure list
type FailedTile struct {
	Table    string     `json:"table"`
	Index    int        `json:"index"`
	Bound    [4]float64 `json:"bound"`
	Res      string     `json:"res"`
	Overview bool       `json:"overview,omitempty"`
}

//Publisher redis backed event sink
type Publisher struct {
	pool    *redis.Pool
	channel string
}

// NewPool dials addr lazily with the pool sizes used for tile tasks.
func NewPool(addr string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     16,
		MaxActive:   32,
		IdleTimeout: 120 * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr)
		},
	}
}

func NewPublisher(pool *redis.Pool, channel string) *Publisher {
	if channel == "" {
		channel = "gpkgtiler"
	}
	return &Publisher{pool: pool, channel: channel}
}

func (p *Publisher) Channel(taskID string) string {
	return p.channel + ":" + taskID
}

// Handler returns an export.Handler that publishes the events of taskID.
// Redis errors are logged and never reach the export.
func (p *Publisher) Handler(taskID string) export.Handler {
	return func(ev export.Event) {
		msg := Message{Task: taskID, Kind: ev.Kind.String(), Label: ev.Label, Percent: ev.Percent}
		if ev.Kind == export.EventDone && ev.Result != nil {
			msg.Status = ev.Result.Status.String()
			failed := ev.Result.Failed()
			msg.Failed = len(failed)
			p.saveFailed(taskID, failed)
		}
		p.publish(taskID, msg)
	}
}

func (p *Publisher) publish(taskID string, msg Message) {
	conn := p.pool.Get()
	defer closeConn(conn)
	val, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("marshal %s event error ~ %s", msg.Kind, err)
		return
	}
	if _, err := conn.Do("PUBLISH", p.Channel(taskID), val); err != nil {
		log.Errorf("redis publish failure ~ %s", err)
	}
}

func (p *Publisher) saveFailed(taskID string, tiles []export.TileResult) {
	if len(tiles) == 0 {
		return
	}
	conn := p.pool.Get()
	defer closeConn(conn)
	for _, t := range tiles {
		ft := FailedTile{
			Table: t.Table,
			Index: t.Index,
			Bound: [4]float64{t.Bound.Min[0], t.Bound.Min[1], t.Bound.Max[0], t.Bound.Max[1]},
		}
		if t.Err != nil {
			ft.Res = t.Err.Error()
		} else {
			ft.Res = t.OverviewErr.Error()
			ft.Overview = true
		}
		val, _ := json.Marshal(ft)
		if _, err := conn.Do("HSET", failListPrefix+taskID, t.Table, val); err != nil {
			log.Errorf("redis save tile failure ~ %s", err)
		}
	}
}

// Failures reads back the failure list of taskID keyed by table name.
func (p *Publisher) Failures(taskID string) (map[string]FailedTile, error) {
	conn := p.pool.Get()
	defer closeConn(conn)
	all, err := redis.StringMap(conn.Do("HGETALL", failListPrefix+taskID))
	if err != nil {
		return nil, err
	}
	out := make(map[string]FailedTile, len(all))
	for k, v := range all {
		var ft FailedTile
		if err := json.Unmarshal([]byte(v), &ft); err != nil {
			continue
		}
		out[k] = ft
	}
	return out, nil
}

// Clean drops the failure list of taskID.
func (p *Publisher) Clean(taskID string) error {
	conn := p.pool.Get()
	defer closeConn(conn)
	_, err := conn.Do("DEL", failListPrefix+taskID)
	return err
}

func (p *Publisher) Close() error {
	return p.pool.Close()
}

func closeConn(conn redis.Conn) {
	if err := conn.Close(); err != nil {
		log.Errorf("redis connection close failure ~ %s", err)
	}
}
