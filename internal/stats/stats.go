package stats

import (
	"encoding/json"
	"expvar"
	"net/http"
	"sync"
	"time"
)

const (
	NumActiveClients = "NumActiveClients"
	NumRooms         = "NumRooms"
	NumMessages      = "NumMessages"
)

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
}

type StatsUpdater struct {
	vars       *expvar.Map
	updateChan chan *metricsUpdateReq
	stopOnce   sync.Once
	quit       chan struct{}
	done       chan struct{}
}

type metricsUpdateReq struct {
	name  string
	value int
}

func (su *StatsUpdater) expvarHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(su.Snapshot())
}

// NewStatsUpdater creates a stats updater and serves its variables on
// GET /debug/vars of mux.
func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		vars:       new(expvar.Map).Init(),
		updateChan: make(chan *metricsUpdateReq, 512),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	if mux != nil {
		mux.Handle("GET /debug/vars", http.HandlerFunc(su.expvarHandler))
	}
	su.initializeMetrics()

	return su
}

func (su *StatsUpdater) initializeMetrics() {
	startTime := time.Now()
	su.vars.Set("Uptime", expvar.Func(func() any {
		return time.Since(startTime).Milliseconds()
	}))
}

// Snapshot decodes every variable into a plain map.
func (su *StatsUpdater) Snapshot() map[string]any {
	data := make(map[string]any)
	su.vars.Do(func(kv expvar.KeyValue) {
		var value any
		json.Unmarshal([]byte(kv.Value.String()), &value)
		data[kv.Key] = value
	})
	return data
}

func (su *StatsUpdater) updateMetrics() {
	defer close(su.done)
	for {
		select {
		case req := <-su.updateChan:
			su.apply(req)
		case <-su.quit:
			for {
				select {
				case req := <-su.updateChan:
					su.apply(req)
				default:
					return
				}
			}
		}
	}
}

func (su *StatsUpdater) apply(req *metricsUpdateReq) {
	metric, ok := su.vars.Get(req.name).(*expvar.Int)
	if !ok {
		panic("metric not found: " + req.name)
	}

	metric.Add(int64(req.value))
}

// Incr and Decr drop the update once Stop has been called.
func (su *StatsUpdater) Incr(name string) {
	su.update(&metricsUpdateReq{name: name, value: 1})
}

func (su *StatsUpdater) Decr(name string) {
	su.update(&metricsUpdateReq{name: name, value: -1})
}

func (su *StatsUpdater) update(req *metricsUpdateReq) {
	select {
	case su.updateChan <- req:
	case <-su.quit:
	}
}

func (su *StatsUpdater) RegisterMetric(name string) {
	su.vars.Set(name, new(expvar.Int))
}

func (su *StatsUpdater) Run() {
	go su.updateMetrics()
}

// Stop drains pending updates and waits for the update loop to exit.
// Run must have been called first.
func (su *StatsUpdater) Stop() {
	su.stopOnce.Do(func() {
		close(su.quit)
		<-su.done
	})
}
