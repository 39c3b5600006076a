package stats

import (
	"encoding/json"
	"expvar"
	"net/http"
	"time"
)

const varsName = "gonotify-stats"

const (
	SyncRequests      = "SyncRequests"
	FullSyncs         = "FullSyncs"
	DeletionsDetected = "MembershipDeletionsDetected"
	MessagePages      = "MessagePages"
	ReadAcks          = "ReadAcks"
	MessagesCreated   = "MessagesCreated"
	MessagesEdited    = "MessagesEdited"
	MessagesDeleted   = "MessagesDeleted"
	ChannelsCreated   = "ChannelsCreated"
	ChannelsDeleted   = "ChannelsDeleted"
	SmsDispatchFailed = "SmsDispatchFailures"
	TxAborted         = "AbortedTransactions"
	HintsPublished    = "SyncHintsPublished"
	ActiveConnections = "ActiveConnections"
)

var defaultMetrics = []string{
	SyncRequests,
	FullSyncs,
	DeletionsDetected,
	MessagePages,
	ReadAcks,
	MessagesCreated,
	MessagesEdited,
	MessagesDeleted,
	ChannelsCreated,
	ChannelsDeleted,
	SmsDispatchFailed,
	TxAborted,
	HintsPublished,
	ActiveConnections,
}

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
	Run()
}

type StatsUpdater struct {
	vars       *expvar.Map
	updateChan chan *metricsUpdateReq
}

type metricsUpdateReq struct {
	name  string
	value int
}

func (su *StatsUpdater) expvarHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	expvarData := make(map[string]any)
	su.vars.Do(func(kv expvar.KeyValue) {
		var value any
		json.Unmarshal([]byte(kv.Value.String()), &value)
		expvarData[kv.Key] = value
	})

	json.NewEncoder(w).Encode(expvarData)
}

// NewStatsUpdater publishes the gonotify-stats map and serves it on
// /debug/vars. The map is process wide; later calls reuse it.
func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		updateChan: make(chan *metricsUpdateReq, 512),
	}
	mux.Handle("GET /debug/vars", http.HandlerFunc(su.expvarHandler))
	if v, ok := expvar.Get(varsName).(*expvar.Map); ok {
		su.vars = v
	} else {
		su.vars = expvar.NewMap(varsName)
	}
	su.initializeMetrics()

	return su
}

func (su *StatsUpdater) initializeMetrics() {
	startTime := time.Now()
	su.vars.Set("Uptime", expvar.Func(func() any {
		return time.Since(startTime).Milliseconds()
	}))
	for _, name := range defaultMetrics {
		su.RegisterMetric(name)
	}
}

func (su *StatsUpdater) updateMetrics() {
	for req := range su.updateChan {
		metric, ok := su.vars.Get(req.name).(*expvar.Int)
		if !ok {
			metric = new(expvar.Int)
			su.vars.Set(req.name, metric)
		}

		metric.Add(int64(req.value))
	}
}

func (su *StatsUpdater) Incr(name string) {
	su.updateChan <- &metricsUpdateReq{name: name, value: 1}
}

func (su *StatsUpdater) Decr(name string) {
	su.updateChan <- &metricsUpdateReq{name: name, value: -1}
}

func (su *StatsUpdater) RegisterMetric(name string) {
	su.vars.Set(name, new(expvar.Int))
}

// Value returns the current value of a counter, or zero if it is unknown.
func (su *StatsUpdater) Value(name string) int64 {
	if metric, ok := su.vars.Get(name).(*expvar.Int); ok {
		return metric.Value()
	}
	return 0
}

func (su *StatsUpdater) Run() {
	go su.updateMetrics()
}

func (su *StatsUpdater) Stop() {
	close(su.updateChan)
}
