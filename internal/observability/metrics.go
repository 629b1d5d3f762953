package observability

import (
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/yungbote/genflow-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests   *CounterVec
	apiLatency    *HistogramVec
	apiInflight   *Gauge
	transitions   *CounterVec
	refunds       *CounterVec
	admissions    *CounterVec
	engineCalls   *CounterVec
	engineLatency *HistogramVec
	sweeps        *CounterVec
	sweptRows     *CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Current returns the process-wide metrics, or nil when metrics are off.
// Every method is nil-safe.
func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger, enabled bool) *Metrics {
	if !enabled {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

func New() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("genflow_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"genflow_api_request_duration_seconds",
			"API request latency in seconds by method/route.",
			[]string{"method", "route"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		),
		apiInflight: NewGauge("genflow_api_inflight_requests", "In-flight API requests."),
		transitions: NewCounterVec("genflow_generation_transitions_total", "Terminal generation transitions by status/source.", []string{"status", "source"}),
		refunds:     NewCounterVec("genflow_credit_refunds_total", "Credits refunded by terminal status.", []string{"status"}),
		admissions:  NewCounterVec("genflow_admissions_total", "Start attempts by outcome.", []string{"outcome"}),
		engineCalls: NewCounterVec("genflow_engine_calls_total", "Flow engine calls by operation/outcome.", []string{"operation", "outcome"}),
		engineLatency: NewHistogramVec(
			"genflow_engine_call_duration_seconds",
			"Flow engine call latency in seconds by operation.",
			[]string{"operation"},
			[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		),
		sweeps:    NewCounterVec("genflow_sweeps_total", "Sweeper runs by kind.", []string{"kind"}),
		sweptRows: NewCounterVec("genflow_swept_generations_total", "Generations finished by sweeps, by kind.", []string{"kind"}),
	}
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.transitions, m.refunds, m.admissions,
		m.engineCalls, m.engineLatency,
		m.sweeps, m.sweptRows,
	}
	for _, mw := range writers {
		if err := mw.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.Inc(method, route, strconv.Itoa(status))
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

func (m *Metrics) APIInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) APIInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveTransition(status, source string, refunded int64) {
	if m == nil {
		return
	}
	m.transitions.Inc(status, source)
	if refunded > 0 {
		m.refunds.Add(float64(refunded), status)
	}
}

// ObserveAdmission records "admitted", "limit_reached" or "insufficient_balance".
func (m *Metrics) ObserveAdmission(outcome string) {
	if m == nil {
		return
	}
	m.admissions.Inc(outcome)
}

func (m *Metrics) ObserveEngineCall(operation, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.engineCalls.Inc(operation, outcome)
	m.engineLatency.Observe(dur.Seconds(), operation)
}

func (m *Metrics) ObserveSweep(kind string, finished int) {
	if m == nil {
		return
	}
	m.sweeps.Inc(kind)
	if finished > 0 {
		m.sweptRows.Add(float64(finished), kind)
	}
}

func (m *Metrics) TransitionCount(status, source string) float64 {
	if m == nil {
		return 0
	}
	return m.transitions.Value(status, source)
}
