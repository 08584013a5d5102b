package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns the gateway's collectors. Each Registry registers into its
// own prometheus registry so several can coexist in one process.
type Registry struct {
	reg *prometheus.Registry

	Requests         prometheus.Counter
	RecordsEmitted   prometheus.Counter
	CaptureErrors    prometheus.Counter
	DispatchErrors   *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
}

func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		Requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total requests received",
		}),
		RecordsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dump_records_total",
			Help: "Exchange records serialized and handed to the sinks",
		}),
		CaptureErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dump_capture_errors_total",
			Help: "Exchanges whose request phase could not be captured",
		}),
		DispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dump_dispatch_errors_total",
			Help: "Failed record deliveries by sink",
		}, []string{"sink"}),
		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dump_dispatch_duration_seconds",
			Help:    "Time spent delivering one record to a sink",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"sink"}),
	}
	r.reg.MustRegister(
		r.Requests,
		r.RecordsEmitted,
		r.CaptureErrors,
		r.DispatchErrors,
		r.DispatchDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
