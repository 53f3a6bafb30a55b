// Package metrics exposes acquisition counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const namespace = "icm42688p"

// Collector groups the acquisition metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	events      *prometheus.CounterVec
	records     prometheus.Counter
	failures    *prometheus.CounterVec
	batchSize   prometheus.Histogram
	temperature prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edge_events_total",
			Help:      "Edge events read from the interrupt line.",
		}, []string{"edge"}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Acquisition records emitted.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Fatal errors by stage.",
		}, []string{"stage"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of edge events returned per read.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
		}),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Die temperature of the last sample.",
		}),
	}
	reg.MustRegister(c.events, c.records, c.failures, c.batchSize, c.temperature)
	return c
}

// Batch records one read of n events.
func (c *Collector) Batch(n int) {
	if c == nil {
		return
	}
	c.batchSize.Observe(float64(n))
}

// Record counts one emitted record with its edge label and temperature.
func (c *Collector) Record(edge string, temperatureC float64) {
	if c == nil {
		return
	}
	c.events.WithLabelValues(edge).Inc()
	c.records.Inc()
	c.temperature.Set(temperatureC)
}

// Failure counts a fatal error in stage ("read", "measure", "publish").
func (c *Collector) Failure(stage string) {
	if c == nil {
		return
	}
	c.failures.WithLabelValues(stage).Inc()
}

// Serve exposes g on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
