package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticksTotal       *prometheus.CounterVec
	barsStored       *prometheus.CounterVec
	pipelineDepth    prometheus.Gauge
	scanDuration     *prometheus.HistogramVec
	candidatesTotal  *prometheus.CounterVec
	signalsServed    *prometheus.CounterVec
	executionsTotal  *prometheus.CounterVec
	governorState    *prometheus.GaugeVec
	inferenceLatency prometheus.Histogram
	errorsTotal      *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		ticksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vprop_ticks_total",
				Help: "Total ticks received from the market stream",
			},
			[]string{"symbol"},
		),
		barsStored: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vprop_bars_stored_total",
				Help: "Total bars written to the bar store",
			},
			[]string{"symbol", "timeframe", "synthetic"},
		),
		pipelineDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vprop_pipeline_buffer_depth",
				Help: "Ticks waiting in the ingest pipeline buffer",
			},
		),
		scanDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vprop_scan_duration_seconds",
				Help:    "Duration of one (symbol, timeframe) alpha scan",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"symbol", "timeframe"},
		),
		candidatesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vprop_candidates_total",
				Help: "Alpha candidates that passed the quality gate",
			},
			[]string{"symbol", "alpha"},
		),
		signalsServed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vprop_signals_served_total",
				Help: "Sized signals served to the execution layer",
			},
			[]string{"symbol"},
		),
		executionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vprop_executions_total",
				Help: "Execution reports processed",
			},
			[]string{"symbol", "result"},
		),
		governorState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vprop_governor_state",
				Help: "Current governor state (1 for the active label, 0 otherwise)",
			},
			[]string{"state"},
		),
		inferenceLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vprop_inference_seconds",
				Help:    "Ensemble predict latency",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vprop_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

func (r *Recorder) RecordTick(symbol string) {
	r.ticksTotal.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordBarStored(symbol, tf string, synthetic bool) {
	label := "false"
	if synthetic {
		label = "true"
	}
	r.barsStored.WithLabelValues(symbol, tf, label).Inc()
}

func (r *Recorder) RecordPipelineDepth(n int) {
	r.pipelineDepth.Set(float64(n))
}

func (r *Recorder) RecordScan(symbol, tf string, seconds float64) {
	r.scanDuration.WithLabelValues(symbol, tf).Observe(seconds)
}

func (r *Recorder) RecordCandidate(symbol, alpha string) {
	r.candidatesTotal.WithLabelValues(symbol, alpha).Inc()
}

func (r *Recorder) RecordSignalServed(symbol string) {
	r.signalsServed.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordExecution(symbol string, win bool) {
	result := "loss"
	if win {
		result = "win"
	}
	r.executionsTotal.WithLabelValues(symbol, result).Inc()
}

var governorStates = []string{"active", "soft_limit", "suspended", "lockdown"}

// RecordGovernorState sets the gauge to 1 for the current state and 0 for
// the rest, so alerts can match on a single series.
func (r *Recorder) RecordGovernorState(state string) {
	for _, s := range governorStates {
		v := 0.0
		if s == state {
			v = 1.0
		}
		r.governorState.WithLabelValues(s).Set(v)
	}
}

func (r *Recorder) RecordInferenceLatency(seconds float64) {
	r.inferenceLatency.Observe(seconds)
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
