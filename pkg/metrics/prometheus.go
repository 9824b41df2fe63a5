package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder собирает метрики движка сигналов.
type Recorder struct {
	candlesIngested *prometheus.CounterVec
	framesDropped   *prometheus.CounterVec
	reconnects      prometheus.Counter
	oracleCalls     *prometheus.CounterVec
	signals         *prometheus.CounterVec
	closed          *prometheus.CounterVec
	cycleLatency    *prometheus.HistogramVec
	candleAge       *prometheus.GaugeVec
}

// New создаёт Recorder и регистрирует его в reg. nil reg = без регистрации (тесты).
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		candlesIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_engine_candles_ingested_total",
				Help: "Candle updates applied to the cache",
			},
			[]string{"interval"},
		),
		framesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_engine_frames_dropped_total",
				Help: "Feed frames dropped before reaching the cache",
			},
			[]string{"reason"},
		),
		reconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "signal_engine_ws_reconnects_total",
				Help: "Websocket reconnect attempts",
			},
		),
		oracleCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_engine_oracle_calls_total",
				Help: "Decision oracle calls by result",
			},
			[]string{"result"},
		),
		signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_engine_signals_total",
				Help: "Evaluation outcomes per instrument",
			},
			[]string{"outcome"},
		),
		closed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_engine_signals_closed_total",
				Help: "Closed signals by outcome",
			},
			[]string{"outcome"},
		),
		cycleLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signal_engine_cycle_duration_seconds",
				Help:    "Duration of scheduler cycles in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"task"},
		),
		candleAge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signal_engine_newest_candle_age_seconds",
				Help: "Age of the newest cached candle per key",
			},
			[]string{"key"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			r.candlesIngested, r.framesDropped, r.reconnects, r.oracleCalls,
			r.signals, r.closed, r.cycleLatency, r.candleAge,
		)
	}
	return r
}

// NewNop: recorder без регистрации.
func NewNop() *Recorder { return New(nil) }

func (r *Recorder) CandleIngested(interval string) {
	r.candlesIngested.WithLabelValues(interval).Inc()
}

func (r *Recorder) FrameDropped(reason string) {
	r.framesDropped.WithLabelValues(reason).Inc()
}

func (r *Recorder) Reconnect() { r.reconnects.Inc() }

func (r *Recorder) OracleCall(result string) {
	r.oracleCalls.WithLabelValues(result).Inc()
}

func (r *Recorder) Evaluation(outcome string) {
	r.signals.WithLabelValues(outcome).Inc()
}

func (r *Recorder) SignalClosed(outcome string) {
	r.closed.WithLabelValues(outcome).Inc()
}

func (r *Recorder) CycleLatency(task string, seconds float64) {
	r.cycleLatency.WithLabelValues(task).Observe(seconds)
}

func (r *Recorder) CandleAge(key string, seconds float64) {
	r.candleAge.WithLabelValues(key).Set(seconds)
}
