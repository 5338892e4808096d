package metrics

import (
	"errors"
	"time"

	"github.com/iammeizu/voicesplit/ebmlsplit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Split outcomes used as label values.
const (
	OutcomeOK            = "ok"
	OutcomeNoKeyframe    = "no_keyframe"
	OutcomeNoAudio       = "no_audio_stream"
	OutcomeTrailerFailed = "trailer_strip_failed"
	OutcomeDemuxError    = "demux_error"
	OutcomeMuxError      = "mux_error"
	OutcomeError         = "error"
)

// Metrics contains all Prometheus metrics for the split service
type Metrics struct {
	SplitsTotal   *prometheus.CounterVec
	SplitDuration prometheus.Histogram
	BytesIn       prometheus.Counter
	BytesOut      prometheus.Counter

	ActiveSessions prometheus.Gauge
	SessionBytes   prometheus.Counter

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SplitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicesplit_splits_total",
			Help: "Total number of split operations by outcome",
		}, []string{"outcome"}),
		SplitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicesplit_split_duration_seconds",
			Help:    "Time spent splitting a buffer",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		BytesIn: f.NewCounter(prometheus.CounterOpts{
			Name: "voicesplit_split_input_bytes_total",
			Help: "Bytes handed to the splitter",
		}),
		BytesOut: f.NewCounter(prometheus.CounterOpts{
			Name: "voicesplit_split_output_bytes_total",
			Help: "Bytes produced by successful splits",
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "voicesplit_active_sessions",
			Help: "Number of open streaming sessions",
		}),
		SessionBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "voicesplit_session_received_bytes_total",
			Help: "Container bytes appended to streaming sessions",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicesplit_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicesplit_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// Outcome maps a split error to its label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ebmlsplit.ErrNoKeyframeFound):
		return OutcomeNoKeyframe
	case errors.Is(err, ebmlsplit.ErrNoAudioStream), errors.Is(err, ebmlsplit.ErrMultipleAudioStreams):
		return OutcomeNoAudio
	case errors.Is(err, ebmlsplit.ErrTrailerStripFailed):
		return OutcomeTrailerFailed
	case errors.Is(err, ebmlsplit.ErrDemux):
		return OutcomeDemuxError
	case errors.Is(err, ebmlsplit.ErrMux):
		return OutcomeMuxError
	}
	return OutcomeError
}

// ObserveSplit records one split. m may be nil.
func (m *Metrics) ObserveSplit(err error, took time.Duration, in, out int) {
	if m == nil {
		return
	}
	m.SplitsTotal.WithLabelValues(Outcome(err)).Inc()
	m.SplitDuration.Observe(took.Seconds())
	m.BytesIn.Add(float64(in))
	if err == nil {
		m.BytesOut.Add(float64(out))
	}
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.ActiveSessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.ActiveSessions.Dec()
	}
}

func (m *Metrics) SessionReceived(n int) {
	if m != nil {
		m.SessionBytes.Add(float64(n))
	}
}
