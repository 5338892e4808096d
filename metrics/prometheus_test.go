package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/iammeizu/voicesplit/ebmlsplit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, OutcomeOK},
		{fmt.Errorf("wrapped: %w", ebmlsplit.ErrNoKeyframeFound), OutcomeNoKeyframe},
		{ebmlsplit.ErrNoAudioStream, OutcomeNoAudio},
		{ebmlsplit.ErrMultipleAudioStreams, OutcomeNoAudio},
		{ebmlsplit.ErrTrailerStripFailed, OutcomeTrailerFailed},
		{fmt.Errorf("%w: open", ebmlsplit.ErrDemux), OutcomeDemuxError},
		{ebmlsplit.ErrMux, OutcomeMuxError},
		{errors.New("other"), OutcomeError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Outcome(tt.err))
	}
}

func TestObserveSplit(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveSplit(nil, time.Millisecond, 100, 80)
	m.ObserveSplit(ebmlsplit.ErrNoKeyframeFound, time.Millisecond, 50, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SplitsTotal.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SplitsTotal.WithLabelValues(OutcomeNoKeyframe)))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.BytesIn))
	assert.Equal(t, 80.0, testutil.ToFloat64(m.BytesOut))
}

func TestObserveSplit_NilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.ObserveSplit(nil, 0, 1, 1) })
}
