package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sekisetsu/internal/config"
)

func gather(t *testing.T, r *Recorder) map[string]*dto.MetricFamily {
	t.Helper()
	mfs, err := r.Gatherer().Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(mfs))
	for _, mf := range mfs {
		out[mf.GetName()] = mf
	}
	return out
}

func TestRecorder_CountsAreIsolatedPerRegistry(t *testing.T) {
	a := NewRecorder(config.MetricsConfig{Namespace: "cvt"})
	b := NewRecorder(config.MetricsConfig{Namespace: "cvt"})

	a.ObserveRun("done", 3*time.Second)
	a.FrameRendered()
	a.FrameRendered()
	a.EntrySignal("up")
	a.EntrySignal("up")
	a.EntrySignal("down")
	a.EncodeFailed()

	got := gather(t, a)
	require.Contains(t, got, "cvt_frames_rendered_total")
	assert.Equal(t, 2.0, got["cvt_frames_rendered_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 1.0, got["cvt_encode_failures_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, uint64(1), got["cvt_run_duration_seconds"].GetMetric()[0].GetHistogram().GetSampleCount())

	byDirection := map[string]float64{}
	for _, m := range got["cvt_entry_signals_total"].GetMetric() {
		byDirection[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{"up": 2, "down": 1}, byDirection)

	other := gather(t, b)
	assert.NotContains(t, other, "cvt_runs_total")
}

func TestRecorder_WriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node", "cvt.prom")
	r := NewRecorder(config.MetricsConfig{Namespace: "cvt", TextfilePath: path})
	r.ObserveRun("failed", time.Second)

	require.NoError(t, r.WriteTextfile())
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), `cvt_runs_total{status="failed"} 1`)

	assert.NoError(t, NewRecorder(config.MetricsConfig{}).WriteTextfile())
}
