package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sekisetsu/internal/artifact"
	"sekisetsu/internal/config"
	"sekisetsu/internal/monitor"
	"sekisetsu/internal/store"
)

func writeDataset(t *testing.T, dir, name string, rows int) {
	t.Helper()
	var b strings.Builder
	for i := 0; i < rows; i++ {
		c := 100 + float64(i%7)*0.4
		fmt.Fprintf(&b, "2024.03.%02d,10:%02d,%.2f,%.2f,%.2f,%.2f,%d\n", 1+i%28, i%60, c, c+0.6, c-0.6, c+0.1, 500+i*3)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(b.String()), 0o644))
}

func testAppConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()

	cfg.Input.BasePath = filepath.Join(root, "csv")
	cfg.Input.WindowLength = 20
	require.NoError(t, os.MkdirAll(cfg.Input.BasePath, 0o755))

	cfg.Simulation.WindowWidth = 120
	cfg.Simulation.WindowHeight = 100
	cfg.Simulation.FrameLimit = 3
	cfg.Simulation.FrameRate = 0
	cfg.Simulation.ParticleBirthCount = 20
	cfg.Simulation.Seed = 7

	cfg.Geometry.PaintableLimit = 100
	cfg.Geometry.SigmaPeriod = 5
	cfg.Signal.SigmaSortLow = 5
	cfg.Signal.SampleMargin = 2

	cfg.Output.FramesDir = filepath.Join(root, "simulations")
	cfg.Output.HistogramDir = filepath.Join(root, "histograms")
	cfg.Metrics.TextfilePath = filepath.Join(root, "metrics", "cvt.prom")
	cfg.Database.InMemory = true
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) (*App, *store.Store, *[]string) {
	t.Helper()
	st, err := store.NewSQLite(cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	var calls []string
	a := New(cfg, nil, st)
	a.run = func(_ context.Context, _ string, args ...string) error {
		calls = append(calls, args[len(args)-1])
		return nil
	}
	return a, st, &calls
}

func ledger(t *testing.T, st *store.Store) *monitor.Service {
	t.Helper()
	svc, err := monitor.NewService(context.Background(), st, nil)
	require.NoError(t, err)
	return svc
}

func TestApp_RunProducesArtifactsAndLedger(t *testing.T) {
	cfg := testAppConfig(t)
	writeDataset(t, cfg.Input.BasePath, "USDJPY15.csv", 40)
	a, st, calls := newTestApp(t, cfg)

	require.NoError(t, a.Run(context.Background()))

	writer := artifact.NewWriter(cfg.Output, cfg.App, nil)
	key := artifact.RunKey{Dataset: "USDJPY15", SigmaPeriod: 5}
	hist, err := writer.HistogramPath(key)
	require.NoError(t, err)
	assert.FileExists(t, hist)
	assert.FileExists(t, strings.TrimSuffix(hist, ".png")+".yaml")
	assert.NoDirExists(t, writer.FramesDir("USDJPY15"))

	assert.Equal(t, []string{
		filepath.Join(cfg.Output.FramesDir, "temp.avi"),
		writer.SequenceVideoPath(key),
		filepath.Join(writer.HistogramDir(key), "temp.avi"),
		writer.HistogramVideoPath(key),
	}, *calls)

	manifest, err := artifact.ReadManifest(strings.TrimSuffix(hist, ".png") + ".yaml")
	require.NoError(t, err)
	assert.Equal(t, int64(7), manifest.Seed)
	assert.Equal(t, 3, manifest.Frames)
	assert.Equal(t, 40, manifest.Particles)

	runs, err := ledger(t, st).ListRuns(context.Background(), "USDJPY15", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, monitor.RunStatusDone, runs[0].Status)
	assert.Equal(t, 3, runs[0].Frames)
	assert.Equal(t, hist, runs[0].Histogram)
	assert.Equal(t, manifest.RunID, runs[0].ID)

	assert.FileExists(t, cfg.Metrics.TextfilePath)
}

func TestApp_QuitEventCancelsCurrentRun(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Batch.SamplePeriodSize = 2
	writeDataset(t, cfg.Input.BasePath, "EURUSD.csv", 40)
	a, st, calls := newTestApp(t, cfg)

	require.True(t, a.Post(Event{Kind: EventQuit}))
	require.NoError(t, a.Run(context.Background()))

	runs, err := ledger(t, st).ListRuns(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, monitor.RunStatusCanceled, runs[0].Status)
	assert.Zero(t, runs[0].Frames)
	assert.Empty(t, *calls)
}

func TestApp_RestartEventIsRecorded(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Output.EncodeVideo = false
	writeDataset(t, cfg.Input.BasePath, "EURUSD.csv", 40)
	a, st, _ := newTestApp(t, cfg)

	require.True(t, a.Post(Event{Kind: EventRestart}))
	require.True(t, a.Post(Event{Kind: EventGrab, Point: physicsPoint(60, 50)}))
	require.True(t, a.Post(Event{Kind: EventRelease}))
	require.NoError(t, a.Run(context.Background()))

	svc := ledger(t, st)
	restarts, err := svc.ListEvents(context.Background(), monitor.EventRestart, 10)
	require.NoError(t, err)
	assert.Len(t, restarts, 1)

	runs, err := svc.ListRuns(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, monitor.RunStatusDone, runs[0].Status)
	assert.Equal(t, 3, runs[0].Frames)
}

func TestApp_RestartMidRunKeepsFrameNumbering(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Output.EncodeVideo = false
	cfg.Simulation.FrameRate = 10
	writeDataset(t, cfg.Input.BasePath, "GBPUSD.csv", 40)
	a, st, _ := newTestApp(t, cfg)

	writer := artifact.NewWriter(cfg.Output, cfg.App, nil)
	first := filepath.Join(writer.FramesDir("GBPUSD"), cfg.App.CodeName+"_001.png")

	posted := make(chan struct{})
	go func() {
		defer close(posted)
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if _, err := os.Stat(first); err == nil {
				a.Post(Event{Kind: EventRestart})
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()

	require.NoError(t, a.Run(context.Background()))
	<-posted

	runs, err := ledger(t, st).ListRuns(context.Background(), "GBPUSD", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, monitor.RunStatusDone, runs[0].Status)
	assert.Greater(t, runs[0].Frames, cfg.Simulation.FrameLimit)

	frames, err := filepath.Glob(filepath.Join(writer.FramesDir("GBPUSD"), "*.png"))
	require.NoError(t, err)
	assert.Len(t, frames, runs[0].Frames)
	for i := 1; i <= runs[0].Frames; i++ {
		assert.FileExists(t, filepath.Join(writer.FramesDir("GBPUSD"), fmt.Sprintf("%s_%03d.png", cfg.App.CodeName, i)))
	}
}

func TestApp_ShortDatasetIsSkipped(t *testing.T) {
	cfg := testAppConfig(t)
	writeDataset(t, cfg.Input.BasePath, "SHORT.csv", 5)
	a, st, _ := newTestApp(t, cfg)

	require.NoError(t, a.Run(context.Background()))

	svc := ledger(t, st)
	runs, err := svc.ListRuns(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, runs)

	errs, err := svc.ListEvents(context.Background(), monitor.EventError, 10)
	require.NoError(t, err)
	assert.Len(t, errs, 1)
}

func TestApp_NoDatasets(t *testing.T) {
	cfg := testAppConfig(t)
	a, _, calls := newTestApp(t, cfg)

	require.NoError(t, a.Run(context.Background()))
	assert.Empty(t, *calls)
}

func TestMonitorHandler(t *testing.T) {
	cfg := testAppConfig(t)
	a, st, _ := newTestApp(t, cfg)
	svc := ledger(t, st)
	ctx := context.Background()

	id, err := svc.BeginRun(ctx, monitor.Run{Dataset: "USDJPY15"})
	require.NoError(t, err)
	a.recorder.FrameRendered()

	srv := httptest.NewServer(newMonitorHandler(svc, a.recorder, a.logger))
	defer srv.Close()

	for _, tc := range []struct {
		path   string
		status int
		body   string
	}{
		{path: "/runs?dataset=USDJPY15", status: http.StatusOK, body: id},
		{path: "/events?type=RUN_STARTED&limit=5", status: http.StatusOK, body: id},
		{path: "/signals", status: http.StatusBadRequest},
		{path: "/signals?run_id=" + id, status: http.StatusOK, body: "null"},
		{path: "/metrics", status: http.StatusOK, body: "cvt_frames_rendered_total 1"},
	} {
		resp, err := http.Get(srv.URL + tc.path)
		require.NoError(t, err, tc.path)
		body := readAll(t, resp)
		assert.Equal(t, tc.status, resp.StatusCode, tc.path)
		if tc.body != "" {
			assert.Contains(t, body, tc.body, tc.path)
		}
	}
}
