package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sekisetsu/internal/artifact"
	"sekisetsu/internal/batch"
	"sekisetsu/internal/config"
	"sekisetsu/internal/geometry"
	"sekisetsu/internal/market"
	"sekisetsu/internal/metrics"
	"sekisetsu/internal/monitor"
	"sekisetsu/internal/physics"
	"sekisetsu/internal/render"
	"sekisetsu/internal/signal"
	"sekisetsu/internal/tank"
)

var errQuit = fmt.Errorf("%w: 收到退出事件", context.Canceled)

type orchestratorConfig struct {
	cfg      *config.Config
	monitor  *monitor.Service
	metrics  *metrics.Recorder
	events   <-chan Event
	run      artifact.CommandRunner
	newWorld physics.Factory
}

// orchestrator 串联加载、建模、模拟、采样与产物输出，实现 batch.Runner。
type orchestrator struct {
	cfg      *config.Config
	loader   *market.Loader
	builder  *geometry.Builder
	analyzer *signal.Analyzer
	sampler  signal.Sampler
	writer   *artifact.Writer
	encoder  *artifact.Encoder
	monitor  *monitor.Service
	metrics  *metrics.Recorder
	palette  render.Palette
	events   <-chan Event
	newWorld physics.Factory
	logger   *zap.Logger
}

func newOrchestrator(oc orchestratorConfig, logger *zap.Logger) *orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := oc.cfg
	palette := render.DefaultPalette()

	return &orchestrator{
		cfg:      cfg,
		loader:   market.NewLoader(cfg.Input, logger),
		builder:  geometry.NewBuilder(cfg.Geometry, float64(cfg.Simulation.WindowHeight), logger),
		analyzer: signal.NewAnalyzer(cfg.Signal, logger),
		sampler:  newSampler(cfg, palette),
		writer:   artifact.NewWriter(cfg.Output, cfg.App, logger),
		encoder:  artifact.NewEncoder(cfg.Output, oc.run, logger),
		monitor:  oc.monitor,
		metrics:  oc.metrics,
		palette:  palette,
		events:   oc.events,
		newWorld: oc.newWorld,
		logger:   logger,
	}
}

func newSampler(cfg *config.Config, palette render.Palette) signal.Sampler {
	if cfg.Signal.SampleSource == "bodies" {
		return signal.BodySampler{
			Width:  cfg.Simulation.WindowWidth,
			Height: cfg.Simulation.WindowHeight,
			Margin: cfg.Signal.SampleMargin,
		}
	}
	return signal.RasterSampler{
		Heavy:  palette.Heavy,
		Light:  palette.Light,
		Margin: cfg.Signal.SampleMargin,
	}
}

// Run 执行一次完整模拟。
func (o *orchestrator) Run(ctx context.Context, job batch.Job) (batch.Outcome, error) {
	started := time.Now().UTC()
	outcome := batch.Outcome{Job: job}

	window, err := o.loader.Load(job.Path, job.Offset)
	if err != nil {
		o.monitor.RecordError(ctx, "加载数据失败", err, map[string]interface{}{"dataset": job.Dataset, "offset": job.Offset})
		o.metrics.ObserveRun(string(monitor.RunStatusFailed), time.Since(started))
		return outcome, fmt.Errorf("加载 %s 失败: %w", job.Dataset, err)
	}

	terrain := o.builder.Build(window)
	sim := tank.NewSimulator(o.cfg.Simulation, terrain, o.newWorld, o.logger)
	if err := sim.Start(); err != nil {
		return outcome, err
	}
	defer func() {
		if sim.State() != tank.StateTerminated {
			_ = sim.Terminate()
		}
	}()

	run := monitor.Run{
		Dataset:     window.Dataset,
		Offset:      job.Offset,
		Permutation: job.Permutation,
		SigmaPeriod: o.cfg.Geometry.SigmaPeriod,
		Seed:        sim.Seed(),
		StartedAt:   started,
	}
	run.ID, err = o.monitor.BeginRun(ctx, run)
	if err != nil {
		return outcome, err
	}
	outcome.RunID = run.ID

	o.logger.Info("模拟开始",
		zap.String("run_id", run.ID),
		zap.String("dataset", window.Dataset),
		zap.Int("offset", job.Offset),
		zap.Int("permutation", job.Permutation),
		zap.Int64("seed", sim.Seed()),
	)

	canvas := render.NewCanvas(o.cfg.Simulation.WindowWidth, o.cfg.Simulation.WindowHeight, o.palette)
	rendered, err := o.simulate(ctx, sim, canvas, run.ID, window.Dataset)
	if err != nil {
		run.Status = monitor.RunStatusFailed
		if errors.Is(err, context.Canceled) {
			run.Status = monitor.RunStatusCanceled
		}
		run.Seed, run.Frames = sim.Seed(), rendered
		if finishErr := o.monitor.FinishRun(context.WithoutCancel(ctx), run, nil); finishErr != nil {
			o.logger.Warn("更新运行台账失败", zap.String("run_id", run.ID), zap.Error(finishErr))
		}
		o.metrics.ObserveRun(string(run.Status), time.Since(started))
		outcome.Frames = rendered
		return outcome, err
	}

	key := artifact.RunKey{
		Dataset:     window.Dataset,
		Offset:      job.Offset,
		Permutation: job.Permutation,
		SigmaPeriod: o.cfg.Geometry.SigmaPeriod,
	}
	result, histPath, err := o.finalize(ctx, sim, canvas, terrain, key)
	if err != nil {
		run.Status = monitor.RunStatusFailed
		run.Frames = rendered
		o.monitor.RecordError(ctx, "输出直方图失败", err, map[string]interface{}{"run_id": run.ID})
		if finishErr := o.monitor.FinishRun(ctx, run, nil); finishErr != nil {
			o.logger.Warn("更新运行台账失败", zap.String("run_id", run.ID), zap.Error(finishErr))
		}
		o.metrics.ObserveRun(string(run.Status), time.Since(started))
		return outcome, err
	}

	particles := len(sim.Particles())
	run.Status = monitor.RunStatusDone
	run.Seed = sim.Seed()
	run.Frames = rendered
	run.Histogram = histPath
	run.FinishedAt = time.Now().UTC()
	if err := sim.Terminate(); err != nil {
		return outcome, err
	}

	signals := make([]monitor.Signal, 0, len(result.Entries))
	for _, e := range result.Entries {
		signals = append(signals, monitor.Signal{
			BarIndex:   e.BarIndex,
			Column:     e.Column,
			Label:      window.Bars[e.BarIndex].Label,
			Direction:  e.Direction.String(),
			Depth:      e.Depth,
			HeavyRatio: e.HeavyRatio,
			LightRatio: e.LightRatio,
		})
		o.metrics.EntrySignal(e.Direction.String())
		if e.Direction == signal.DirectionUp {
			outcome.Up++
		} else {
			outcome.Down++
		}
	}

	if o.cfg.Output.WriteManifest {
		manifest := artifact.Manifest{
			RunID:       run.ID,
			Dataset:     run.Dataset,
			Offset:      run.Offset,
			Permutation: run.Permutation,
			SigmaPeriod: run.SigmaPeriod,
			Seed:        run.Seed,
			Frames:      run.Frames,
			Particles:   particles,
			Lowest:      window.Lowest,
			Highest:     window.Highest,
			StartedAt:   run.StartedAt,
			FinishedAt:  run.FinishedAt,
			Histogram:   histPath,
			Entries:     make([]artifact.ManifestEntry, 0, len(signals)),
		}
		for _, s := range signals {
			manifest.Entries = append(manifest.Entries, artifact.ManifestEntry{
				BarIndex:  s.BarIndex,
				Column:    s.Column,
				Label:     s.Label,
				Direction: s.Direction,
				Depth:     s.Depth,
				Heavy:     s.HeavyRatio,
				Light:     s.LightRatio,
			})
		}
		if _, err := o.writer.WriteManifest(key, manifest); err != nil {
			o.logger.Warn("写入运行清单失败", zap.String("run_id", run.ID), zap.Error(err))
		}
	}

	if err := o.monitor.FinishRun(ctx, run, signals); err != nil {
		return outcome, err
	}

	elapsed := time.Since(started)
	o.metrics.ObserveRun(string(run.Status), elapsed)

	outcome.Seed = run.Seed
	outcome.Frames = run.Frames
	outcome.Histogram = histPath
	outcome.Elapsed = elapsed
	return outcome, nil
}

// simulate 逐帧推进直到达到帧数上限或收到退出事件，返回本次运行累计渲染的帧数。
// 重置会让模拟器从零计帧，帧文件编号沿用运行级计数，不覆盖重置前的帧。
func (o *orchestrator) simulate(ctx context.Context, sim *tank.Simulator, canvas *render.Canvas, runID, dataset string) (int, error) {
	var tick <-chan time.Time
	if interval := o.cfg.Simulation.FrameInterval(); interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	terrain := sim.Terrain()
	rendered := 0
	for sim.Frames() < o.cfg.Simulation.FrameLimit {
		if err := o.drainEvents(ctx, sim, runID); err != nil {
			if errors.Is(err, errQuit) {
				o.logger.Info("收到退出事件，停止模拟", zap.String("run_id", runID), zap.Int("frames", rendered))
			}
			return rendered, err
		}

		if tick != nil {
			select {
			case <-ctx.Done():
				return rendered, ctx.Err()
			case <-tick:
			}
		}

		if err := sim.Step(); err != nil {
			return rendered, err
		}
		rendered++
		canvas.DrawFrame(render.Frame{
			Statics:     sim.Statics(),
			Particles:   sim.ParticleStates(),
			PriceSigma:  terrain.PriceSigma,
			VolumeSigma: terrain.VolumeSigma,
			Label:       dataset,
		})
		o.metrics.FrameRendered()

		if o.cfg.Output.SaveSequences {
			path, err := o.writer.FramePath(dataset, rendered)
			if err != nil {
				return rendered, err
			}
			if err := canvas.SavePNG(path); err != nil {
				return rendered, err
			}
		}
	}
	return rendered, nil
}

func (o *orchestrator) drainEvents(ctx context.Context, sim *tank.Simulator, runID string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-o.events:
			if !ok {
				return nil
			}
			if err := o.handle(ctx, sim, runID, ev); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (o *orchestrator) handle(ctx context.Context, sim *tank.Simulator, runID string, ev Event) error {
	o.logger.Debug("处理交互事件", zap.Stringer("event", ev.Kind), zap.Float64("x", ev.Point.X), zap.Float64("y", ev.Point.Y))

	switch ev.Kind {
	case EventQuit:
		return errQuit
	case EventRestart:
		if err := sim.Restart(); err != nil {
			return err
		}
		o.monitor.RecordRestart(ctx, runID)
		o.logger.Info("控制容积槽已重置", zap.String("run_id", runID), zap.Int64("seed", sim.Seed()))
	case EventGrab:
		if _, err := sim.Grab(ev.Point); err != nil {
			return err
		}
	case EventDrag:
		sim.Drag(ev.Point)
	case EventRelease:
		sim.Release()
	}
	return nil
}

// finalize 对最后一帧采样分析，叠加直方图并输出图像与动画。
func (o *orchestrator) finalize(ctx context.Context, sim *tank.Simulator, canvas *render.Canvas, terrain geometry.Terrain, key artifact.RunKey) (signal.Result, string, error) {
	samples := o.sampler.Sample(canvas.Image(), sim.ParticleStates())
	result := o.analyzer.Analyze(terrain, samples)
	canvas.DrawHistogram(result, o.cfg.Signal)

	histPath, err := o.writer.HistogramPath(key)
	if err != nil {
		return result, "", err
	}
	if err := canvas.SavePNG(histPath); err != nil {
		return result, "", err
	}
	o.logger.Info("直方图已输出", zap.String("path", histPath), zap.Int("entries", len(result.Entries)))

	if o.cfg.Output.EncodeVideo {
		if o.cfg.Output.SaveSequences {
			o.encode(ctx, o.writer.FramesDir(key.Dataset), o.writer.SequenceVideoPath(key), artifact.EncodeOptions{
				FrameRate:    o.cfg.Output.VideoFrameRate,
				Lossless:     true,
				RemoveFrames: true,
			})
		}
		o.encode(ctx, o.writer.HistogramDir(key), o.writer.HistogramVideoPath(key), artifact.EncodeOptions{})
	}
	return result, histPath, nil
}

func (o *orchestrator) encode(ctx context.Context, src, output string, opts artifact.EncodeOptions) {
	if err := o.encoder.EncodeGIF(ctx, src, output, opts); err != nil {
		o.logger.Warn("编码动画失败，跳过", zap.String("output", output), zap.Error(err))
		o.metrics.EncodeFailed()
		o.monitor.RecordEncodeFailure(ctx, output, err)
	}
}
