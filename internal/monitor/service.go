// Package monitor 记录模拟运行台账：运行记录、入场信号与监控事件。
package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"sekisetsu/internal/store"
)

// Service 负责持久化运行台账与监控事件。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化监控服务，创建所需表结构。
func NewService(ctx context.Context, st *store.Store, logger *zap.Logger) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("monitor: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     st.DB(),
		logger: logger,
	}

	if err := st.Migrate(ctx, schema...); err != nil {
		return nil, fmt.Errorf("monitor: 初始化表失败: %w", err)
	}

	return s, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS monitor_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_monitor_events_type ON monitor_events(event_type)`,
	`CREATE TABLE IF NOT EXISTS simulation_runs (
	id TEXT PRIMARY KEY,
	dataset TEXT NOT NULL,
	offset_index INTEGER NOT NULL,
	permutation INTEGER NOT NULL,
	sigma_period INTEGER NOT NULL,
	seed INTEGER NOT NULL,
	status TEXT NOT NULL,
	frames INTEGER NOT NULL DEFAULT 0,
	histogram TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL,
	finished_at TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_simulation_runs_dataset ON simulation_runs(dataset, offset_index)`,
	`CREATE TABLE IF NOT EXISTS entry_signals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL REFERENCES simulation_runs(id) ON DELETE CASCADE,
	bar_index INTEGER NOT NULL,
	column_x INTEGER NOT NULL,
	label TEXT NOT NULL DEFAULT '',
	direction TEXT NOT NULL,
	depth REAL NOT NULL,
	heavy_ratio REAL NOT NULL,
	light_ratio REAL NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_entry_signals_run ON entry_signals(run_id)`,
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("monitor: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO monitor_events (event_type, payload, created_at) VALUES (?, ?, ?)`,
		string(event.Type), string(payload), event.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("monitor: 写入事件失败: %w", err)
	}

	return nil
}

// BeginRun 登记一次运行并返回生成的运行 ID。
func (s *Service) BeginRun(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO simulation_runs (id, dataset, offset_index, permutation, sigma_period, seed, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Dataset, run.Offset, run.Permutation, run.SigmaPeriod, run.Seed,
		string(RunStatusRunning), run.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("monitor: 登记运行失败: %w", err)
	}

	s.recordQuietly(ctx, EventRunStarted, RunPayload{
		RunID:       run.ID,
		Dataset:     run.Dataset,
		Offset:      run.Offset,
		Permutation: run.Permutation,
	})
	return run.ID, nil
}

// FinishRun 在同一事务中更新运行状态并写入入场信号。
func (s *Service) FinishRun(ctx context.Context, run Run, signals []Signal) (err error) {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("monitor: 开启事务失败: %w", err)
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, tx.Rollback())
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE simulation_runs SET status = ?, frames = ?, seed = ?, histogram = ?, finished_at = ? WHERE id = ?`,
		string(run.Status), run.Frames, run.Seed, run.Histogram, run.FinishedAt.Format(time.RFC3339Nano), run.ID,
	)
	if err != nil {
		return fmt.Errorf("monitor: 更新运行失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("monitor: 运行 %s 不存在", run.ID)
	}

	for _, sig := range signals {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO entry_signals (run_id, bar_index, column_x, label, direction, depth, heavy_ratio, light_ratio)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, sig.BarIndex, sig.Column, sig.Label, sig.Direction, sig.Depth, sig.HeavyRatio, sig.LightRatio,
		); err != nil {
			return fmt.Errorf("monitor: 写入入场信号失败: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("monitor: 提交事务失败: %w", err)
	}

	eventType := EventRunFinished
	if run.Status == RunStatusFailed {
		eventType = EventRunFailed
	}
	s.recordQuietly(ctx, eventType, RunPayload{
		RunID:   run.ID,
		Dataset: run.Dataset,
		Offset:  run.Offset,
		Status:  run.Status,
		Frames:  run.Frames,
		Entries: len(signals),
	})
	return nil
}

// RecordRestart 记录交互式重置。
func (s *Service) RecordRestart(ctx context.Context, runID string) {
	s.recordQuietly(ctx, EventRestart, RunPayload{RunID: runID})
}

// RecordEncodeFailure 记录外部编码失败。
func (s *Service) RecordEncodeFailure(ctx context.Context, output string, err error) {
	s.recordQuietly(ctx, EventEncodeFailed, ErrorPayload{
		Message: "编码失败",
		Error:   err.Error(),
		Context: map[string]interface{}{"output": output},
	})
}

// RecordError 记录异常。
func (s *Service) RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{}) {
	s.recordQuietly(ctx, EventError, ErrorPayload{
		Message: msg,
		Error:   err.Error(),
		Context: ctxMap,
	})
}

func (s *Service) recordQuietly(ctx context.Context, typ EventType, payload interface{}) {
	if err := s.Record(ctx, Event{Type: typ, Timestamp: time.Now().UTC(), Payload: payload}); err != nil {
		s.logger.Warn("记录监控事件失败", zap.String("type", string(typ)), zap.Error(err))
	}
}

// ListRuns 返回最近的运行记录，dataset 为空时不过滤。
func (s *Service) ListRuns(ctx context.Context, dataset string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, dataset, offset_index, permutation, sigma_period, seed, status, frames, histogram, started_at, COALESCE(finished_at, '')
		FROM simulation_runs`
	args := make([]interface{}, 0, 2)
	if dataset != "" {
		query += ` WHERE dataset = ?`
		args = append(args, dataset)
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monitor: 查询运行失败: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		var (
			run      Run
			status   string
			started  string
			finished string
		)
		if err := rows.Scan(&run.ID, &run.Dataset, &run.Offset, &run.Permutation, &run.SigmaPeriod, &run.Seed,
			&status, &run.Frames, &run.Histogram, &started, &finished); err != nil {
			return nil, fmt.Errorf("monitor: 解析运行失败: %w", err)
		}
		run.Status = RunStatus(status)
		run.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if finished != "" {
			run.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: 读取运行失败: %w", err)
	}
	return runs, nil
}

// ListSignals 返回某次运行的入场信号，按写入顺序。
func (s *Service) ListSignals(ctx context.Context, runID string) ([]Signal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, bar_index, column_x, label, direction, depth, heavy_ratio, light_ratio
		 FROM entry_signals WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("monitor: 查询入场信号失败: %w", err)
	}
	defer rows.Close()

	var signals []Signal
	for rows.Next() {
		var sig Signal
		if err := rows.Scan(&sig.RunID, &sig.BarIndex, &sig.Column, &sig.Label, &sig.Direction,
			&sig.Depth, &sig.HeavyRatio, &sig.LightRatio); err != nil {
			return nil, fmt.Errorf("monitor: 解析入场信号失败: %w", err)
		}
		signals = append(signals, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: 读取入场信号失败: %w", err)
	}
	return signals, nil
}

// ListEvents 按类型检索最近事件。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT event_type, payload, created_at FROM monitor_events`
	args := make([]interface{}, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monitor: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			typ     string
			payload string
			created string
		)
		if scanErr := rows.Scan(&typ, &payload, &created); scanErr != nil {
			return nil, fmt.Errorf("monitor: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339, created)
		if parseErr != nil {
			ts = time.Now().UTC()
		}

		events = append(events, Event{
			Type:      EventType(typ),
			Timestamp: ts,
			Payload:   json.RawMessage(payload),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: 读取事件失败: %w", err)
	}

	return events, nil
}
