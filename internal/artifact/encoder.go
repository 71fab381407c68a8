package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"sekisetsu/internal/config"
)

// ErrNoFrames 表示目录中没有可编码的 PNG。
var ErrNoFrames = errors.New("artifact: 没有可编码的帧")

// CommandRunner 执行外部命令。
type CommandRunner func(ctx context.Context, name string, args ...string) error

// ExecRunner 通过 os/exec 执行命令，失败时附带命令输出。
func ExecRunner(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		return fmt.Errorf("%s 执行失败: %w: %s", name, err, msg)
	}
	return nil
}

// EncodeOptions 控制一次 PNG 目录到 GIF 的编码。
type EncodeOptions struct {
	FrameRate    int  // 0 表示使用 ffmpeg 默认帧率
	Lossless     bool // 中间 AVI 使用 ffv1
	RemoveFrames bool // 成功后删除源目录
}

// Encoder 调用 ffmpeg：PNG 序列 → 临时 AVI → rgb8 GIF。
type Encoder struct {
	ffmpeg string
	run    CommandRunner
	logger *zap.Logger
}

// NewEncoder 创建 Encoder，run 为空时使用 ExecRunner。
func NewEncoder(cfg config.OutputConfig, run CommandRunner, logger *zap.Logger) *Encoder {
	if run == nil {
		run = ExecRunner
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ffmpeg := cfg.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	return &Encoder{ffmpeg: ffmpeg, run: run, logger: logger}
}

// EncodeGIF 将 srcDir 中的 PNG 编码为 output。
// 临时 AVI 写在 output 同目录，无论成功与否都会被删除。
func (e *Encoder) EncodeGIF(ctx context.Context, srcDir, output string, opts EncodeOptions) error {
	frames, err := filepath.Glob(filepath.Join(srcDir, "*.png"))
	if err != nil {
		return fmt.Errorf("匹配帧文件失败: %w", err)
	}
	if len(frames) == 0 {
		e.logger.Warn("目录中没有可编码的帧", zap.String("dir", srcDir))
		return fmt.Errorf("%w: %s", ErrNoFrames, srcDir)
	}

	if err := ensureDir(filepath.Dir(output)); err != nil {
		return err
	}
	tmp := filepath.Join(filepath.Dir(output), "temp.avi")
	defer os.Remove(tmp)

	args := make([]string, 0, 12)
	if opts.FrameRate > 0 {
		args = append(args, "-framerate", strconv.Itoa(opts.FrameRate))
	}
	args = append(args, "-pattern_type", "glob", "-i", filepath.Join(srcDir, "*.png"))
	if opts.Lossless {
		args = append(args, "-c:v", "ffv1")
	}
	args = append(args, "-y", tmp)

	if err := e.run(ctx, e.ffmpeg, args...); err != nil {
		return fmt.Errorf("编码中间视频失败: %w", err)
	}
	if err := e.run(ctx, e.ffmpeg, "-i", tmp, "-pix_fmt", "rgb8", "-y", output); err != nil {
		return fmt.Errorf("编码 GIF 失败: %w", err)
	}

	if opts.RemoveFrames {
		if err := os.RemoveAll(srcDir); err != nil {
			e.logger.Warn("删除帧目录失败", zap.String("dir", srcDir), zap.Error(err))
		}
	}

	e.logger.Info("GIF 编码完成", zap.String("output", output), zap.Int("frames", len(frames)))
	return nil
}
