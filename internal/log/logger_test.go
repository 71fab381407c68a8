package log

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"sekisetsu/internal/config"
)

func TestResolveLevel(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.LoggingConfig
		want zapcore.Level
	}{
		{name: "plain", cfg: config.LoggingConfig{Level: "warn"}, want: zapcore.WarnLevel},
		{name: "verbose lifts to info", cfg: config.LoggingConfig{Level: "error", Verbose: true}, want: zapcore.InfoLevel},
		{name: "debug wins", cfg: config.LoggingConfig{Level: "warn", Verbose: true, Debug: true}, want: zapcore.DebugLevel},
		{name: "empty defaults to info", cfg: config.LoggingConfig{}, want: zapcore.InfoLevel},
	}

	for _, tc := range cases {
		got, err := resolveLevel(tc.cfg)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if got != tc.want {
			t.Errorf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger(config.LoggingConfig{Level: "chatty"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
