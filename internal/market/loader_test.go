package market

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sekisetsu/internal/config"
)

// buildCSV 生成 n 行 MetaTrader 风格的数据，第 i 行 close=100+i%5。
func buildCSV(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		c := 100 + float64(i%5)
		fmt.Fprintf(&b, "2018.08.%02d,12:%02d,%.2f,%.2f,%.2f,%.2f,%d\n", 1+i%28, i%60, c, c+0.5, c-0.5, c, 1000+i)
	}
	return b.String()
}

func TestLoaderRead_SelectsTailWindow(t *testing.T) {
	loader := NewLoader(config.InputConfig{WindowLength: 10, NewestFirst: false}, nil)

	window, err := loader.Read(strings.NewReader(buildCSV(30)), "sample", 5)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if window.Len() != 10 {
		t.Fatalf("expected 10 bars, got %d", window.Len())
	}
	if window.Bars[0].Row != 15 || window.Bars[9].Row != 24 {
		t.Errorf("expected rows 15..24, got %d..%d", window.Bars[0].Row, window.Bars[9].Row)
	}
	if window.Offset != 5 {
		t.Errorf("expected offset 5, got %d", window.Offset)
	}
}

func TestLoaderRead_NewestFirstReversesRows(t *testing.T) {
	loader := NewLoader(config.InputConfig{WindowLength: 10, NewestFirst: true}, nil)

	window, err := loader.Read(strings.NewReader(buildCSV(30)), "sample", 0)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	// 文件第0行为最新，反转后窗口末尾应为第0行
	if window.Bars[9].Row != 0 || window.Bars[0].Row != 9 {
		t.Errorf("expected rows 9..0, got %d..%d", window.Bars[0].Row, window.Bars[9].Row)
	}
}

func TestLoaderRead_RangeRoundedOutward(t *testing.T) {
	csv := "d,t,100.2,104.6,99.7,101,10\nd,t,101,105.5,100.5,102,10\nd,t,102,103,100.1,102,10\n"
	loader := NewLoader(config.InputConfig{WindowLength: 3}, nil)

	window, err := loader.Read(strings.NewReader(csv), "range", 0)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	// min=99.7 -> 100-1, max=105.5 -> 106(银行家舍入)+1
	if window.Lowest != 99 {
		t.Errorf("expected lowest 99, got %v", window.Lowest)
	}
	if window.Highest != 107 {
		t.Errorf("expected highest 107, got %v", window.Highest)
	}
}

func TestLoaderRead_InsufficientRows(t *testing.T) {
	loader := NewLoader(config.InputConfig{WindowLength: 315}, nil)

	_, err := loader.Read(strings.NewReader(buildCSV(320)), "short", 10)
	if !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	if !IsInputFormat(err) {
		t.Errorf("index error should be an input format error")
	}
}

func TestLoaderRead_MalformedRow(t *testing.T) {
	csv := "d,t,1,2,0.5,1.5,10\nd,t,1,oops,0.5,1.5,10\n"
	loader := NewLoader(config.InputConfig{WindowLength: 2}, nil)

	_, err := loader.Read(strings.NewReader(csv), "bad", 0)
	var rowErr *RowError
	if !errors.As(err, &rowErr) {
		t.Fatalf("expected RowError, got %v", err)
	}
	if rowErr.Row != 1 || rowErr.Column != colHigh {
		t.Errorf("unexpected row/column %d/%d", rowErr.Row, rowErr.Column)
	}
	if !IsInputFormat(err) {
		t.Errorf("row error should be an input format error")
	}

	_, err = loader.Read(strings.NewReader("d,t,1,2\nd,t,1,2\n"), "narrow", 0)
	if !IsInputFormat(err) {
		t.Errorf("short row should be an input format error, got %v", err)
	}
}

func TestLoaderLoad_ParsesTimestampAndName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "USDJPY15.csv")
	if err := os.WriteFile(path, []byte(buildCSV(12)), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	loader := NewLoader(config.InputConfig{WindowLength: 12}, nil)
	window, err := loader.Load(path, 0)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if window.Dataset != "USDJPY15" {
		t.Errorf("expected dataset name USDJPY15, got %q", window.Dataset)
	}
	want := time.Date(2018, 8, 1, 12, 0, 0, 0, time.UTC)
	if !window.Bars[0].Timestamp.Equal(want) {
		t.Errorf("expected %v, got %v", want, window.Bars[0].Timestamp)
	}
	if window.Bars[0].Label != "2018.08.01 12:00" {
		t.Errorf("unexpected label %q", window.Bars[0].Label)
	}
	if window.Series().Len() != 12 {
		t.Errorf("series length mismatch")
	}
}

func TestDiscover_NewestFirstWithLimit(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	for i, name := range []string{"a.csv", "b.csv", "c.csv"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		mod := now.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(path, mod, mod); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	files, err := Discover(dir, "*.csv", 2)
	if err != nil {
		t.Fatalf("Discover returned error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %v", files)
	}
	if filepath.Base(files[0]) != "c.csv" || filepath.Base(files[1]) != "b.csv" {
		t.Errorf("unexpected order %v", files)
	}
}
