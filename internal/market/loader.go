package market

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sekisetsu/internal/config"
)

const (
	colDate = iota
	colTime
	colOpen
	colHigh
	colLow
	colClose
	colVolume
	minColumns
)

var timestampLayouts = []string{
	"2006.01.02 15:04",
	"2006.01.02 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006.01.02",
	"2006-01-02",
	time.RFC3339,
}

// Loader 读取 OHLC CSV 文件中的一个定长窗口。
type Loader struct {
	windowLength int
	newestFirst  bool
	logger       *zap.Logger
}

// NewLoader 创建 Loader。
func NewLoader(cfg config.InputConfig, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	length := cfg.WindowLength
	if length <= 0 {
		length = DefaultWindowLength
	}
	return &Loader{
		windowLength: length,
		newestFirst:  cfg.NewestFirst,
		logger:       logger,
	}
}

// Load 从文件读取窗口，offset 为从最新一端跳过的K线数量。
func (l *Loader) Load(path string, offset int) (PriceWindow, error) {
	f, err := os.Open(path)
	if err != nil {
		return PriceWindow{}, fmt.Errorf("打开数据文件失败: %w", err)
	}
	defer f.Close()

	window, err := l.Read(f, path, offset)
	if err != nil {
		return PriceWindow{}, err
	}
	window.Dataset = DatasetName(path)
	return window, nil
}

// Read 从 reader 读取全部行并选取窗口。
// 文件为最新在前时先反转为时间升序，再选取 [rows-offset-N, rows-offset) 区间。
func (l *Loader) Read(r io.Reader, name string, offset int) (PriceWindow, error) {
	if offset < 0 {
		return PriceWindow{}, fmt.Errorf("%w: offset %d 不能为负", ErrInputFormat, offset)
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = false

	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return PriceWindow{}, fmt.Errorf("%w: 读取 %s 失败: %v", ErrInputFormat, name, err)
		}
		records = append(records, record)
	}

	rows := make([]int, len(records))
	for i := range rows {
		rows[i] = i
	}
	if l.newestFirst {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}

	rowCount := len(rows)
	start := rowCount - offset - l.windowLength
	if start < 0 {
		return PriceWindow{}, fmt.Errorf("%w: %s 共 %d 行，需要至少 %d 行 (offset=%d, window=%d)",
			ErrIndexOutOfRange, name, rowCount, offset+l.windowLength, offset, l.windowLength)
	}

	bars := make([]PriceBar, 0, l.windowLength)
	var lowest, highest decimal.Decimal
	for i, row := range rows[start : rowCount-offset] {
		bar, low, high, err := parseRow(records[row], name, row)
		if err != nil {
			return PriceWindow{}, err
		}
		if i == 0 || low.LessThan(lowest) {
			lowest = low
		}
		if i == 0 || high.GreaterThan(highest) {
			highest = high
		}
		bars = append(bars, bar)
	}

	one := decimal.NewFromInt(1)
	window := PriceWindow{
		Dataset: name,
		Offset:  offset,
		Bars:    bars,
		Lowest:  lowest.RoundBank(0).Sub(one).InexactFloat64(),
		Highest: highest.RoundBank(0).Add(one).InexactFloat64(),
	}

	l.logger.Debug("数据窗口已加载",
		zap.String("dataset", name),
		zap.Int("rows", rowCount),
		zap.Int("offset", offset),
		zap.Int("bars", len(bars)),
		zap.Float64("lowest", window.Lowest),
		zap.Float64("highest", window.Highest),
	)

	return window, nil
}

// parseRow 解析一行，返回K线以及该行 high/low 中的较小值与较大值。
func parseRow(record []string, name string, row int) (PriceBar, decimal.Decimal, decimal.Decimal, error) {
	if len(record) < minColumns {
		return PriceBar{}, decimal.Decimal{}, decimal.Decimal{}, &RowError{
			Path: name, Row: row, Column: -1,
			Err: fmt.Errorf("需要至少 %d 列，实际 %d 列", minColumns, len(record)),
		}
	}

	values := make([]decimal.Decimal, minColumns)
	for col := colOpen; col <= colVolume; col++ {
		d, err := decimal.NewFromString(strings.TrimSpace(record[col]))
		if err != nil {
			return PriceBar{}, decimal.Decimal{}, decimal.Decimal{}, &RowError{Path: name, Row: row, Column: col, Err: err}
		}
		values[col] = d
	}

	label := strings.TrimSpace(record[colDate])
	if clock := strings.TrimSpace(record[colTime]); strings.Contains(clock, ":") {
		label = label + " " + clock
	}

	bar := PriceBar{
		Row:       row,
		Label:     label,
		Timestamp: parseTimestamp(label),
		Open:      values[colOpen].InexactFloat64(),
		High:      values[colHigh].InexactFloat64(),
		Low:       values[colLow].InexactFloat64(),
		Close:     values[colClose].InexactFloat64(),
		Volume:    values[colVolume].InexactFloat64(),
	}

	low, high := values[colLow], values[colHigh]
	if high.LessThan(low) {
		low, high = high, low
	}
	return bar, low, high, nil
}

func parseTimestamp(label string) time.Time {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, label); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}

// DatasetName 返回去掉目录与扩展名的数据集名称。
func DatasetName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
