package market

import (
	"errors"
	"fmt"
)

var (
	// ErrInputFormat 表示 CSV 行格式错误或数据不足，只中止当前数据集的运行。
	ErrInputFormat = errors.New("input format error")
	// ErrIndexOutOfRange 表示文件行数少于 offset+窗口长度。
	ErrIndexOutOfRange = fmt.Errorf("%w: index out of range", ErrInputFormat)
)

// RowError 描述某一行的解析失败。
type RowError struct {
	Path   string
	Row    int
	Column int
	Err    error
}

func (e *RowError) Error() string {
	if e.Column >= 0 {
		return fmt.Sprintf("%s 第 %d 行第 %d 列: %v", e.Path, e.Row, e.Column, e.Err)
	}
	return fmt.Sprintf("%s 第 %d 行: %v", e.Path, e.Row, e.Err)
}

func (e *RowError) Unwrap() []error {
	return []error{ErrInputFormat, e.Err}
}

// IsInputFormat 判断错误是否属于输入格式类错误。
func IsInputFormat(err error) bool {
	return errors.Is(err, ErrInputFormat)
}
