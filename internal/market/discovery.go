package market

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Discover 返回 basePath 下匹配 pattern 的文件，按修改时间从新到旧排序并截取前 limit 个。
func Discover(basePath, pattern string, limit int) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(basePath, pattern))
	if err != nil {
		return nil, fmt.Errorf("匹配数据文件失败: %w", err)
	}

	type entry struct {
		path    string
		modTime time.Time
	}
	entries := make([]entry, 0, len(matches))
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		entries = append(entries, entry{path: path, modTime: info.ModTime()})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].modTime.After(entries[j].modTime)
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.path
	}
	return paths, nil
}
