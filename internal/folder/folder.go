// Package folder 把本地目录转换为上传文件列表，供 CLI 导入、启动时的种子目录以及目录监听使用。
package folder

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"documind/internal/service"
)

// DefaultInclude 匹配目录下的所有文件。
var DefaultInclude = []string{"**/*"}

// ValidatePatterns 检查 include 模式是否合法。
func ValidatePatterns(include []string) error {
	for _, p := range include {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid include pattern %q", p)
		}
	}
	return nil
}

// Match 判断相对路径（以 / 分隔）是否命中任一 include 模式。空模式列表等同于 DefaultInclude。
func Match(include []string, rel string) bool {
	if len(include) == 0 {
		include = DefaultInclude
	}
	for _, p := range include {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// Walk 递归遍历 root，返回命中 include 的所有普通文件，按相对路径排序。隐藏文件和目录会被跳过。
func Walk(root string, include []string) ([]service.UploadFile, error) {
	if err := ValidatePatterns(include); err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var files []service.UploadFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && hidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		f, ok := fileAt(root, path)
		if ok && Match(include, f.Path) {
			files = append(files, f)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// fileAt 为 root 下的 path 构造上传文件，Path 为以 / 分隔的相对路径。
func fileAt(root, path string) (service.UploadFile, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return service.UploadFile{}, false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return service.UploadFile{}, false
	}
	return service.UploadFile{
		Name: info.Name(),
		Path: filepath.ToSlash(rel),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, true
}
