package folder

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"documind/internal/service"
	"documind/pkg/log"
)

// DefaultSettle 是文件最后一次写入后等待的时间，之后才把它当作已写完。
const DefaultSettle = 500 * time.Millisecond

// BatchFunc 接收一批新出现的文件。
type BatchFunc func(ctx context.Context, files []service.UploadFile)

// Watcher 监听目录中新建的文件，并在写入稳定后批量交给回调。
type Watcher struct {
	root    string
	include []string
	settle  time.Duration
	onBatch BatchFunc
}

// NewWatcher 创建一个目录监听器。settle <= 0 时使用 DefaultSettle。
func NewWatcher(root string, include []string, settle time.Duration, onBatch BatchFunc) (*Watcher, error) {
	if err := ValidatePatterns(include); err != nil {
		return nil, err
	}
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Watcher{root: root, include: include, settle: settle, onBatch: onBatch}, nil
}

// Run 阻塞直到 ctx 结束。只有新建的文件会被导入，已有文件的修改不会重复导入。
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := addRecursive(watcher, w.root); err != nil {
		return err
	}
	log.Infof("[FolderWatcher] 开始监听目录: %s", w.root)

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(watcher, event, pending)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("[FolderWatcher] fsnotify 错误: %v", err)
		case now := <-ticker.C:
			if batch := w.settled(pending, now); len(batch) > 0 {
				w.onBatch(ctx, batch)
			}
		}
	}
}

func (w *Watcher) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event, pending map[string]time.Time) {
	if hidden(filepath.Base(event.Name)) {
		return
	}
	switch {
	case event.Has(fsnotify.Create):
		if isDir(event.Name) {
			// 新建目录中的文件可能早于监听注册就已写入，这里一并收集
			if err := addRecursive(watcher, event.Name); err != nil {
				log.Warnf("[FolderWatcher] 添加子目录监听失败: %v", err)
			}
			_ = filepath.WalkDir(event.Name, func(path string, d fs.DirEntry, err error) error {
				if err == nil && !d.IsDir() {
					pending[path] = time.Now()
				}
				return nil
			})
			return
		}
		pending[event.Name] = time.Now()
	case event.Has(fsnotify.Write):
		if _, ok := pending[event.Name]; ok {
			pending[event.Name] = time.Now()
		}
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		delete(pending, event.Name)
	}
}

// settled 取出在 settle 时间内没有新写入的文件。
func (w *Watcher) settled(pending map[string]time.Time, now time.Time) []service.UploadFile {
	var batch []service.UploadFile
	for path, last := range pending {
		if now.Sub(last) < w.settle {
			continue
		}
		delete(pending, path)
		f, ok := fileAt(w.root, path)
		if ok && Match(w.include, f.Path) {
			batch = append(batch, f)
		}
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	return batch
}

func addRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && hidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
