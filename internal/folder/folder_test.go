package folder

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"documind/internal/service"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func paths(files []service.UploadFile) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Path)
	}
	return out
}

func TestWalk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.txt", "bee")
	writeFile(t, root, "notes/a.md", "# a")
	writeFile(t, root, "notes/deep/c.pdf", "%PDF")
	writeFile(t, root, ".git/config", "x")
	writeFile(t, root, "notes/.hidden.txt", "x")

	files, err := Walk(root, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt", "notes/a.md", "notes/deep/c.pdf"}, paths(files))

	f := files[1]
	assert.Equal(t, "a.md", f.Name)
	assert.Equal(t, int64(3), f.Size)
	rc, err := f.Open()
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "# a", string(data))

	files, err = Walk(root, []string{"**/*.md", "*.txt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt", "notes/a.md"}, paths(files))
}

func TestWalkErrors(t *testing.T) {
	root := t.TempDir()
	_, err := Walk(root, []string{"[unclosed"})
	assert.Error(t, err)

	_, err = Walk(filepath.Join(root, "missing"), nil)
	assert.Error(t, err)

	writeFile(t, root, "file.txt", "x")
	_, err = Walk(filepath.Join(root, "file.txt"), nil)
	assert.Error(t, err)
}

func TestMatch(t *testing.T) {
	assert.True(t, Match(nil, "a/b/c.txt"))
	assert.True(t, Match([]string{"docs/**"}, "docs/x/y.pdf"))
	assert.False(t, Match([]string{"docs/**"}, "other/y.pdf"))
	assert.False(t, Match([]string{"*.md"}, "sub/readme.md"))
}

func TestWatcherPicksUpNewFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "existing.txt", "old")

	var mu sync.Mutex
	var got []string
	w, err := NewWatcher(root, []string{"**/*.txt"}, 100*time.Millisecond, func(_ context.Context, files []service.UploadFile) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, paths(files)...)
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	// 等待监听注册完成
	time.Sleep(200 * time.Millisecond)

	writeFile(t, root, "new.txt", "fresh")
	writeFile(t, root, "skip.bin", "x")
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	time.Sleep(100 * time.Millisecond)
	writeFile(t, root, "sub/inner.txt", "nested")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"new.txt", "sub/inner.txt"}, got)
}
