package view

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"documind/internal/model"
)

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1023, "1023 B"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{2048, "2 KB"},
		{500000, "488.28 KB"},
		{1048576, "1 MB"},
		{1073741824, "1 GB"},
		{5 * 1024 * 1024 * 1024 * 1024, "5120 GB"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.bytes), func(t *testing.T) {
			assert.Equal(t, tt.want, FormatFileSize(tt.bytes))
		})
	}
}

func TestStatus(t *testing.T) {
	docs := []model.Document{
		{Name: "a", Chunks: 3, Status: model.StatusProcessed},
		{Name: "b", Chunks: 0, Status: model.StatusFailed},
		{Name: "c", Chunks: 0, Status: model.StatusProcessing},
		{Name: "d", Chunks: 4, Status: model.StatusProcessed},
	}
	st := Status(docs)
	assert.Equal(t, 4, st.Documents)
	assert.Equal(t, 7, st.Chunks)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 1, st.Processing)
	assert.True(t, st.ShowProgress)
	assert.InDelta(t, 75.0, st.Progress, 1e-9)

	settled := Status(docs[:2])
	assert.False(t, settled.ShowProgress)
	assert.Zero(t, settled.Progress)

	empty := Status(nil)
	assert.Equal(t, model.CollectionStats{}, empty.CollectionStats)
}

func TestTimelineCapsAtTen(t *testing.T) {
	base := time.Date(2024, 5, 1, 14, 5, 0, 0, time.UTC)
	var acts []model.Activity
	for i := 25; i > 0; i-- {
		acts = append(acts, model.Activity{ID: uint64(i), Type: model.ActivityUpload, Message: fmt.Sprintf("m%d", i), Timestamp: base})
	}

	tl := BuildTimeline(acts, time.UTC)
	require.Len(t, tl.Entries, TimelineSize)
	assert.Equal(t, uint64(25), tl.Entries[0].ID)
	assert.Equal(t, "02:05 PM", tl.Entries[0].Time)
	assert.Empty(t, tl.Hint)
}

func TestTimelineEmptyAndIcons(t *testing.T) {
	tl := BuildTimeline(nil, time.UTC)
	assert.Empty(t, tl.Entries)
	assert.Equal(t, NoActivityHint, tl.Hint)

	assert.Equal(t, "upload", Icon(model.ActivityUpload))
	assert.Equal(t, "settings", Icon(model.ActivityModelChange))
	assert.Equal(t, "trash", Icon(model.ActivityDelete))
	assert.Equal(t, "clock", Icon(model.ActivityReindex))
	assert.Equal(t, "clock", Icon("anything"))
}

func TestBuildTree(t *testing.T) {
	docs := []model.Document{
		{ID: 1, Name: "a.pdf", Size: 1536, Chunks: 2, Status: model.StatusProcessed},
		{ID: 2, Name: "b.txt", Size: 0, Chunks: 0, Status: model.StatusFailed},
	}

	tree := BuildTree(docs, nil)
	require.NotNil(t, tree.Root)
	assert.Equal(t, model.RootFolderID, tree.Root.ID)
	assert.Equal(t, "All Documents", tree.Root.Name)
	require.Len(t, tree.Root.Children, 2)
	assert.Equal(t, "a.pdf", tree.Root.Children[0].Name)
	assert.Equal(t, "1.5 KB", tree.Root.Children[0].Size)
	assert.Equal(t, "0 B", tree.Root.Children[1].Size)

	exp := NewExpansion()
	assert.False(t, exp.Toggle(model.RootFolderID))
	collapsed := BuildTree(docs, exp)
	assert.False(t, collapsed.Root.Expanded)
	assert.Empty(t, collapsed.Root.Children)

	// 未知 ID 不影响根目录
	exp.Toggle("nope")
	assert.True(t, exp.Toggle(model.RootFolderID))
	assert.Len(t, BuildTree(docs, exp).Root.Children, 2)
}

func TestBuildTreeEmpty(t *testing.T) {
	tree := BuildTree(nil, ParseExpansion(""))
	assert.Equal(t, NoDocumentsHint, tree.Hint)
	assert.Empty(t, tree.Root.Children)
}

func TestParseExpansion(t *testing.T) {
	exp := ParseExpansion("root, other ,")
	assert.True(t, exp.IsExpanded("root"))
	assert.True(t, exp.IsExpanded("other"))
	assert.False(t, ParseExpansion("other").IsExpanded("root"))
}

func TestDeletePrompt(t *testing.T) {
	assert.Equal(t, `Delete "a.pdf"? This action cannot be undone.`, DeletePrompt("a.pdf"))
}
