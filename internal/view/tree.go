package view

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"documind/internal/model"
)

const NoDocumentsHint = "No documents uploaded yet"

// DeletePrompt 返回删除确认提示语。
func DeletePrompt(name string) string {
	return fmt.Sprintf("Delete \"%s\"? This action cannot be undone.", name)
}

// Expansion 记录展开的目录 ID 集合，默认只展开根目录。未知 ID 不会产生影响。
type Expansion struct {
	mu  sync.RWMutex
	ids map[string]bool
}

// NewExpansion 根据给定 ID 创建展开状态；不传时默认展开 root。
func NewExpansion(ids ...string) *Expansion {
	e := &Expansion{ids: make(map[string]bool)}
	if len(ids) == 0 {
		ids = []string{model.RootFolderID}
	}
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			e.ids[id] = true
		}
	}
	return e
}

// ParseExpansion 解析逗号分隔的目录 ID 列表。空字符串表示默认状态。
func ParseExpansion(raw string) *Expansion {
	if strings.TrimSpace(raw) == "" {
		return NewExpansion()
	}
	return NewExpansion(strings.Split(raw, ",")...)
}

// Toggle 切换目录的展开状态，返回切换后是否展开。
func (e *Expansion) Toggle(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ids[id] {
		delete(e.ids, id)
		return false
	}
	e.ids[id] = true
	return true
}

// IsExpanded 判断目录是否展开。
func (e *Expansion) IsExpanded(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ids[id]
}

// BuildTree 把所有文档按插入顺序放在隐式根目录下。根目录折叠时不输出子节点。
func BuildTree(docs []model.Document, exp *Expansion) model.LibraryTree {
	if exp == nil {
		exp = NewExpansion()
	}
	root := &model.TreeNode{
		ID:       model.RootFolderID,
		Name:     model.RootFolderName,
		Kind:     "folder",
		Expanded: exp.IsExpanded(model.RootFolderID),
	}
	tree := model.LibraryTree{Root: root}
	if len(docs) == 0 {
		tree.Hint = NoDocumentsHint
		return tree
	}
	if !root.Expanded {
		return tree
	}
	root.Children = make([]*model.TreeNode, 0, len(docs))
	for _, d := range docs {
		root.Children = append(root.Children, &model.TreeNode{
			ID:     strconv.FormatUint(d.ID, 10),
			Name:   d.Name,
			Kind:   "file",
			Size:   FormatFileSize(d.Size),
			Chunks: d.Chunks,
			Status: string(d.Status),
		})
	}
	return tree
}
