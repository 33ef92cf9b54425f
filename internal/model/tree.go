package model

// RootFolderID 是唯一的隐式根目录。
const (
	RootFolderID   = "root"
	RootFolderName = "All Documents"
)

// TreeNode represents a node in the document library tree.
type TreeNode struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Kind     string      `json:"kind"` // "folder" 或 "file"
	Expanded bool        `json:"expanded,omitempty"`
	Size     string      `json:"size,omitempty"`
	Chunks   int         `json:"chunks,omitempty"`
	Status   string      `json:"status,omitempty"`
	Children []*TreeNode `json:"children,omitempty"`
}

// LibraryTree 是文档库视图的完整输出。
type LibraryTree struct {
	Root *TreeNode `json:"root"`
	Hint string    `json:"hint,omitempty"`
}
