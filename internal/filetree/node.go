// Package filetree holds the in-memory project tree built from file actions.
package filetree

import (
	"fmt"
	"strings"
)

// NodeType distinguishes files from folders.
type NodeType string

const (
	TypeFile   NodeType = "file"
	TypeFolder NodeType = "folder"
)

// FileNode is a file or folder in the project tree. Path is the accumulated
// slash path from the root with a leading "/", e.g. "/src/App.tsx".
// Children keep first-creation order.
type FileNode struct {
	Name     string     `json:"name"`
	Type     NodeType   `json:"type"`
	Path     string     `json:"path"`
	Content  string     `json:"content,omitempty"`
	Children []FileNode `json:"children,omitempty"`
}

// Tree is the ordered list of top-level nodes.
type Tree []FileNode

// Find returns the node at path, or nil. Leading, trailing and duplicate
// slashes in path are ignored.
func Find(tree Tree, path string) *FileNode {
	segs := Segments(path)
	if len(segs) == 0 {
		return nil
	}

	level := []FileNode(tree)
	prefix := ""
	for i, seg := range segs {
		prefix += "/" + seg
		idx := indexOf(level, prefix)
		if idx < 0 {
			return nil
		}
		if i == len(segs)-1 {
			return &level[idx]
		}
		level = level[idx].Children
	}
	return nil
}

// FirstFile returns the first file in depth-first pre-order, or nil when the
// tree holds no files.
func FirstFile(tree Tree) *FileNode {
	var found *FileNode
	Walk(tree, func(n *FileNode) bool {
		if n.Type == TypeFile {
			found = n
			return false
		}
		return true
	})
	return found
}

// Walk visits nodes depth-first in display order until fn returns false.
func Walk(tree Tree, fn func(n *FileNode) bool) {
	walk(tree, fn)
}

func walk(level []FileNode, fn func(n *FileNode) bool) bool {
	for i := range level {
		if !fn(&level[i]) {
			return false
		}
		if level[i].Type == TypeFolder && !walk(level[i].Children, fn) {
			return false
		}
	}
	return true
}

// CountFiles returns the number of file nodes in the tree.
func CountFiles(tree Tree) int {
	n := 0
	Walk(tree, func(node *FileNode) bool {
		if node.Type == TypeFile {
			n++
		}
		return true
	})
	return n
}

// Render draws the tree as an indented listing, folders suffixed with "/".
func Render(tree Tree) string {
	var b strings.Builder
	render(&b, tree, "")
	return b.String()
}

func render(b *strings.Builder, level []FileNode, indent string) {
	for i, n := range level {
		branch, childIndent := "├── ", indent+"│   "
		if i == len(level)-1 {
			branch, childIndent = "└── ", indent+"    "
		}
		if n.Type == TypeFolder {
			fmt.Fprintf(b, "%s%s%s/\n", indent, branch, n.Name)
			render(b, n.Children, childIndent)
			continue
		}
		fmt.Fprintf(b, "%s%s%s\n", indent, branch, n.Name)
	}
}

// Segments splits a slash path into its name segments. Empty, "." and ".."
// segments are dropped.
func Segments(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		switch s {
		case "", ".", "..":
			continue
		}
		out = append(out, s)
	}
	return out
}

func indexOf(level []FileNode, path string) int {
	for i := range level {
		if level[i].Path == path {
			return i
		}
	}
	return -1
}
