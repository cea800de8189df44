package filetree

import (
	"boltforge/internal/artifact"
	"boltforge/internal/steps"
)

// Result is the outcome of folding pending steps into a tree.
type Result struct {
	Tree Tree
	// Consumed lists every pending step id in the order it was processed.
	Consumed []int64
	// Changed is true when at least one file was written.
	Changed bool
	// FirstNonEmpty is true when the input tree was empty and the result is not.
	FirstNonEmpty bool
}

// Merge applies pending steps to tree in order and returns the new tree.
// The input tree is never modified: every level touched by a write is copied,
// untouched subtrees are shared. The same inputs always yield the same result.
//
// Siblings are found by a linear scan over their paths. Generated projects are
// small and shallow, so no lookup index is kept.
func Merge(tree Tree, pending []steps.Step) Result {
	out := []FileNode(tree)
	res := Result{}

	for _, s := range pending {
		res.Consumed = append(res.Consumed, s.ID)

		switch s.Kind {
		case artifact.KindCreateFile:
			segs := Segments(s.Path)
			if len(segs) == 0 {
				continue
			}
			out = writeFile(out, "", segs, s.Code)
			res.Changed = true
		case artifact.KindCreateFolder, artifact.KindRunScript:
			// Acknowledged only.
		}
	}

	res.Tree = Tree(out)
	res.FirstNonEmpty = len(tree) == 0 && len(out) > 0
	return res
}

// writeFile returns a copy of level with content written at segs. A file in
// the way of a folder segment becomes a folder, and a folder at the final
// segment becomes a file; both keep their position among siblings.
func writeFile(level []FileNode, prefix string, segs []string, content string) []FileNode {
	name := segs[0]
	path := prefix + "/" + name

	next := make([]FileNode, len(level), len(level)+1)
	copy(next, level)
	i := indexOf(next, path)

	if len(segs) == 1 {
		file := FileNode{Name: name, Type: TypeFile, Path: path, Content: content}
		if i < 0 {
			return append(next, file)
		}
		next[i] = file
		return next
	}

	switch {
	case i < 0:
		next = append(next, FileNode{Name: name, Type: TypeFolder, Path: path, Children: []FileNode{}})
		i = len(next) - 1
	case next[i].Type != TypeFolder:
		next[i] = FileNode{Name: name, Type: TypeFolder, Path: path, Children: []FileNode{}}
	}

	next[i].Children = writeFile(next[i].Children, path, segs[1:], content)
	return next
}
