package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"boltforge/internal/filetree"
)

// MountTree is the nested structure a sandbox mounts. Keys are file or folder
// names.
type MountTree map[string]MountEntry

// MountEntry is either a directory or a file.
type MountEntry struct {
	Directory MountTree  `json:"directory,omitempty"`
	File      *FileEntry `json:"file,omitempty"`
}

// FileEntry holds a file's literal contents.
type FileEntry struct {
	Contents string `json:"contents"`
}

// ToMountTree converts a project tree into the sandbox mount format.
func ToMountTree(tree filetree.Tree) MountTree {
	return toMount(tree)
}

func toMount(level []filetree.FileNode) MountTree {
	out := make(MountTree, len(level))
	for _, n := range level {
		switch n.Type {
		case filetree.TypeFolder:
			out[n.Name] = MountEntry{Directory: toMount(n.Children)}
		case filetree.TypeFile:
			out[n.Name] = MountEntry{File: &FileEntry{Contents: n.Content}}
		}
	}
	return out
}

// writeMount materialises tree under dir. Existing files are overwritten and
// an entry whose kind changed replaces what was there.
func writeMount(dir string, tree MountTree) error {
	for name, e := range tree {
		if err := checkEntryName(name); err != nil {
			return err
		}
		p := filepath.Join(dir, name)

		switch {
		case e.Directory != nil:
			if info, err := os.Lstat(p); err == nil && !info.IsDir() {
				if err := os.Remove(p); err != nil {
					return fmt.Errorf("replace file %s with directory: %w", p, err)
				}
			}
			if err := os.MkdirAll(p, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", p, err)
			}
			if err := writeMount(p, e.Directory); err != nil {
				return err
			}
		case e.File != nil:
			if info, err := os.Lstat(p); err == nil && info.IsDir() {
				if err := os.RemoveAll(p); err != nil {
					return fmt.Errorf("replace directory %s with file: %w", p, err)
				}
			}
			if err := os.WriteFile(p, []byte(e.File.Contents), 0o644); err != nil {
				return fmt.Errorf("write file %s: %w", p, err)
			}
		}
	}
	return nil
}

func checkEntryName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid mount entry name %q", name)
	}
	return nil
}
