package artifact

// Kind is the closed set of build instructions an artifact can carry.
type Kind string

const (
	// KindCreateFolder marks the creation of an artifact. It does not map to a
	// real folder on disk.
	KindCreateFolder Kind = "create_folder"
	KindCreateFile   Kind = "create_file"
	KindRunScript    Kind = "run_script"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindCreateFolder, KindCreateFile, KindRunScript:
		return true
	}
	return false
}

// Action is a single typed instruction extracted from an assistant reply.
// Actions are never modified after Parse returns them.
type Action struct {
	ID          int64  `json:"id"`
	Kind        Kind   `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Path        string `json:"path,omitempty"`
	Code        string `json:"code,omitempty"`
}
