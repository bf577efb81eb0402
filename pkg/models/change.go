package models

// FileChange summarizes one file in a commit's diff against its first parent.
type FileChange struct {
	Path    string `json:"path"` // new path; old path for deletions
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
	Deleted bool   `json:"deleted,omitempty"`
}
