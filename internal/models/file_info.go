package models

import "time"

// FileInfo represents metadata about a stored container file.
type FileInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploadedAt"`
	ContainerID string    `json:"containerId,omitempty"`
	Status      string    `json:"status"` // "uploaded", "indexed", "error"
}
