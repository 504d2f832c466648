package models

import "time"

// NoteMetadata is a lightweight representation returned by vault list
// and stat operations.
type NoteMetadata struct {
	Path       string    `json:"path"`
	Checksum   string    `json:"checksum"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}
