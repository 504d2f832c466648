// Package vault defines the note file-system abstraction: discovery,
// reads with stat metadata, and mutations, all relative to a configured
// root.
package vault

import "github.com/starford/raido/internal/models"

// Provider is the interface for vault file operations. The index service
// consumes List, Read, and Stat; the editing surface uses the rest.
type Provider interface {
	// List returns metadata for every .md file under dir (relative to the
	// vault root).
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Stat returns metadata for a single file without reading it.
	Stat(path string) (models.NoteMetadata, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
	// Root returns the absolute vault root directory.
	Root() string
}
