// Package storage keeps derived entry artifacts (generated images) on disk.
package storage

// Provider is the interface for artifact file operations. Names are flat
// file names relative to the artifact root.
type Provider interface {
	// Save atomically writes a PNG for entryID and returns its new unique name.
	Save(entryID string, content []byte) (string, error)
	// Read returns the raw bytes of the artifact called name.
	Read(name string) ([]byte, error)
	// Delete removes the artifact called name. Missing files are not an error.
	Delete(name string) error
}
