// Package storage defines the user-data directory abstraction.
package storage

// Provider is the interface for file operations inside one data directory.
type Provider interface {
	// Root returns the absolute path of the data directory.
	Root() string
	// Read returns the raw bytes of the file at name (relative to root).
	Read(name string) ([]byte, error)
	// Write atomically writes content to name (relative to root).
	Write(name string, content []byte) error
}
