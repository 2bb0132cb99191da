package scanner

import "fmt"

// SourcePathConflict is returned when the tracker is asked to track a second,
// different source_path while one is already tracked — for example a file
// inside one show's folder that classifies into another show.
type SourcePathConflict struct {
	First  string
	Second string
}

func (e *SourcePathConflict) Error() string {
	return fmt.Sprintf("source path conflict: expected %q but found %q", e.First, e.Second)
}

// RootUnavailable is returned when an index's root folder does not exist or
// is not a directory at scan time.
type RootUnavailable struct {
	Path string
}

func (e *RootUnavailable) Error() string {
	return fmt.Sprintf("root unavailable: %s", e.Path)
}

// Cancelled is returned when a scan's context was cancelled mid-traversal.
type Cancelled struct{}

func (e *Cancelled) Error() string { return "scan cancelled" }

// StorageError wraps a repository/database failure encountered during a scan.
type StorageError struct {
	Inner error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage error: %v", e.Inner) }
func (e *StorageError) Unwrap() error { return e.Inner }
