package scanner

// SourcePathTracker enforces the single-slot invariant: at most one
// source_path may be "in progress" (being accumulated into staging) at a
// time during a depth-first traversal. Ported from the original
// SourcePathTracker — track/remove on a single optional slot, conflict if a
// second, different path is tracked before the first is removed.
type SourcePathTracker struct {
	sourcePath *string
}

func NewSourcePathTracker() *SourcePathTracker {
	return &SourcePathTracker{}
}

// Track records sourcePath as the currently in-progress source path. If a
// different path is already tracked, it returns a *SourcePathConflict.
func (t *SourcePathTracker) Track(sourcePath string) error {
	if t.sourcePath == nil {
		t.sourcePath = &sourcePath
		return nil
	}
	if *t.sourcePath == sourcePath {
		return nil
	}
	return &SourcePathConflict{First: *t.sourcePath, Second: sourcePath}
}

func (t *SourcePathTracker) HasSourcePath() bool {
	return t.sourcePath != nil
}

func (t *SourcePathTracker) GetSourcePath() (string, bool) {
	if t.sourcePath == nil {
		return "", false
	}
	return *t.sourcePath, true
}

// Remove clears the slot if it holds sourcePath. Returns false (and leaves
// the slot untouched) if a different path is currently tracked.
func (t *SourcePathTracker) Remove(sourcePath string) bool {
	if t.sourcePath == nil || *t.sourcePath != sourcePath {
		return false
	}
	t.sourcePath = nil
	return true
}
