package scanner

import (
	"time"

	"github.com/reelindex/reelindex/internal/classify"
)

// StagedVideo is a file the orchestrator has classified as TV or movie
// content, held until the source_path it belongs to is flushed.
type StagedVideo struct {
	FilePath string
	TV       *classify.TvInfo
	Movie    *classify.MovieInfo
	Generic  *classify.GenericInfo
	Size     int64
	Mtime    time.Time
	FastHash string
}

// StagedExtra is a file classified as an extra, held until its owning
// ancestor's source_path is flushed.
type StagedExtra struct {
	FilePath   string
	Extra      *classify.ExtraInfo
	SourcePath string
	Size       int64
	Mtime      time.Time
	FastHash   string
}

// Staging buffers new content discovered during a single scan pass, keyed by
// the source_path each file will eventually be filed under. It is wiped at
// the start of every scan — a crash mid-scan simply loses the in-memory
// buffer, and the next scan starts clean, which is the same crash-recovery
// posture as the original implementation's temp-directory wipe.
type Staging struct {
	newContent map[string][]*StagedVideo
	extras     map[string][]*StagedExtra
}

func NewStaging() *Staging {
	return &Staging{
		newContent: make(map[string][]*StagedVideo),
		extras:     make(map[string][]*StagedExtra),
	}
}

// Reset clears both buffers, re-establishing the wiped-at-scan-start
// invariant.
func (s *Staging) Reset() {
	s.newContent = make(map[string][]*StagedVideo)
	s.extras = make(map[string][]*StagedExtra)
}

func (s *Staging) AddVideo(sourcePath string, v *StagedVideo) {
	s.newContent[sourcePath] = append(s.newContent[sourcePath], v)
}

func (s *Staging) AddExtra(sourcePath string, e *StagedExtra) {
	s.extras[sourcePath] = append(s.extras[sourcePath], e)
}

// TakeVideos removes and returns every staged video for sourcePath.
func (s *Staging) TakeVideos(sourcePath string) []*StagedVideo {
	v := s.newContent[sourcePath]
	delete(s.newContent, sourcePath)
	return v
}

// TakeExtras removes and returns every staged extra for sourcePath.
func (s *Staging) TakeExtras(sourcePath string) []*StagedExtra {
	e := s.extras[sourcePath]
	delete(s.extras, sourcePath)
	return e
}

func (s *Staging) PendingSourcePaths() []string {
	seen := make(map[string]bool)
	for k := range s.newContent {
		seen[k] = true
	}
	for k := range s.extras {
		seen[k] = true
	}
	paths := make([]string, 0, len(seen))
	for k := range seen {
		paths = append(paths, k)
	}
	return paths
}
