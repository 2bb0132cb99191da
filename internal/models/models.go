// Package models defines the persisted entities of the video library scanner:
// Index, VideoItem, VideoVersion, VideoPart, and the ScanJob state machine row.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type IndexType string

const (
	IndexTypeVideos IndexType = "videos"
	IndexTypePhotos IndexType = "photos"
	IndexTypeAudio  IndexType = "audio"
)

type IndexStatus string

const (
	IndexStatusIdle     IndexStatus = "idle"
	IndexStatusQueued   IndexStatus = "queued"
	IndexStatusScanning IndexStatus = "scanning"
)

type Index struct {
	ID         uuid.UUID   `json:"id" db:"id"`
	Name       string      `json:"name" db:"name"`
	Type       IndexType   `json:"type" db:"type"`
	Status     IndexStatus `json:"status" db:"status"`
	RescanCron *string     `json:"rescan_cron,omitempty" db:"rescan_cron"`
	Folders    []string    `json:"folders" db:"-"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"`
}

type ItemType string

const (
	ItemTypeMovie   ItemType = "movie"
	ItemTypeShow    ItemType = "show"
	ItemTypeSeason  ItemType = "season"
	ItemTypeEpisode ItemType = "episode"
	ItemTypeVideo   ItemType = "video"
	ItemTypeExtra   ItemType = "extra"
)

// VideoItem is a node in the show/season/episode or movie hierarchy. Extras hang
// off whichever item their nearest non-extra ancestor folder resolved to.
type VideoItem struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	IndexID       uuid.UUID       `json:"index_id" db:"index_id"`
	ParentID      *uuid.UUID      `json:"parent_id,omitempty" db:"parent_id"`
	Type          ItemType        `json:"type" db:"type"`
	Title         string          `json:"title" db:"title"`
	SortTitle     *string         `json:"sort_title,omitempty" db:"sort_title"`
	Year          *int            `json:"year,omitempty" db:"year"`
	Number        *int            `json:"number,omitempty" db:"number"`
	SourcePath    *string         `json:"source_path,omitempty" db:"source_path"`
	Metadata      json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	AddedAt       time.Time       `json:"added_at" db:"added_at"`
	LatestAddedAt time.Time       `json:"latest_added_at" db:"latest_added_at"`
}

type VideoVersion struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	ItemID     uuid.UUID       `json:"item_id" db:"item_id"`
	Edition    *string         `json:"edition,omitempty" db:"edition"`
	Container  *string         `json:"container,omitempty" db:"container"`
	Resolution *string         `json:"resolution,omitempty" db:"resolution"`
	RuntimeMs  *int64          `json:"runtime_ms,omitempty" db:"runtime_ms"`
	Width      *int            `json:"width,omitempty" db:"width"`
	Height     *int            `json:"height,omitempty" db:"height"`
	VideoCodec *string         `json:"video_codec,omitempty" db:"video_codec"`
	AudioCodec *string         `json:"audio_codec,omitempty" db:"audio_codec"`
	Bitrate    *int64          `json:"bitrate,omitempty" db:"bitrate"`
	Metadata   json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

type VideoPart struct {
	ID        uuid.UUID `json:"id" db:"id"`
	VersionID uuid.UUID `json:"version_id" db:"version_id"`
	Path      string    `json:"path" db:"path"`
	Size      int64     `json:"size" db:"size"`
	Mtime     time.Time `json:"mtime" db:"mtime"`
	PartIndex int       `json:"part_index" db:"part_index"`
	FastHash  string    `json:"fast_hash" db:"fast_hash"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type ScanJobStatus string

const (
	ScanJobQueued    ScanJobStatus = "queued"
	ScanJobScanning  ScanJobStatus = "scanning"
	ScanJobDone      ScanJobStatus = "done"
	ScanJobFailed    ScanJobStatus = "failed"
	ScanJobCancelled ScanJobStatus = "cancelled"
)

type ScanJob struct {
	ID         uuid.UUID     `json:"id" db:"id"`
	IndexID    uuid.UUID     `json:"index_id" db:"index_id"`
	Status     ScanJobStatus `json:"status" db:"status"`
	FilesSeen  int           `json:"files_seen" db:"files_seen"`
	Error      *string       `json:"error,omitempty" db:"error"`
	StartedAt  *time.Time    `json:"started_at,omitempty" db:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty" db:"finished_at"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}

// ScanProgress is pushed to progress listeners (the job handler, the WebSocket
// hub) as each file is processed and once more, with Done set, when the scan
// completes.
type ScanProgress struct {
	IndexID   uuid.UUID `json:"index_id"`
	FilesSeen int       `json:"files_seen"`
	Current   string    `json:"current,omitempty"`
	Done      bool      `json:"done"`
	Error     string    `json:"error,omitempty"`
}
