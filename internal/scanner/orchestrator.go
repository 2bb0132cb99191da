// Package scanner implements the orchestrator that walks an index's root
// folders, classifies each file, reconciles it against the repository, and
// materialises staged content into the show/season/episode or movie
// hierarchy on flush.
package scanner

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/reelindex/reelindex/internal/classify"
	"github.com/reelindex/reelindex/internal/fsprobe"
	"github.com/reelindex/reelindex/internal/models"
	"github.com/reelindex/reelindex/internal/repository"
)

var videoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true, ".wmv": true,
	".flv": true, ".ts": true, ".m2ts": true, ".webm": true, ".mpeg": true,
	".mpg": true, ".m4v": true,
}

// ScanResult summarises one ScanIndex call.
type ScanResult struct {
	IndexID       uuid.UUID
	FilesSeen     int
	RootsSkipped  []string
	VanishedParts int
}

type ProgressFunc func(models.ScanProgress)

// Orchestrator drives a single scan of an index. It is not safe for
// concurrent use by more than one goroutine against the same index — that
// guarantee is the job queue's job (§5), not this type's. It depends on the
// Repository seam rather than the concrete *repository.VideoRepository
// directly, so tests can substitute an in-memory fake (see
// orchestrator_test.go) and exercise the reconciliation/migration scenarios
// in §8 without a database.
type Orchestrator struct {
	repo       Repository
	indexRepo  *repository.IndexRepository
	migrator   *Migrator
	pool       *fsprobe.Pool
	onProgress ProgressFunc
}

// NewOrchestrator builds an Orchestrator against a live Postgres-backed
// repository. Tests construct an Orchestrator{} literal directly with a fake
// Repository instead of going through this constructor.
func NewOrchestrator(repo *repository.VideoRepository, indexRepo *repository.IndexRepository, workers, rateLimit int, onProgress ProgressFunc) *Orchestrator {
	return &Orchestrator{
		repo:       repo,
		indexRepo:  indexRepo,
		migrator:   NewMigrator(repo),
		pool:       fsprobe.NewPool(workers, rateLimit),
		onProgress: onProgress,
	}
}

func (o *Orchestrator) inTx(fn func(tx *sql.Tx) error) error {
	if err := o.repo.RunTx(fn); err != nil {
		if _, ok := err.(*StorageError); ok {
			return err
		}
		return &StorageError{Inner: err}
	}
	return nil
}

// ScanIndex walks every root folder of idx, reconciling discovered files
// against the repository and flushing completed source paths as it goes.
func (o *Orchestrator) ScanIndex(ctx context.Context, idx *models.Index) (*ScanResult, error) {
	result := &ScanResult{IndexID: idx.ID}
	scanStarted := time.Now()

	for _, root := range idx.Folders {
		if !dirExists(root) {
			log.Printf("scanner: root unavailable, skipping: %s", root)
			result.RootsSkipped = append(result.RootsSkipped, root)
			continue
		}

		staging := NewStaging()
		tracker := NewSourcePathTracker()

		if err := o.walkRoot(ctx, idx, root, staging, tracker, result); err != nil {
			if _, ok := err.(*Cancelled); ok {
				return result, err
			}
			if conflict, ok := err.(*SourcePathConflict); ok {
				return result, conflict
			}
			return result, err
		}

		for _, sp := range staging.PendingSourcePaths() {
			if err := o.flushSourcePath(idx, sp, staging); err != nil {
				return result, err
			}
		}
	}

	vanished, err := o.repo.VanishedParts(idx.ID, scanStarted)
	if err != nil {
		return result, &StorageError{Inner: err}
	}
	if len(vanished) > 0 {
		if err := o.pruneVanished(vanished); err != nil {
			return result, err
		}
		result.VanishedParts = len(vanished)
	}

	if o.onProgress != nil {
		o.onProgress(models.ScanProgress{IndexID: idx.ID, FilesSeen: result.FilesSeen, Done: true})
	}
	return result, nil
}

// walkFrame is one entry on walkRoot's explicit stack. A plain frame means
// "visit this directory"; an exit frame means "every descendant of this
// directory has now been visited" and is where the tracked source_path gets
// released, so that a source_path tracked by a file deep under dir is freed
// before the walk moves on to dir's next sibling.
type walkFrame struct {
	path string
	exit bool
}

func (o *Orchestrator) walkRoot(ctx context.Context, idx *models.Index, root string, staging *Staging, tracker *SourcePathTracker, result *ScanResult) error {
	stack := []walkFrame{{path: root}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return &Cancelled{}
		}
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if frame.exit {
			if tracker.Remove(frame.path) {
				if err := o.flushSourcePath(idx, frame.path, staging); err != nil {
					return err
				}
			}
			continue
		}

		entries, err := os.ReadDir(frame.path)
		if err != nil {
			log.Printf("scanner: skipping unreadable directory %s: %v", frame.path, err)
			continue
		}

		var files, subdirs []string
		for _, e := range entries {
			full := filepath.Join(frame.path, e.Name())
			if e.IsDir() {
				subdirs = append(subdirs, full)
			} else {
				files = append(files, full)
			}
		}
		sort.Strings(files)
		sort.Strings(subdirs)

		if err := o.processFiles(ctx, idx, files, staging, tracker, result); err != nil {
			return err
		}

		stack = append(stack, walkFrame{path: frame.path, exit: true})
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, walkFrame{path: subdirs[i]})
		}
	}
	return nil
}

// processFiles probes every video file in a directory concurrently through
// the fast-hash pool, then reconciles them one at a time, in filesystem
// order, so staging/tracker mutation stays single-threaded as §5 requires.
func (o *Orchestrator) processFiles(ctx context.Context, idx *models.Index, files []string, staging *Staging, tracker *SourcePathTracker, result *ScanResult) error {
	var candidates []string
	for _, f := range files {
		if videoExtensions[strings.ToLower(filepath.Ext(f))] {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	identities := make(map[string]fsprobe.Identity, len(candidates))
	results := make(chan fsprobe.Identity)
	go o.pool.Run(ctx, candidates, results)
	for id := range results {
		identities[id.Path] = id
	}

	for _, path := range candidates {
		if err := ctx.Err(); err != nil {
			return &Cancelled{}
		}
		id := identities[path]
		if id.Err != nil {
			log.Printf("scanner: skipping unreadable file %s: %v", path, id.Err)
			continue
		}
		result.FilesSeen++
		if o.onProgress != nil {
			o.onProgress(models.ScanProgress{IndexID: idx.ID, FilesSeen: result.FilesSeen, Current: path})
		}
		if err := o.processFile(idx, path, id, staging, tracker); err != nil {
			if conflict, ok := err.(*SourcePathConflict); ok {
				return conflict
			}
			log.Printf("scanner: error processing %s: %v", path, err)
		}
	}
	return nil
}

func (o *Orchestrator) processFile(idx *models.Index, path string, id fsprobe.Identity, staging *Staging, tracker *SourcePathTracker) error {
	mtime := time.Unix(id.Mtime, 0)
	cls := classify.Classify(path)

	existing, err := o.repo.FindPartBySizeAndHash(id.Size, id.FastHash)
	if err != nil {
		return &StorageError{Inner: err}
	}
	if existing != nil {
		return o.reconcileExisting(idx, existing, path, mtime, cls)
	}
	return o.stageNew(idx, path, id, mtime, cls, staging, tracker)
}

func (o *Orchestrator) reconcileExisting(idx *models.Index, existing *models.VideoPart, path string, mtime time.Time, cls classify.Result) error {
	if existing.Path == path {
		return o.inTx(func(tx *sql.Tx) error {
			if !existing.Mtime.Equal(mtime) {
				return o.repo.UpdatePartPath(tx, existing.ID, path, mtime)
			}
			// Mark the part as seen so VanishedParts does not prune it.
			return o.repo.TouchPart(tx, existing.ID)
		})
	}

	version, err := o.repo.GetVersion(existing.VersionID)
	if err != nil {
		return &StorageError{Inner: err}
	}
	oldItem, err := o.repo.GetItem(version.ItemID)
	if err != nil {
		return &StorageError{Inner: err}
	}

	if cls.Type == classify.MediaTV {
		return o.reconcileTVPart(idx, existing, oldItem, path, mtime, cls)
	}

	newSourcePath, hasSP := sourcePathOf(cls)
	var oldSourcePath string
	if oldItem.SourcePath != nil {
		oldSourcePath = *oldItem.SourcePath
	}

	if !hasSP || newSourcePath == oldSourcePath {
		return o.inTx(func(tx *sql.Tx) error {
			return o.repo.UpdatePartPath(tx, existing.ID, path, mtime)
		})
	}

	action, newOwner, err := o.migrator.Decide(idx.ID, oldSourcePath, newSourcePath)
	if err != nil {
		return err
	}

	return o.inTx(func(tx *sql.Tx) error {
		switch action {
		case ActionRename:
			return o.migrator.ApplyRename(tx, oldItem.ID, newSourcePath, existing.ID, path, mtime)
		case ActionMerge, ActionMove:
			return o.migrator.ApplyReparent(tx, existing.ID, existing.VersionID, oldItem.ID, newOwner.ID, path, mtime)
		case ActionSplit:
			dest, err := o.createDestinationItem(tx, idx.ID, cls, newSourcePath)
			if err != nil {
				return err
			}
			return o.migrator.ApplyReparent(tx, existing.ID, existing.VersionID, oldItem.ID, dest.ID, path, mtime)
		}
		return fmt.Errorf("scanner: unhandled migration action %q", action)
	})
}

// reconcileTVPart re-homes a moved TV episode part. Unlike movies, a TV
// episode's owning item never carries its own source_path — only the show
// does — so "did this file's directory move" and "did its season/episode
// number change" are two independent questions, both resolved through the
// same idempotent UpsertHierarchy walk: a show-folder rename repoints the
// show's source_path first, then the walk finds or creates the (possibly
// new) season/episode and reparents the part onto it, pruning the old
// episode/season up the chain if the move leaves them empty (§4.7 scenario
// S3: an episode moved from Season 1/ into Specials/).
func (o *Orchestrator) reconcileTVPart(idx *models.Index, existing *models.VideoPart, oldEpisode *models.VideoItem, path string, mtime time.Time, cls classify.Result) error {
	oldShow, err := o.showAncestor(oldEpisode)
	if err != nil {
		return err
	}
	var oldShowPath string
	if oldShow.SourcePath != nil {
		oldShowPath = *oldShow.SourcePath
	}
	newShowPath := cls.TV.SourcePath

	var renameShowID uuid.UUID
	if newShowPath != oldShowPath {
		action, _, err := o.migrator.Decide(idx.ID, oldShowPath, newShowPath)
		if err != nil {
			return err
		}
		if action == ActionRename {
			renameShowID = oldShow.ID
		}
	}

	return o.inTx(func(tx *sql.Tx) error {
		if renameShowID != uuid.Nil {
			if err := o.repo.SetItemSourcePath(tx, renameShowID, &newShowPath); err != nil {
				return &StorageError{Inner: err}
			}
		}

		episodeID, err := o.repo.UpsertHierarchy(tx, idx.ID, cls.TV.ShowName, newShowPath, cls.TV.Season, cls.TV.Episode, cls.TV.Title)
		if err != nil {
			return &StorageError{Inner: err}
		}
		if len(cls.TV.ExternalIDs) > 0 {
			if err := o.repo.SetExternalIDs(tx, episodeID, cls.TV.ExternalIDs); err != nil {
				return &StorageError{Inner: err}
			}
		}

		if episodeID == oldEpisode.ID {
			return o.repo.UpdatePartPath(tx, existing.ID, path, mtime)
		}
		return o.migrator.ApplyReparent(tx, existing.ID, existing.VersionID, oldEpisode.ID, episodeID, path, mtime)
	})
}

// showAncestor walks up item's parent chain to the show item that roots its
// hierarchy. Non-TV items and shows themselves return unchanged.
func (o *Orchestrator) showAncestor(item *models.VideoItem) (*models.VideoItem, error) {
	for item.Type != models.ItemTypeShow {
		if item.ParentID == nil {
			return item, nil
		}
		parent, err := o.repo.GetItem(*item.ParentID)
		if err != nil {
			return nil, &StorageError{Inner: err}
		}
		item = parent
	}
	return item, nil
}

// createDestinationItem creates the top-level show/movie item a Split
// migration needs before the part can be reparented onto it.
func (o *Orchestrator) createDestinationItem(tx *sql.Tx, indexID uuid.UUID, cls classify.Result, sourcePath string) (*models.VideoItem, error) {
	sp := sourcePath
	var item *models.VideoItem
	switch cls.Type {
	case classify.MediaTV:
		item = &models.VideoItem{IndexID: indexID, Type: models.ItemTypeShow, Title: cls.TV.ShowName, SourcePath: &sp}
	case classify.MediaMovie:
		year := cls.Movie.Year
		item = &models.VideoItem{IndexID: indexID, Type: models.ItemTypeMovie, Title: cls.Movie.Title, Year: &year, SourcePath: &sp}
	default:
		item = &models.VideoItem{IndexID: indexID, Type: models.ItemTypeVideo, Title: filepath.Base(sourcePath), SourcePath: &sp}
	}
	if err := o.repo.CreateItem(tx, item); err != nil {
		return nil, &StorageError{Inner: err}
	}
	return item, nil
}

func (o *Orchestrator) stageNew(idx *models.Index, path string, id fsprobe.Identity, mtime time.Time, cls classify.Result, staging *Staging, tracker *SourcePathTracker) error {
	switch cls.Type {
	case classify.MediaTV:
		sp := cls.TV.SourcePath
		if sp != "" {
			if err := tracker.Track(sp); err != nil {
				return err
			}
		}
		staging.AddVideo(sp, &StagedVideo{FilePath: path, TV: cls.TV, Size: id.Size, Mtime: mtime, FastHash: id.FastHash})

	case classify.MediaMovie:
		sp := cls.Movie.SourcePath
		if sp == "" && !tracker.HasSourcePath() {
			return o.flushImmediate(idx, path, id, mtime, cls)
		}
		if sp != "" {
			if err := tracker.Track(sp); err != nil {
				return err
			}
		}
		staging.AddVideo(sp, &StagedVideo{FilePath: path, Movie: cls.Movie, Size: id.Size, Mtime: mtime, FastHash: id.FastHash})

	case classify.MediaExtra:
		sp, _ := tracker.GetSourcePath()
		staging.AddExtra(sp, &StagedExtra{FilePath: path, Extra: cls.Extra, SourcePath: sp, Size: id.Size, Mtime: mtime, FastHash: id.FastHash})

	default: // Generic
		return o.flushImmediate(idx, path, id, mtime, cls)
	}
	return nil
}

// flushImmediate handles the orchestrator's shortcut for content that is not
// staged: a loose movie (no source_path, nothing tracked) or any generic
// file, inserted as its own item without waiting for a directory-exit flush.
func (o *Orchestrator) flushImmediate(idx *models.Index, path string, id fsprobe.Identity, mtime time.Time, cls classify.Result) error {
	return o.inTx(func(tx *sql.Tx) error {
		var item *models.VideoItem
		var edition *string

		switch cls.Type {
		case classify.MediaMovie:
			existing, err := o.repo.FindByTitle(idx.ID, models.ItemTypeMovie, cls.Movie.Title)
			if err != nil {
				return &StorageError{Inner: err}
			}
			if existing != nil {
				item = existing
			} else {
				year := cls.Movie.Year
				item = &models.VideoItem{IndexID: idx.ID, Type: models.ItemTypeMovie, Title: cls.Movie.Title, Year: &year}
				if err := o.repo.CreateItem(tx, item); err != nil {
					return &StorageError{Inner: err}
				}
			}
			if cls.Movie.Version != "" {
				edition = &cls.Movie.Version
			}
		default:
			item = &models.VideoItem{IndexID: idx.ID, Type: models.ItemTypeVideo, Title: titleOf(cls, path)}
			if err := o.repo.CreateItem(tx, item); err != nil {
				return &StorageError{Inner: err}
			}
		}

		version, err := o.repo.FindVersionByEditionTx(tx, item.ID, edition)
		if err != nil {
			return &StorageError{Inner: err}
		}
		if version == nil {
			version = &models.VideoVersion{ItemID: item.ID, Edition: edition}
			if err := o.repo.CreateVersion(tx, version); err != nil {
				return &StorageError{Inner: err}
			}
		}

		part := &models.VideoPart{VersionID: version.ID, Path: path, Size: id.Size, Mtime: mtime, FastHash: id.FastHash}
		if err := o.repo.CreatePart(tx, part); err != nil {
			return &StorageError{Inner: err}
		}
		return o.repo.BubbleLatestAddedAt(tx, item.ID, part.CreatedAt)
	})
}

func titleOf(cls classify.Result, path string) string {
	if cls.Generic != nil {
		return cls.Generic.Title
	}
	return filepath.Base(path)
}

func sourcePathOf(cls classify.Result) (string, bool) {
	switch cls.Type {
	case classify.MediaTV:
		return cls.TV.SourcePath, cls.TV.SourcePath != ""
	case classify.MediaMovie:
		return cls.Movie.SourcePath, cls.Movie.SourcePath != ""
	default:
		return "", false
	}
}
