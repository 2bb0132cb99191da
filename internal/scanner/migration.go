package scanner

import (
	"database/sql"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/reelindex/reelindex/internal/models"
)

// MigrationAction names which of the four §4.7 scenarios fired, for logging
// and tests.
type MigrationAction string

const (
	ActionRename MigrationAction = "rename"
	ActionMerge  MigrationAction = "merge"
	ActionSplit  MigrationAction = "split"
	ActionMove   MigrationAction = "move"
)

// Migrator resolves a part whose file moved to a new source_path that
// differs from the source_path its current owning item holds.
type Migrator struct {
	repo Repository
}

func NewMigrator(repo Repository) *Migrator {
	return &Migrator{repo: repo}
}

// Decide classifies which of the four §4.7 scenarios applies, without
// mutating anything. existingOwner is non-nil for merge/move (the item
// already at newSourcePath); nil for rename/split.
func (m *Migrator) Decide(indexID uuid.UUID, oldSourcePath, newSourcePath string) (MigrationAction, *models.VideoItem, error) {
	oldAlive := dirExists(oldSourcePath)

	newOwner, err := m.repo.FindItemBySourcePath(indexID, newSourcePath)
	if err != nil {
		return "", nil, &StorageError{Inner: err}
	}
	newExists := newOwner != nil

	switch {
	case !oldAlive && !newExists:
		return ActionRename, nil, nil
	case !oldAlive && newExists:
		return ActionMerge, newOwner, nil
	case oldAlive && !newExists:
		return ActionSplit, nil, nil
	default:
		return ActionMove, newOwner, nil
	}
}

// ApplyRename updates oldItemID's source_path in place and repoints the part
// that triggered the migration at its new physical path — the directory
// moved, so the file moved with it.
func (m *Migrator) ApplyRename(tx *sql.Tx, oldItemID uuid.UUID, newSourcePath string, partID uuid.UUID, newPath string, mtime time.Time) error {
	if err := m.repo.SetItemSourcePath(tx, oldItemID, &newSourcePath); err != nil {
		return &StorageError{Inner: err}
	}
	if err := m.repo.UpdatePartPath(tx, partID, newPath, mtime); err != nil {
		return &StorageError{Inner: err}
	}
	return nil
}

// ApplyReparent implements merge/move/split's shared tail: move partID (and
// possibly its whole version) from fromItemID to toItemID, per the
// reparent_part semantics in §4.7 — if the source version has more than one
// part, only this part moves, to a fresh version under the destination;
// otherwise the whole version moves. Either way the part's path/mtime are
// updated to newPath/mtime, since a reparent only happens once the file's
// physical location has actually changed. Empty ancestors are pruned
// afterward.
func (m *Migrator) ApplyReparent(tx *sql.Tx, partID, versionID, fromItemID, toItemID uuid.UUID, newPath string, mtime time.Time) error {
	version, err := m.repo.GetVersion(versionID)
	if err != nil {
		return &StorageError{Inner: err}
	}

	partCountInVersion, err := m.repo.CountPartsInVersion(tx, versionID)
	if err != nil {
		return &StorageError{Inner: err}
	}

	if partCountInVersion > 1 {
		newVersion := *version
		newVersion.ID = uuid.Nil
		newVersion.ItemID = toItemID
		if err := m.repo.CreateVersion(tx, &newVersion); err != nil {
			return &StorageError{Inner: err}
		}
		if err := m.repo.ReparentPart(tx, partID, newVersion.ID, newPath, mtime); err != nil {
			return &StorageError{Inner: err}
		}
	} else {
		if err := m.repo.ReparentVersion(tx, versionID, toItemID); err != nil {
			return &StorageError{Inner: err}
		}
		if err := m.repo.UpdatePartPath(tx, partID, newPath, mtime); err != nil {
			return &StorageError{Inner: err}
		}
	}

	if err := m.repo.DeleteItemIfEmptyRecursive(tx, fromItemID); err != nil {
		return &StorageError{Inner: err}
	}
	return nil
}

func dirExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
