package scanner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/reelindex/reelindex/internal/models"
)

// TestMigratorDecide exercises the §4.7 four-row decision table: whether the
// old directory is still on disk crossed with whether an item already owns
// the new source_path.
func TestMigratorDecide(t *testing.T) {
	root := t.TempDir()
	aliveDir := filepath.Join(root, "alive")
	if err := os.Mkdir(aliveDir, 0o755); err != nil {
		t.Fatal(err)
	}
	deadDir := filepath.Join(root, "dead-does-not-exist")

	cases := []struct {
		name       string
		oldPath    string
		newOwnerAt string // non-empty seeds an item at this source_path
		want       MigrationAction
	}{
		{"old gone, new free -> rename", deadDir, "", ActionRename},
		{"old gone, new owned -> merge", deadDir, "owned-by-merge", ActionMerge},
		{"old alive, new free -> split", aliveDir, "", ActionSplit},
		{"old alive, new owned -> move", aliveDir, "owned-by-move", ActionMove},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			repo := newFakeRepository()
			indexID := uuid.New()
			newPath := filepath.Join(root, "new-"+c.name)

			var wantOwner *models.VideoItem
			if c.newOwnerAt != "" {
				sp := newPath
				owner := &models.VideoItem{IndexID: indexID, Type: models.ItemTypeShow, Title: c.newOwnerAt, SourcePath: &sp}
				if err := repo.CreateItem(nil, owner); err != nil {
					t.Fatal(err)
				}
				wantOwner = owner
			}

			m := NewMigrator(repo)
			action, owner, err := m.Decide(indexID, c.oldPath, newPath)
			if err != nil {
				t.Fatalf("Decide: %v", err)
			}
			if action != c.want {
				t.Fatalf("action = %q, want %q", action, c.want)
			}
			if wantOwner != nil {
				if owner == nil || owner.ID != wantOwner.ID {
					t.Fatalf("owner = %v, want %v", owner, wantOwner)
				}
			} else if owner != nil {
				t.Fatalf("expected no owner, got %v", owner)
			}
		})
	}
}

// ApplyRename must persist both the item's new source_path and the moved
// part's new physical path — a regression test for the bug where a rename
// repointed the item but silently left the part at its old path.
func TestMigratorApplyRenamePersistsPartPath(t *testing.T) {
	repo := newFakeRepository()
	item := &models.VideoItem{IndexID: uuid.New(), Type: models.ItemTypeShow, Title: "Some Show"}
	if err := repo.CreateItem(nil, item); err != nil {
		t.Fatal(err)
	}
	version := &models.VideoVersion{ItemID: item.ID}
	if err := repo.CreateVersion(nil, version); err != nil {
		t.Fatal(err)
	}
	part := &models.VideoPart{VersionID: version.ID, Path: "/old/Some Show/Season 1/ep.mkv", Size: 10}
	if err := repo.CreatePart(nil, part); err != nil {
		t.Fatal(err)
	}

	m := NewMigrator(repo)
	newSourcePath := "/new/Some Show"
	newPartPath := "/new/Some Show/Season 1/ep.mkv"
	newMtime := time.Now()
	if err := m.ApplyRename(nil, item.ID, newSourcePath, part.ID, newPartPath, newMtime); err != nil {
		t.Fatalf("ApplyRename: %v", err)
	}

	got, err := repo.GetItem(item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SourcePath == nil || *got.SourcePath != newSourcePath {
		t.Fatalf("item source_path = %v, want %q", got.SourcePath, newSourcePath)
	}

	gotPart := repo.parts[part.ID]
	if gotPart.Path != newPartPath {
		t.Fatalf("part path = %q, want %q", gotPart.Path, newPartPath)
	}
	if !gotPart.Mtime.Equal(newMtime) {
		t.Fatalf("part mtime = %v, want %v", gotPart.Mtime, newMtime)
	}
}

// ApplyReparent with a single part in the version moves the whole version
// onto the destination item and still persists the part's new path.
func TestMigratorApplyReparentSinglePartMovesVersion(t *testing.T) {
	repo := newFakeRepository()
	fromItem := &models.VideoItem{IndexID: uuid.New(), Type: models.ItemTypeEpisode}
	toItem := &models.VideoItem{IndexID: fromItem.IndexID, Type: models.ItemTypeEpisode}
	for _, it := range []*models.VideoItem{fromItem, toItem} {
		if err := repo.CreateItem(nil, it); err != nil {
			t.Fatal(err)
		}
	}
	version := &models.VideoVersion{ItemID: fromItem.ID}
	if err := repo.CreateVersion(nil, version); err != nil {
		t.Fatal(err)
	}
	part := &models.VideoPart{VersionID: version.ID, Path: "/old/path/ep.mkv", Size: 5}
	if err := repo.CreatePart(nil, part); err != nil {
		t.Fatal(err)
	}

	m := NewMigrator(repo)
	newPath := "/new/path/ep.mkv"
	newMtime := time.Now()
	if err := m.ApplyReparent(nil, part.ID, version.ID, fromItem.ID, toItem.ID, newPath, newMtime); err != nil {
		t.Fatalf("ApplyReparent: %v", err)
	}

	gotVersion, err := repo.GetVersion(version.ID)
	if err != nil {
		t.Fatal(err)
	}
	if gotVersion.ItemID != toItem.ID {
		t.Fatalf("version item_id = %v, want %v", gotVersion.ItemID, toItem.ID)
	}
	gotPart := repo.parts[part.ID]
	if gotPart.Path != newPath {
		t.Fatalf("part path = %q, want %q", gotPart.Path, newPath)
	}
	if gotPart.VersionID != version.ID {
		t.Fatalf("part version_id changed unexpectedly to %v", gotPart.VersionID)
	}

	// fromItem had no remaining children/versions once its only version
	// moved away, so it must have been pruned.
	if _, err := repo.GetItem(fromItem.ID); err == nil {
		t.Fatal("expected fromItem to be pruned once empty")
	}
}

// ApplyReparent with more than one part in the version splits off a fresh
// version under the destination for just the moved part, leaving the other
// part (and the original version) behind.
func TestMigratorApplyReparentMultiPartSplitsVersion(t *testing.T) {
	repo := newFakeRepository()
	fromItem := &models.VideoItem{IndexID: uuid.New(), Type: models.ItemTypeMovie}
	toItem := &models.VideoItem{IndexID: fromItem.IndexID, Type: models.ItemTypeMovie}
	for _, it := range []*models.VideoItem{fromItem, toItem} {
		if err := repo.CreateItem(nil, it); err != nil {
			t.Fatal(err)
		}
	}
	version := &models.VideoVersion{ItemID: fromItem.ID}
	if err := repo.CreateVersion(nil, version); err != nil {
		t.Fatal(err)
	}
	partA := &models.VideoPart{VersionID: version.ID, Path: "/old/cd1.mkv", Size: 5, PartIndex: 1}
	partB := &models.VideoPart{VersionID: version.ID, Path: "/old/cd2.mkv", Size: 5, PartIndex: 2}
	for _, p := range []*models.VideoPart{partA, partB} {
		if err := repo.CreatePart(nil, p); err != nil {
			t.Fatal(err)
		}
	}

	m := NewMigrator(repo)
	newPath := "/new/cd1.mkv"
	newMtime := time.Now()
	if err := m.ApplyReparent(nil, partA.ID, version.ID, fromItem.ID, toItem.ID, newPath, newMtime); err != nil {
		t.Fatalf("ApplyReparent: %v", err)
	}

	movedPart := repo.parts[partA.ID]
	if movedPart.Path != newPath {
		t.Fatalf("moved part path = %q, want %q", movedPart.Path, newPath)
	}
	if movedPart.VersionID == version.ID {
		t.Fatal("moved part should now belong to a new version, not the original")
	}
	newVersion, err := repo.GetVersion(movedPart.VersionID)
	if err != nil {
		t.Fatal(err)
	}
	if newVersion.ItemID != toItem.ID {
		t.Fatalf("new version item_id = %v, want %v", newVersion.ItemID, toItem.ID)
	}

	stayedPart := repo.parts[partB.ID]
	if stayedPart.VersionID != version.ID {
		t.Fatalf("untouched part's version changed to %v, want %v", stayedPart.VersionID, version.ID)
	}

	// fromItem still owns the original version (with partB in it), so it
	// must not have been pruned.
	if _, err := repo.GetItem(fromItem.ID); err != nil {
		t.Fatal("fromItem should still exist: it still owns a non-empty version")
	}
}
