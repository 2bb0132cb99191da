package scanner

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/reelindex/reelindex/internal/models"
)

// fakeRepository is an in-memory Repository used by the orchestrator/
// migration test suites so the reconciliation and migration scenarios in §8
// can run without a Postgres instance. It reproduces the natural-key lookup
// semantics of *repository.VideoRepository (find-or-nil vs find-or-error,
// idempotent hierarchy walk, cascading prune) closely enough to exercise
// them, not a general-purpose SQL emulator.
//
// RunTx snapshots the store before running its callback and restores it on
// error, mirroring a real transaction's rollback: it replaces each map with
// a copy holding a fresh copy of every entry, and the mutating methods below
// write through the pointers in those live maps, so the saved originals stay
// untouched. Pointers obtained before a RunTx call are stale afterwards.
type fakeRepository struct {
	mu       sync.Mutex
	items    map[uuid.UUID]*models.VideoItem
	versions map[uuid.UUID]*models.VideoVersion
	parts    map[uuid.UUID]*models.VideoPart
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		items:    map[uuid.UUID]*models.VideoItem{},
		versions: map[uuid.UUID]*models.VideoVersion{},
		parts:    map[uuid.UUID]*models.VideoPart{},
	}
}

func cloneItemMap(m map[uuid.UUID]*models.VideoItem) map[uuid.UUID]*models.VideoItem {
	out := make(map[uuid.UUID]*models.VideoItem, len(m))
	for k, v := range m {
		cp := *v
		out[k] = &cp
	}
	return out
}

func cloneVersionMap(m map[uuid.UUID]*models.VideoVersion) map[uuid.UUID]*models.VideoVersion {
	out := make(map[uuid.UUID]*models.VideoVersion, len(m))
	for k, v := range m {
		cp := *v
		out[k] = &cp
	}
	return out
}

func clonePartMap(m map[uuid.UUID]*models.VideoPart) map[uuid.UUID]*models.VideoPart {
	out := make(map[uuid.UUID]*models.VideoPart, len(m))
	for k, v := range m {
		cp := *v
		out[k] = &cp
	}
	return out
}

func (f *fakeRepository) RunTx(fn func(tx *sql.Tx) error) error {
	f.mu.Lock()
	items, versions, parts := f.items, f.versions, f.parts
	f.items, f.versions, f.parts = cloneItemMap(items), cloneVersionMap(versions), clonePartMap(parts)
	f.mu.Unlock()

	if err := fn(nil); err != nil {
		f.mu.Lock()
		f.items, f.versions, f.parts = items, versions, parts
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeRepository) GetItem(id uuid.UUID) (*models.VideoItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("video item not found")
	}
	return item, nil
}

func (f *fakeRepository) GetItemTx(tx *sql.Tx, id uuid.UUID) (*models.VideoItem, error) {
	return f.GetItem(id)
}

func (f *fakeRepository) FindItemBySourcePath(indexID uuid.UUID, sourcePath string) (*models.VideoItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items {
		if item.IndexID == indexID && item.SourcePath != nil && *item.SourcePath == sourcePath {
			return item, nil
		}
	}
	return nil, nil
}

func (f *fakeRepository) FindItemBySourcePathTx(tx *sql.Tx, indexID uuid.UUID, sourcePath string) (*models.VideoItem, error) {
	return f.FindItemBySourcePath(indexID, sourcePath)
}

func (f *fakeRepository) FindChildByNumber(parentID uuid.UUID, childType models.ItemType, number int) (*models.VideoItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findChildByNumberLocked(parentID, childType, number)
}

func (f *fakeRepository) findChildByNumberLocked(parentID uuid.UUID, childType models.ItemType, number int) (*models.VideoItem, error) {
	for _, item := range f.items {
		if item.ParentID != nil && *item.ParentID == parentID && item.Type == childType &&
			item.Number != nil && *item.Number == number {
			return item, nil
		}
	}
	return nil, nil
}

func (f *fakeRepository) FindByTitle(indexID uuid.UUID, itemType models.ItemType, title string) (*models.VideoItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findByTitleLocked(indexID, itemType, title)
}

func (f *fakeRepository) findByTitleLocked(indexID uuid.UUID, itemType models.ItemType, title string) (*models.VideoItem, error) {
	for _, item := range f.items {
		if item.IndexID == indexID && item.Type == itemType && item.ParentID == nil &&
			strings.EqualFold(item.Title, title) {
			return item, nil
		}
	}
	return nil, nil
}

func (f *fakeRepository) SetExternalIDs(tx *sql.Tx, itemID uuid.UUID, ids map[string]string) error {
	if len(ids) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok {
		return fmt.Errorf("video item not found")
	}
	bag := map[string]interface{}{}
	if len(item.Metadata) > 0 {
		if err := json.Unmarshal(item.Metadata, &bag); err != nil {
			return err
		}
	}
	bag["external_ids"] = ids
	encoded, err := json.Marshal(bag)
	if err != nil {
		return err
	}
	item.Metadata = encoded
	return nil
}

func (f *fakeRepository) CreateItem(tx *sql.Tx, item *models.VideoItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Metadata == nil {
		item.Metadata = json.RawMessage(`{}`)
	}
	now := time.Now()
	item.AddedAt, item.LatestAddedAt = now, now
	f.items[item.ID] = item
	return nil
}

func (f *fakeRepository) BubbleLatestAddedAt(tx *sql.Tx, itemID uuid.UUID, when time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current := &itemID
	for current != nil {
		item, ok := f.items[*current]
		if !ok {
			return nil
		}
		if !item.LatestAddedAt.Before(when) {
			return nil
		}
		item.LatestAddedAt = when
		current = item.ParentID
	}
	return nil
}

func (f *fakeRepository) SetItemSourcePath(tx *sql.Tx, itemID uuid.UUID, sourcePath *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok {
		return fmt.Errorf("video item not found")
	}
	item.SourcePath = sourcePath
	return nil
}

func (f *fakeRepository) DeleteItemIfChildless(tx *sql.Tx, itemID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleteItemIfChildlessLocked(itemID)
}

func (f *fakeRepository) deleteItemIfChildlessLocked(itemID uuid.UUID) (bool, error) {
	for _, item := range f.items {
		if item.ParentID != nil && *item.ParentID == itemID {
			return false, nil
		}
	}
	for _, v := range f.versions {
		if v.ItemID == itemID {
			return false, nil
		}
	}
	delete(f.items, itemID)
	return true, nil
}

func (f *fakeRepository) GetVersion(id uuid.UUID) (*models.VideoVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.versions[id]
	if !ok {
		return nil, fmt.Errorf("video version not found")
	}
	return v, nil
}

func (f *fakeRepository) FindVersionByEdition(itemID uuid.UUID, edition *string) (*models.VideoVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findVersionByEditionLocked(itemID, edition)
}

func (f *fakeRepository) FindVersionByEditionTx(tx *sql.Tx, itemID uuid.UUID, edition *string) (*models.VideoVersion, error) {
	return f.FindVersionByEdition(itemID, edition)
}

func (f *fakeRepository) findVersionByEditionLocked(itemID uuid.UUID, edition *string) (*models.VideoVersion, error) {
	for _, v := range f.versions {
		if v.ItemID != itemID {
			continue
		}
		if edition == nil && v.Edition == nil {
			return v, nil
		}
		if edition != nil && v.Edition != nil && *edition == *v.Edition {
			return v, nil
		}
	}
	return nil, nil
}

func (f *fakeRepository) ListVersionsByItem(itemID uuid.UUID) ([]*models.VideoVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.VideoVersion
	for _, v := range f.versions {
		if v.ItemID == itemID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeRepository) CreateVersion(tx *sql.Tx, v *models.VideoVersion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.Metadata == nil {
		v.Metadata = json.RawMessage(`{}`)
	}
	now := time.Now()
	v.CreatedAt, v.UpdatedAt = now, now
	f.versions[v.ID] = v
	return nil
}

func (f *fakeRepository) ReparentVersion(tx *sql.Tx, versionID, newItemID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.versions[versionID]
	if !ok {
		return fmt.Errorf("video version not found")
	}
	v.ItemID = newItemID
	v.UpdatedAt = time.Now()
	return nil
}

func (f *fakeRepository) DeleteVersionIfEmpty(tx *sql.Tx, versionID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.countPartsInVersionLocked(versionID)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	delete(f.versions, versionID)
	return true, nil
}

func (f *fakeRepository) FindPartBySizeAndHash(size int64, fastHash string) (*models.VideoPart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.parts {
		if p.Size == size && p.FastHash == fastHash {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakeRepository) FindPartByPath(path string) (*models.VideoPart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.parts {
		if p.Path == path {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakeRepository) CreatePart(tx *sql.Tx, p *models.VideoPart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	f.parts[p.ID] = p
	return nil
}

func (f *fakeRepository) UpdatePartPath(tx *sql.Tx, partID uuid.UUID, newPath string, mtime time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.parts[partID]
	if !ok {
		return fmt.Errorf("video part not found")
	}
	p.Path = newPath
	p.Mtime = mtime
	p.UpdatedAt = time.Now()
	return nil
}

func (f *fakeRepository) TouchPart(tx *sql.Tx, partID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.parts[partID]
	if !ok {
		return fmt.Errorf("video part not found")
	}
	p.UpdatedAt = time.Now()
	return nil
}

func (f *fakeRepository) ReparentPart(tx *sql.Tx, partID, newVersionID uuid.UUID, newPath string, mtime time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.parts[partID]
	if !ok {
		return fmt.Errorf("video part not found")
	}
	p.VersionID = newVersionID
	p.Path = newPath
	p.Mtime = mtime
	p.UpdatedAt = time.Now()
	return nil
}

func (f *fakeRepository) DeletePart(tx *sql.Tx, partID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.parts, partID)
	return nil
}

func (f *fakeRepository) CountPartsInVersion(tx *sql.Tx, versionID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countPartsInVersionLocked(versionID)
}

func (f *fakeRepository) countPartsInVersionLocked(versionID uuid.UUID) (int, error) {
	n := 0
	for _, p := range f.parts {
		if p.VersionID == versionID {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepository) UpsertHierarchy(tx *sql.Tx, indexID uuid.UUID, showTitle, showSourcePath string, seasonNumber, episodeNumber int, episodeTitle string) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	show, err := f.findByTitleLocked(indexID, models.ItemTypeShow, showTitle)
	if err != nil {
		return uuid.Nil, err
	}
	if show == nil {
		sp := showSourcePath
		show = &models.VideoItem{IndexID: indexID, Type: models.ItemTypeShow, Title: showTitle, SourcePath: &sp}
		if err := f.createItemLocked(show); err != nil {
			return uuid.Nil, err
		}
	}

	season, err := f.findChildByNumberLocked(show.ID, models.ItemTypeSeason, seasonNumber)
	if err != nil {
		return uuid.Nil, err
	}
	if season == nil {
		title := "Season " + itoa(seasonNumber)
		if seasonNumber == 0 {
			title = "Specials"
		}
		n := seasonNumber
		season = &models.VideoItem{IndexID: indexID, ParentID: &show.ID, Type: models.ItemTypeSeason, Title: title, Number: &n}
		if err := f.createItemLocked(season); err != nil {
			return uuid.Nil, err
		}
	}

	episode, err := f.findChildByNumberLocked(season.ID, models.ItemTypeEpisode, episodeNumber)
	if err != nil {
		return uuid.Nil, err
	}
	if episode == nil {
		title := episodeTitle
		if title == "" {
			title = "Episode " + itoa(episodeNumber)
		}
		n := episodeNumber
		episode = &models.VideoItem{IndexID: indexID, ParentID: &season.ID, Type: models.ItemTypeEpisode, Title: title, Number: &n}
		if err := f.createItemLocked(episode); err != nil {
			return uuid.Nil, err
		}
	}
	return episode.ID, nil
}

func (f *fakeRepository) createItemLocked(item *models.VideoItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Metadata == nil {
		item.Metadata = json.RawMessage(`{}`)
	}
	now := time.Now()
	item.AddedAt, item.LatestAddedAt = now, now
	f.items[item.ID] = item
	return nil
}

func (f *fakeRepository) DeleteItemIfEmptyRecursive(tx *sql.Tx, itemID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		item, ok := f.items[itemID]
		if !ok {
			return nil
		}
		deleted, err := f.deleteItemIfChildlessLocked(itemID)
		if err != nil {
			return err
		}
		if !deleted || item.ParentID == nil {
			return nil
		}
		itemID = *item.ParentID
	}
}

func (f *fakeRepository) VanishedParts(indexID uuid.UUID, scanStartedAt time.Time) ([]*models.VideoPart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.VideoPart
	for _, p := range f.parts {
		v, ok := f.versions[p.VersionID]
		if !ok {
			continue
		}
		item, ok := f.items[v.ItemID]
		if !ok || item.IndexID != indexID {
			continue
		}
		if p.UpdatedAt.Before(scanStartedAt) {
			out = append(out, p)
		}
	}
	return out, nil
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}
