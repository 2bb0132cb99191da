package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/reelindex/reelindex/internal/models"
)

type VideoRepository struct {
	db *sql.DB
}

func NewVideoRepository(db *sql.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

// RunTx begins a transaction, runs fn against it, and commits or rolls back
// depending on fn's error — the transaction boundary every scanner mutation
// runs inside (§4.4/§4.7).
func (r *VideoRepository) RunTx(fn func(tx *sql.Tx) error) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

const itemColumns = `id, index_id, parent_id, type, title, sort_title, year, number, source_path, metadata, added_at, latest_added_at`

func scanItem(row interface{ Scan(...interface{}) error }) (*models.VideoItem, error) {
	item := &models.VideoItem{}
	err := row.Scan(
		&item.ID, &item.IndexID, &item.ParentID, &item.Type, &item.Title, &item.SortTitle,
		&item.Year, &item.Number, &item.SourcePath, &item.Metadata, &item.AddedAt, &item.LatestAddedAt,
	)
	return item, err
}

// GetItem finds an item by ID or returns an error — the find-or-error idiom.
func (r *VideoRepository) GetItem(id uuid.UUID) (*models.VideoItem, error) {
	item, err := scanItem(r.db.QueryRow(`SELECT `+itemColumns+` FROM video_items WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("video item not found")
	}
	return item, err
}

// GetItemTx is GetItem scoped to an in-flight transaction.
func (r *VideoRepository) GetItemTx(tx *sql.Tx, id uuid.UUID) (*models.VideoItem, error) {
	item, err := scanItem(tx.QueryRow(`SELECT `+itemColumns+` FROM video_items WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("video item not found")
	}
	return item, err
}

// FindItemBySourcePath finds an item by (index, source_path) or returns
// (nil, nil) — the find-or-nil idiom, distinct from GetItem.
func (r *VideoRepository) FindItemBySourcePath(indexID uuid.UUID, sourcePath string) (*models.VideoItem, error) {
	item, err := scanItem(r.db.QueryRow(
		`SELECT `+itemColumns+` FROM video_items WHERE index_id = $1 AND source_path = $2`,
		indexID, sourcePath,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

// FindItemBySourcePathTx is FindItemBySourcePath scoped to an in-flight
// transaction, used during flush when the destination item may have just
// been created earlier in the same transaction.
func (r *VideoRepository) FindItemBySourcePathTx(tx *sql.Tx, indexID uuid.UUID, sourcePath string) (*models.VideoItem, error) {
	item, err := scanItem(tx.QueryRow(
		`SELECT `+itemColumns+` FROM video_items WHERE index_id = $1 AND source_path = $2`,
		indexID, sourcePath,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

// FindChildByNumber finds a direct child of parentID with the given type and
// number (season/episode number), or (nil, nil).
func (r *VideoRepository) FindChildByNumber(parentID uuid.UUID, childType models.ItemType, number int) (*models.VideoItem, error) {
	item, err := scanItem(r.db.QueryRow(
		`SELECT `+itemColumns+` FROM video_items WHERE parent_id = $1 AND type = $2 AND number = $3`,
		parentID, childType, number,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

// FindByTitle finds a top-level item (show or movie) in an index by
// case-insensitive title, or (nil, nil).
func (r *VideoRepository) FindByTitle(indexID uuid.UUID, itemType models.ItemType, title string) (*models.VideoItem, error) {
	item, err := scanItem(r.db.QueryRow(
		`SELECT `+itemColumns+` FROM video_items WHERE index_id = $1 AND type = $2 AND LOWER(title) = LOWER($3) AND parent_id IS NULL LIMIT 1`,
		indexID, itemType, title,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

// SetExternalIDs merges a provider-id map into an item's metadata bag under
// the "external_ids" key, leaving every other key untouched — the scanner
// writes only the field it owns.
func (r *VideoRepository) SetExternalIDs(tx *sql.Tx, itemID uuid.UUID, ids map[string]string) error {
	if len(ids) == 0 {
		return nil
	}
	payload, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	_, err = tx.Exec(
		`UPDATE video_items SET metadata = jsonb_set(metadata, '{external_ids}', $1::jsonb, true) WHERE id = $2`,
		payload, itemID,
	)
	return err
}

// CreateItem inserts a new item within tx and sets its generated timestamps.
func (r *VideoRepository) CreateItem(tx *sql.Tx, item *models.VideoItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Metadata == nil {
		item.Metadata = json.RawMessage(`{}`)
	}
	query := `
		INSERT INTO video_items (id, index_id, parent_id, type, title, sort_title, year, number, source_path, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING added_at, latest_added_at`
	return tx.QueryRow(query, item.ID, item.IndexID, item.ParentID, item.Type, item.Title,
		item.SortTitle, item.Year, item.Number, item.SourcePath, item.Metadata).
		Scan(&item.AddedAt, &item.LatestAddedAt)
}

// BubbleLatestAddedAt raises latest_added_at on itemID and every ancestor up
// to the root whenever when is newer than what is currently stored.
func (r *VideoRepository) BubbleLatestAddedAt(tx *sql.Tx, itemID uuid.UUID, when time.Time) error {
	current := &itemID
	for current != nil {
		var parentID *uuid.UUID
		res, err := tx.Exec(
			`UPDATE video_items SET latest_added_at = $1 WHERE id = $2 AND latest_added_at < $1`,
			when, *current,
		)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if err := tx.QueryRow(`SELECT parent_id FROM video_items WHERE id = $1`, *current).Scan(&parentID); err != nil {
			return err
		}
		if n == 0 {
			// already at or beyond `when` — ancestors were bubbled on a prior write.
			return nil
		}
		current = parentID
	}
	return nil
}

func (r *VideoRepository) SetItemSourcePath(tx *sql.Tx, itemID uuid.UUID, sourcePath *string) error {
	_, err := tx.Exec(`UPDATE video_items SET source_path = $1 WHERE id = $2`, sourcePath, itemID)
	return err
}

func (r *VideoRepository) DeleteItemIfChildless(tx *sql.Tx, itemID uuid.UUID) (bool, error) {
	var childCount, versionCount int
	if err := tx.QueryRow(`SELECT count(*) FROM video_items WHERE parent_id = $1`, itemID).Scan(&childCount); err != nil {
		return false, err
	}
	if err := tx.QueryRow(`SELECT count(*) FROM video_versions WHERE item_id = $1`, itemID).Scan(&versionCount); err != nil {
		return false, err
	}
	if childCount > 0 || versionCount > 0 {
		return false, nil
	}
	if _, err := tx.Exec(`DELETE FROM video_items WHERE id = $1`, itemID); err != nil {
		return false, err
	}
	return true, nil
}

const versionColumns = `id, item_id, edition, container, resolution, runtime_ms, width, height, video_codec, audio_codec, bitrate, metadata, created_at, updated_at`

func scanVersion(row interface{ Scan(...interface{}) error }) (*models.VideoVersion, error) {
	v := &models.VideoVersion{}
	err := row.Scan(&v.ID, &v.ItemID, &v.Edition, &v.Container, &v.Resolution, &v.RuntimeMs,
		&v.Width, &v.Height, &v.VideoCodec, &v.AudioCodec, &v.Bitrate, &v.Metadata, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

func (r *VideoRepository) GetVersion(id uuid.UUID) (*models.VideoVersion, error) {
	v, err := scanVersion(r.db.QueryRow(`SELECT `+versionColumns+` FROM video_versions WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("video version not found")
	}
	return v, err
}

// FindVersionByEdition finds a version of itemID whose edition matches
// (nil-edition matches nil-edition), or (nil, nil).
func (r *VideoRepository) FindVersionByEdition(itemID uuid.UUID, edition *string) (*models.VideoVersion, error) {
	var row *sql.Row
	if edition == nil {
		row = r.db.QueryRow(`SELECT `+versionColumns+` FROM video_versions WHERE item_id = $1 AND edition IS NULL`, itemID)
	} else {
		row = r.db.QueryRow(`SELECT `+versionColumns+` FROM video_versions WHERE item_id = $1 AND edition = $2`, itemID, *edition)
	}
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return v, err
}

// FindVersionByEditionTx is FindVersionByEdition scoped to an in-flight
// transaction.
func (r *VideoRepository) FindVersionByEditionTx(tx *sql.Tx, itemID uuid.UUID, edition *string) (*models.VideoVersion, error) {
	var row *sql.Row
	if edition == nil {
		row = tx.QueryRow(`SELECT `+versionColumns+` FROM video_versions WHERE item_id = $1 AND edition IS NULL`, itemID)
	} else {
		row = tx.QueryRow(`SELECT `+versionColumns+` FROM video_versions WHERE item_id = $1 AND edition = $2`, itemID, *edition)
	}
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return v, err
}

func (r *VideoRepository) ListVersionsByItem(itemID uuid.UUID) ([]*models.VideoVersion, error) {
	rows, err := r.db.Query(`SELECT `+versionColumns+` FROM video_versions WHERE item_id = $1`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.VideoVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *VideoRepository) CreateVersion(tx *sql.Tx, v *models.VideoVersion) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.Metadata == nil {
		v.Metadata = json.RawMessage(`{}`)
	}
	query := `
		INSERT INTO video_versions (id, item_id, edition, container, resolution, runtime_ms, width, height, video_codec, audio_codec, bitrate, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`
	return tx.QueryRow(query, v.ID, v.ItemID, v.Edition, v.Container, v.Resolution, v.RuntimeMs,
		v.Width, v.Height, v.VideoCodec, v.AudioCodec, v.Bitrate, v.Metadata).
		Scan(&v.CreatedAt, &v.UpdatedAt)
}

func (r *VideoRepository) ReparentVersion(tx *sql.Tx, versionID, newItemID uuid.UUID) error {
	_, err := tx.Exec(`UPDATE video_versions SET item_id = $1, updated_at = now() WHERE id = $2`, newItemID, versionID)
	return err
}

func (r *VideoRepository) DeleteVersionIfEmpty(tx *sql.Tx, versionID uuid.UUID) (bool, error) {
	var partCount int
	if err := tx.QueryRow(`SELECT count(*) FROM video_parts WHERE version_id = $1`, versionID).Scan(&partCount); err != nil {
		return false, err
	}
	if partCount > 0 {
		return false, nil
	}
	if _, err := tx.Exec(`DELETE FROM video_versions WHERE id = $1`, versionID); err != nil {
		return false, err
	}
	return true, nil
}

const partColumns = `id, version_id, path, size, mtime, part_index, fast_hash, created_at, updated_at`

func scanPart(row interface{ Scan(...interface{}) error }) (*models.VideoPart, error) {
	p := &models.VideoPart{}
	err := row.Scan(&p.ID, &p.VersionID, &p.Path, &p.Size, &p.Mtime, &p.PartIndex, &p.FastHash, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// FindPartBySizeAndHash is the scanner's primary existing-file lookup: two
// files are considered the same content if they agree on size and fast_hash.
func (r *VideoRepository) FindPartBySizeAndHash(size int64, fastHash string) (*models.VideoPart, error) {
	p, err := scanPart(r.db.QueryRow(`SELECT `+partColumns+` FROM video_parts WHERE size = $1 AND fast_hash = $2 LIMIT 1`, size, fastHash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *VideoRepository) FindPartByPath(path string) (*models.VideoPart, error) {
	p, err := scanPart(r.db.QueryRow(`SELECT `+partColumns+` FROM video_parts WHERE path = $1`, path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *VideoRepository) CreatePart(tx *sql.Tx, p *models.VideoPart) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	query := `
		INSERT INTO video_parts (id, version_id, path, size, mtime, part_index, fast_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`
	return tx.QueryRow(query, p.ID, p.VersionID, p.Path, p.Size, p.Mtime, p.PartIndex, p.FastHash).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

// UpdatePartPath rewrites a part's path and mtime in place — used for an
// mtime change, a move that keeps the same owner, and the rename row of the
// migration table (old_alive=F, new_exists=F).
func (r *VideoRepository) UpdatePartPath(tx *sql.Tx, partID uuid.UUID, newPath string, mtime time.Time) error {
	_, err := tx.Exec(`UPDATE video_parts SET path = $1, mtime = $2, updated_at = now() WHERE id = $3`, newPath, mtime, partID)
	return err
}

func (r *VideoRepository) TouchPart(tx *sql.Tx, partID uuid.UUID) error {
	_, err := tx.Exec(`UPDATE video_parts SET updated_at = now() WHERE id = $1`, partID)
	return err
}

// CountPartsInVersion reports how many parts still belong to versionID,
// used by the migration engine to decide whether a reparent can move the
// whole version or must split off a new one (§4.7).
func (r *VideoRepository) CountPartsInVersion(tx *sql.Tx, versionID uuid.UUID) (int, error) {
	var n int
	err := tx.QueryRow(`SELECT count(*) FROM video_parts WHERE version_id = $1`, versionID).Scan(&n)
	return n, err
}

// ReparentPart moves partID onto newVersionID and, since a reparent only
// fires once the file's physical location has changed, updates its path and
// mtime in the same statement.
func (r *VideoRepository) ReparentPart(tx *sql.Tx, partID, newVersionID uuid.UUID, newPath string, mtime time.Time) error {
	_, err := tx.Exec(`UPDATE video_parts SET version_id = $1, path = $2, mtime = $3, updated_at = now() WHERE id = $4`, newVersionID, newPath, mtime, partID)
	return err
}

func (r *VideoRepository) DeletePart(tx *sql.Tx, partID uuid.UUID) error {
	_, err := tx.Exec(`DELETE FROM video_parts WHERE id = $1`, partID)
	return err
}

// UpsertHierarchy is an idempotent walk-or-create across show → season →
// episode that never creates duplicate siblings: each level is looked up by
// its natural key (title for the show, number for season/episode) before a
// new row is created. Returns the episode item's id.
func (r *VideoRepository) UpsertHierarchy(tx *sql.Tx, indexID uuid.UUID, showTitle, showSourcePath string, seasonNumber int, episodeNumber int, episodeTitle string) (uuid.UUID, error) {
	show, err := r.findByTitleTx(tx, indexID, models.ItemTypeShow, showTitle)
	if err != nil {
		return uuid.Nil, err
	}
	if show == nil {
		sp := showSourcePath
		show = &models.VideoItem{IndexID: indexID, Type: models.ItemTypeShow, Title: showTitle, SourcePath: &sp}
		if err := r.createItemTx(tx, show); err != nil {
			return uuid.Nil, err
		}
	}

	season, err := r.findChildByNumberTx(tx, show.ID, models.ItemTypeSeason, seasonNumber)
	if err != nil {
		return uuid.Nil, err
	}
	if season == nil {
		title := seasonTitle(seasonNumber)
		n := seasonNumber
		season = &models.VideoItem{IndexID: indexID, ParentID: &show.ID, Type: models.ItemTypeSeason, Title: title, Number: &n}
		if err := r.createItemTx(tx, season); err != nil {
			return uuid.Nil, err
		}
	}

	episode, err := r.findChildByNumberTx(tx, season.ID, models.ItemTypeEpisode, episodeNumber)
	if err != nil {
		return uuid.Nil, err
	}
	if episode == nil {
		title := episodeTitle
		if title == "" {
			title = episodeTitleFallback(episodeNumber)
		}
		n := episodeNumber
		episode = &models.VideoItem{IndexID: indexID, ParentID: &season.ID, Type: models.ItemTypeEpisode, Title: title, Number: &n}
		if err := r.createItemTx(tx, episode); err != nil {
			return uuid.Nil, err
		}
	}
	return episode.ID, nil
}

func seasonTitle(number int) string {
	if number == 0 {
		return "Specials"
	}
	return fmt.Sprintf("Season %d", number)
}

func episodeTitleFallback(number int) string {
	return fmt.Sprintf("Episode %d", number)
}

func (r *VideoRepository) findByTitleTx(tx *sql.Tx, indexID uuid.UUID, itemType models.ItemType, title string) (*models.VideoItem, error) {
	item, err := scanItem(tx.QueryRow(
		`SELECT `+itemColumns+` FROM video_items WHERE index_id = $1 AND type = $2 AND LOWER(title) = LOWER($3) AND parent_id IS NULL LIMIT 1`,
		indexID, itemType, title,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

func (r *VideoRepository) findChildByNumberTx(tx *sql.Tx, parentID uuid.UUID, childType models.ItemType, number int) (*models.VideoItem, error) {
	item, err := scanItem(tx.QueryRow(
		`SELECT `+itemColumns+` FROM video_items WHERE parent_id = $1 AND type = $2 AND number = $3`,
		parentID, childType, number,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

func (r *VideoRepository) createItemTx(tx *sql.Tx, item *models.VideoItem) error {
	return r.CreateItem(tx, item)
}

// DeleteItemIfEmptyRecursive prunes itemID if it has no children/versions,
// then walks up its parent chain doing the same, stopping at the first
// ancestor that still has other content. This is the cascading cleanup §3
// invariant 2 and §4.3's delete_item_if_empty describe.
func (r *VideoRepository) DeleteItemIfEmptyRecursive(tx *sql.Tx, itemID uuid.UUID) error {
	for {
		item, err := scanItem(tx.QueryRow(`SELECT `+itemColumns+` FROM video_items WHERE id = $1`, itemID))
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		deleted, err := r.DeleteItemIfChildless(tx, itemID)
		if err != nil {
			return err
		}
		if !deleted || item.ParentID == nil {
			return nil
		}
		itemID = *item.ParentID
	}
}

// VanishedParts returns every part belonging to indexID whose updated_at
// predates the scan's start — i.e. it was not touched by the scan currently
// in progress, so the file is no longer on disk.
func (r *VideoRepository) VanishedParts(indexID uuid.UUID, scanStartedAt time.Time) ([]*models.VideoPart, error) {
	query := `
		SELECT p.id, p.version_id, p.path, p.size, p.mtime, p.part_index, p.fast_hash, p.created_at, p.updated_at
		FROM video_parts p
		JOIN video_versions v ON v.id = p.version_id
		JOIN video_items i ON i.id = v.item_id
		WHERE i.index_id = $1 AND p.updated_at < $2`
	rows, err := r.db.Query(query, indexID, scanStartedAt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.VideoPart
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
