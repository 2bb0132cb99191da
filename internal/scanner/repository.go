package scanner

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/reelindex/reelindex/internal/models"
)

// Repository is the persistence seam Orchestrator and Migrator depend on. Its
// method set matches *repository.VideoRepository exactly, so the concrete
// Postgres-backed repository satisfies it without any change; tests
// substitute an in-memory fake (see repository_fake_test.go) so the §8
// scenarios can run against real reconciliation logic without a database.
type Repository interface {
	GetItem(id uuid.UUID) (*models.VideoItem, error)
	GetItemTx(tx *sql.Tx, id uuid.UUID) (*models.VideoItem, error)
	FindItemBySourcePath(indexID uuid.UUID, sourcePath string) (*models.VideoItem, error)
	FindItemBySourcePathTx(tx *sql.Tx, indexID uuid.UUID, sourcePath string) (*models.VideoItem, error)
	FindChildByNumber(parentID uuid.UUID, childType models.ItemType, number int) (*models.VideoItem, error)
	FindByTitle(indexID uuid.UUID, itemType models.ItemType, title string) (*models.VideoItem, error)
	SetExternalIDs(tx *sql.Tx, itemID uuid.UUID, ids map[string]string) error
	CreateItem(tx *sql.Tx, item *models.VideoItem) error
	BubbleLatestAddedAt(tx *sql.Tx, itemID uuid.UUID, when time.Time) error
	SetItemSourcePath(tx *sql.Tx, itemID uuid.UUID, sourcePath *string) error
	DeleteItemIfChildless(tx *sql.Tx, itemID uuid.UUID) (bool, error)

	GetVersion(id uuid.UUID) (*models.VideoVersion, error)
	FindVersionByEdition(itemID uuid.UUID, edition *string) (*models.VideoVersion, error)
	FindVersionByEditionTx(tx *sql.Tx, itemID uuid.UUID, edition *string) (*models.VideoVersion, error)
	ListVersionsByItem(itemID uuid.UUID) ([]*models.VideoVersion, error)
	CreateVersion(tx *sql.Tx, v *models.VideoVersion) error
	ReparentVersion(tx *sql.Tx, versionID, newItemID uuid.UUID) error
	DeleteVersionIfEmpty(tx *sql.Tx, versionID uuid.UUID) (bool, error)

	FindPartBySizeAndHash(size int64, fastHash string) (*models.VideoPart, error)
	FindPartByPath(path string) (*models.VideoPart, error)
	CreatePart(tx *sql.Tx, p *models.VideoPart) error
	UpdatePartPath(tx *sql.Tx, partID uuid.UUID, newPath string, mtime time.Time) error
	TouchPart(tx *sql.Tx, partID uuid.UUID) error
	ReparentPart(tx *sql.Tx, partID, newVersionID uuid.UUID, newPath string, mtime time.Time) error
	DeletePart(tx *sql.Tx, partID uuid.UUID) error
	CountPartsInVersion(tx *sql.Tx, versionID uuid.UUID) (int, error)

	UpsertHierarchy(tx *sql.Tx, indexID uuid.UUID, showTitle, showSourcePath string, seasonNumber, episodeNumber int, episodeTitle string) (uuid.UUID, error)
	DeleteItemIfEmptyRecursive(tx *sql.Tx, itemID uuid.UUID) error
	VanishedParts(indexID uuid.UUID, scanStartedAt time.Time) ([]*models.VideoPart, error)

	RunTx(fn func(tx *sql.Tx) error) error
}
