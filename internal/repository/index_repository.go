package repository

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/reelindex/reelindex/internal/models"
)

type IndexRepository struct {
	db *sql.DB
}

func NewIndexRepository(db *sql.DB) *IndexRepository {
	return &IndexRepository{db: db}
}

func (r *IndexRepository) Create(idx *models.Index) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO indexes (id, name, type, status, rescan_cron)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`
	if err := tx.QueryRow(query, idx.ID, idx.Name, idx.Type, idx.Status, idx.RescanCron).
		Scan(&idx.CreatedAt, &idx.UpdatedAt); err != nil {
		return err
	}
	for i, folder := range idx.Folders {
		if _, err := tx.Exec(
			`INSERT INTO index_folders (id, index_id, path, sort_order) VALUES ($1, $2, $3, $4)`,
			uuid.New(), idx.ID, folder, i,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *IndexRepository) GetByID(id uuid.UUID) (*models.Index, error) {
	idx := &models.Index{}
	query := `SELECT id, name, type, status, rescan_cron, created_at, updated_at FROM indexes WHERE id = $1`
	err := r.db.QueryRow(query, id).Scan(&idx.ID, &idx.Name, &idx.Type, &idx.Status, &idx.RescanCron, &idx.CreatedAt, &idx.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("index not found")
	}
	if err != nil {
		return nil, err
	}
	idx.Folders, err = r.GetFolders(id)
	return idx, err
}

func (r *IndexRepository) GetFolders(indexID uuid.UUID) ([]string, error) {
	rows, err := r.db.Query(`SELECT path FROM index_folders WHERE index_id = $1 ORDER BY sort_order`, indexID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folders []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		folders = append(folders, path)
	}
	return folders, rows.Err()
}

func (r *IndexRepository) List() ([]*models.Index, error) {
	rows, err := r.db.Query(`SELECT id, name, type, status, rescan_cron, created_at, updated_at FROM indexes ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []*models.Index
	for rows.Next() {
		idx := &models.Index{}
		if err := rows.Scan(&idx.ID, &idx.Name, &idx.Type, &idx.Status, &idx.RescanCron, &idx.CreatedAt, &idx.UpdatedAt); err != nil {
			return nil, err
		}
		indexes = append(indexes, idx)
	}
	return indexes, rows.Err()
}

// SetRescanCron updates an index's periodic-rescan cron spec (nil clears it).
func (r *IndexRepository) SetRescanCron(id uuid.UUID, cronSpec *string) error {
	_, err := r.db.Exec(`UPDATE indexes SET rescan_cron = $1, updated_at = now() WHERE id = $2`, cronSpec, id)
	return err
}

func (r *IndexRepository) SetStatus(id uuid.UUID, status models.IndexStatus) error {
	_, err := r.db.Exec(`UPDATE indexes SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	return err
}

// CoerceScanningToQueued resets every index left in "scanning" back to
// "queued" — applied once at process startup, since a crash mid-scan leaves
// no in-memory orchestrator to finish the job the persisted status promised.
func (r *IndexRepository) CoerceScanningToQueued() (int64, error) {
	result, err := r.db.Exec(
		`UPDATE indexes SET status = $1, updated_at = now() WHERE status = $2`,
		models.IndexStatusQueued, models.IndexStatusScanning,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *IndexRepository) CreateScanJob(job *models.ScanJob) error {
	query := `
		INSERT INTO scan_jobs (id, index_id, status, files_seen)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`
	return r.db.QueryRow(query, job.ID, job.IndexID, job.Status, job.FilesSeen).Scan(&job.CreatedAt)
}

func (r *IndexRepository) UpdateScanJob(job *models.ScanJob) error {
	query := `
		UPDATE scan_jobs SET status = $1, files_seen = $2, error = $3, started_at = $4, finished_at = $5
		WHERE id = $6`
	_, err := r.db.Exec(query, job.Status, job.FilesSeen, job.Error, job.StartedAt, job.FinishedAt, job.ID)
	return err
}

func (r *IndexRepository) LatestScanJob(indexID uuid.UUID) (*models.ScanJob, error) {
	job := &models.ScanJob{}
	query := `
		SELECT id, index_id, status, files_seen, error, started_at, finished_at, created_at
		FROM scan_jobs WHERE index_id = $1 ORDER BY created_at DESC LIMIT 1`
	err := r.db.QueryRow(query, indexID).Scan(
		&job.ID, &job.IndexID, &job.Status, &job.FilesSeen, &job.Error, &job.StartedAt, &job.FinishedAt, &job.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}
