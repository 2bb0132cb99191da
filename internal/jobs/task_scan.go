package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/reelindex/reelindex/internal/models"
	"github.com/reelindex/reelindex/internal/repository"
	"github.com/reelindex/reelindex/internal/scanner"
)

// ScanHandler drives one index scan to completion, recording a scan_jobs row
// and broadcasting progress, grounded on the teacher's ScanHandler
// (task_scan.go) but repointed at the orchestrator instead of the media
// scanner.
type ScanHandler struct {
	orchestrator *scanner.Orchestrator
	indexRepo    *repository.IndexRepository
	notifier     EventNotifier
}

func NewScanHandler(o *scanner.Orchestrator, indexRepo *repository.IndexRepository, notifier EventNotifier) *ScanHandler {
	return &ScanHandler{orchestrator: o, indexRepo: indexRepo, notifier: notifier}
}

func (h *ScanHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p ScanPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	indexID, err := uuid.Parse(p.IndexID)
	if err != nil {
		return fmt.Errorf("parse index id: %w", err)
	}

	idx, err := h.indexRepo.GetByID(indexID)
	if err != nil {
		return fmt.Errorf("get index: %w", err)
	}

	job := &models.ScanJob{ID: uuid.New(), IndexID: indexID, Status: models.ScanJobScanning}
	now := time.Now()
	job.StartedAt = &now
	if err := h.indexRepo.CreateScanJob(job); err != nil {
		return fmt.Errorf("create scan job: %w", err)
	}
	if err := h.indexRepo.SetStatus(indexID, models.IndexStatusScanning); err != nil {
		log.Printf("jobs: failed to set index %s scanning: %v", indexID, err)
	}

	log.Printf("jobs: scanning index %q", idx.Name)
	if h.notifier != nil {
		h.notifier.Broadcast("scan:progress", models.ScanProgress{IndexID: indexID})
	}

	result, scanErr := h.orchestrator.ScanIndex(ctx, idx)

	finished := time.Now()
	job.FinishedAt = &finished
	job.FilesSeen = result.FilesSeen
	if scanErr != nil {
		msg := scanErr.Error()
		job.Status = models.ScanJobFailed
		job.Error = &msg
		if _, ok := scanErr.(*scanner.Cancelled); ok {
			job.Status = models.ScanJobCancelled
			job.Error = nil
		}
	} else {
		job.Status = models.ScanJobDone
	}
	if err := h.indexRepo.UpdateScanJob(job); err != nil {
		log.Printf("jobs: failed to update scan job %s: %v", job.ID, err)
	}
	if err := h.indexRepo.SetStatus(indexID, models.IndexStatusIdle); err != nil {
		log.Printf("jobs: failed to set index %s idle: %v", indexID, err)
	}

	progress := models.ScanProgress{IndexID: indexID, FilesSeen: result.FilesSeen, Done: true}
	if scanErr != nil {
		progress.Error = scanErr.Error()
	}
	if h.notifier != nil {
		h.notifier.Broadcast("scan:done", progress)
	}

	if scanErr != nil {
		log.Printf("jobs: scan of index %q failed: %v", idx.Name, scanErr)
		return scanErr
	}
	log.Printf("jobs: scan of index %q complete - %d files seen, %d vanished", idx.Name, result.FilesSeen, result.VanishedParts)
	return nil
}
