package api

import (
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/reelindex/reelindex/internal/httputil"
	"github.com/reelindex/reelindex/internal/jobs"
	"github.com/reelindex/reelindex/internal/models"
)

type createIndexRequest struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Folders    []string `json:"folders"`
	RescanCron string   `json:"rescan_cron,omitempty"`
}

func (s *Server) handleCreateIndex(w http.ResponseWriter, r *http.Request) {
	var req createIndexRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Name == "" || len(req.Folders) == 0 {
		httputil.WriteError(w, http.StatusBadRequest, "bad_request", "name and at least one folder are required")
		return
	}

	idx := &models.Index{
		ID:      uuid.New(),
		Name:    req.Name,
		Type:    models.IndexType(req.Type),
		Status:  models.IndexStatusIdle,
		Folders: req.Folders,
	}
	if idx.Type == "" {
		idx.Type = models.IndexTypeVideos
	}
	if req.RescanCron != "" {
		idx.RescanCron = &req.RescanCron
	}
	if err := s.indexRepo.Create(idx); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	if idx.RescanCron != nil && s.scheduler != nil {
		if _, err := s.scheduler.RegisterRescan(*idx.RescanCron, idx.ID); err != nil {
			log.Printf("api: failed to register rescan for index %s: %v", idx.ID, err)
		}
	}
	httputil.WriteJSON(w, http.StatusCreated, idx)
}

func (s *Server) handleListIndexes(w http.ResponseWriter, r *http.Request) {
	indexes, err := s.indexRepo.List()
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, indexes)
}

func (s *Server) handleGetIndex(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "bad_request", "invalid index id")
		return
	}
	idx, err := s.indexRepo.GetByID(id)
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, idx)
}

// handleScanIndex enqueues a scan for the index, deduplicated by the job
// queue's per-index TaskID (§5), marks the index "queued", and returns the
// index's most recent scan_jobs row. The job runs asynchronously and records
// its own row only when it starts, so the row returned here is the previous
// scan's (null if the index has never been scanned).
func (s *Server) handleScanIndex(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "bad_request", "invalid index id")
		return
	}
	if _, err := s.indexRepo.GetByID(id); err != nil {
		httputil.WriteError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}

	taskID := "scan:index:" + id.String()
	if _, err := s.jobQueue.EnqueueUnique(jobs.TaskScanIndex, jobs.ScanPayload{IndexID: id.String()}, taskID); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "enqueue_error", err.Error())
		return
	}
	if err := s.indexRepo.SetStatus(id, models.IndexStatusQueued); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}

	job, err := s.indexRepo.LatestScanJob(id)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleCancelScan(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "bad_request", "invalid index id")
		return
	}
	taskID := "scan:index:" + id.String()
	if err := s.jobQueue.CancelProcessing(taskID); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "cancel_error", err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "cancel requested"})
}

func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "bad_request", "invalid index id")
		return
	}
	idx, err := s.indexRepo.GetByID(id)
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	job, err := s.indexRepo.LatestScanJob(id)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":   idx.Status,
		"progress": job,
	})
}
