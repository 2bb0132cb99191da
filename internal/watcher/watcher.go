// Package watcher triggers a rescan when an index's folders change on disk,
// debounced so a burst of file activity (an in-progress copy, an extraction)
// collapses into a single enqueue rather than one per event.
package watcher

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/reelindex/reelindex/internal/jobs"
	"github.com/reelindex/reelindex/internal/repository"
)

const debounceWindow = 5 * time.Second

// Watcher monitors index folders for filesystem changes and enqueues a scan
// for the owning index once activity in that folder settles.
type Watcher struct {
	indexRepo *repository.IndexRepository
	queue     *jobs.Queue
	fsw       *fsnotify.Watcher

	mu       sync.Mutex
	watched  map[string]uuid.UUID // folder path -> index ID
	debounce map[uuid.UUID]*time.Timer
	stop     chan struct{}
}

func New(indexRepo *repository.IndexRepository, queue *jobs.Queue) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		indexRepo: indexRepo,
		queue:     queue,
		fsw:       fsw,
		watched:   make(map[string]uuid.UUID),
		debounce:  make(map[uuid.UUID]*time.Timer),
		stop:      make(chan struct{}),
	}, nil
}

func (w *Watcher) Start() {
	go w.eventLoop()
	w.Refresh()
	log.Println("watcher: filesystem watcher started")
}

func (w *Watcher) Stop() {
	close(w.stop)
	w.fsw.Close()
}

// Refresh reloads the set of watched index folders, adding newly created
// indexes and dropping deleted ones.
func (w *Watcher) Refresh() {
	indexes, err := w.indexRepo.List()
	if err != nil {
		log.Printf("watcher: error loading indexes: %v", err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	desired := make(map[string]uuid.UUID)
	for _, idx := range indexes {
		for _, f := range idx.Folders {
			desired[f] = idx.ID
		}
	}

	for p := range w.watched {
		if _, ok := desired[p]; !ok {
			w.fsw.Remove(p)
			delete(w.watched, p)
		}
	}

	for p, id := range desired {
		if _, ok := w.watched[p]; ok {
			continue
		}
		if err := w.addRecursive(p, id); err != nil {
			log.Printf("watcher: error watching %s: %v", p, err)
		}
	}

	log.Printf("watcher: watching %d paths across %d indexes", len(w.watched), len(indexes))
}

func (w *Watcher) addRecursive(root string, indexID uuid.UUID) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				return nil
			}
			w.watched[path] = indexID
		}
		return nil
	})
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("watcher: error: %v", err)
		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".tmp") || strings.HasSuffix(base, ".part") {
		return
	}

	isCreate := event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
	isRemove := event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
	if !isCreate && !isRemove {
		return
	}

	if isCreate {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if id := w.resolveIndex(event.Name); id != uuid.Nil {
				w.mu.Lock()
				w.fsw.Add(event.Name)
				w.watched[event.Name] = id
				w.mu.Unlock()
			}
			return
		}
	}

	indexID := w.resolveIndex(event.Name)
	if indexID == uuid.Nil {
		return
	}
	w.scheduleRescan(indexID)
}

func (w *Watcher) resolveIndex(path string) uuid.UUID {
	w.mu.Lock()
	defer w.mu.Unlock()
	dir := filepath.Dir(path)
	for dir != "/" && dir != "." {
		if id, ok := w.watched[dir]; ok {
			return id
		}
		dir = filepath.Dir(dir)
	}
	return uuid.Nil
}

func (w *Watcher) scheduleRescan(indexID uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.debounce[indexID]; ok {
		timer.Stop()
	}
	w.debounce[indexID] = time.AfterFunc(debounceWindow, func() {
		w.mu.Lock()
		delete(w.debounce, indexID)
		w.mu.Unlock()

		taskID := "scan:index:" + indexID.String()
		if _, err := w.queue.EnqueueUnique(jobs.TaskScanIndex, jobs.ScanPayload{IndexID: indexID.String()}, taskID); err != nil {
			log.Printf("watcher: failed to enqueue rescan for %s: %v", indexID, err)
		}
	})
}
