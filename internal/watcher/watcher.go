// Package watcher feeds file-system change events into the index
// service. Update debouncing lives in the service; the watcher only
// reads content and forwards it.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/vault"
)

// Indexer is the slice of the index service the watcher drives.
type Indexer interface {
	UpdateFile(path string, content []byte)
	RemoveFile(path string)
	Index() *models.Index
}

// EventCallback is called after a watcher-driven index change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, path string)

// Watch starts an fsnotify watcher on the vault root and forwards file
// change events to the indexer until ctx is cancelled. It calls cb (if
// non-nil) after each forwarded change.
//
// New directories created at runtime are automatically added to the
// watch list. Rename events fire on the old path only, so a short
// reconciliation pass removes stale entries and picks up the new path.
func Watch(ctx context.Context, idx Indexer, store vault.Provider, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := store.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(idx, store, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			// New directories join the watch list; any notes already
			// inside them are indexed right away.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					}
					forwardDir(idx, store, root, absPath, cb)
					continue
				}
			}

			if !strings.HasSuffix(absPath, ".md") {
				continue
			}

			rel, relErr := filepath.Rel(root, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				data, readErr := store.Read(rel)
				if readErr != nil {
					logger.Warn("watcher: read failed",
						slog.String("path", rel), slog.String("error", readErr.Error()))
					continue
				}
				idx.UpdateFile(rel, data)
				kind := "updated"
				if ev.Op&fsnotify.Create != 0 {
					kind = "created"
				}
				logger.Debug("watcher: forwarded", slog.String("path", rel), slog.String("op", kind))
				if cb != nil {
					cb(kind, rel)
				}

			case ev.Op&fsnotify.Remove != 0:
				idx.RemoveFile(rel)
				logger.Debug("watcher: deleted", slog.String("path", rel))
				if cb != nil {
					cb("deleted", rel)
				}

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the OLD path only; the new
				// path arrives as a separate Create (if it lands in a
				// watched dir). Remove the old entry now and reconcile
				// shortly after for stragglers.
				idx.RemoveFile(rel)
				logger.Debug("watcher: rename old deleted", slog.String("path", rel))
				if cb != nil {
					cb("deleted", rel)
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcile compares the index snapshot against disk: entries without a
// file are removed, and files that are new or changed are re-forwarded.
func reconcile(idx Indexer, store vault.Provider, logger *slog.Logger, cb EventCallback) {
	metas, err := store.List("")
	if err != nil {
		logger.Warn("watcher: reconcile list failed", slog.String("error", err.Error()))
		return
	}

	snapshot := idx.Index()

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Path] = m.Checksum
	}

	for p := range snapshot.Files {
		if _, ok := disk[p]; !ok {
			idx.RemoveFile(p)
			logger.Debug("watcher: reconcile removed stale", slog.String("path", p))
			if cb != nil {
				cb("deleted", p)
			}
		}
	}

	for p, cs := range disk {
		if entry, ok := snapshot.Files[p]; ok && entry.ContentHash == cs {
			continue
		}
		data, readErr := store.Read(p)
		if readErr != nil {
			continue
		}
		idx.UpdateFile(p, data)
		logger.Debug("watcher: reconcile forwarded", slog.String("path", p))
		if cb != nil {
			cb("created", p)
		}
	}
}

// forwardDir forwards any .md files found in a newly created directory.
func forwardDir(idx Indexer, store vault.Provider, root, dirPath string, cb EventCallback) {
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		data, readErr := store.Read(rel)
		if readErr != nil {
			return nil
		}
		idx.UpdateFile(rel, data)
		if cb != nil {
			cb("created", rel)
		}
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
