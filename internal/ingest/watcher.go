package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/joseph-ayodele/shift-reports/constants"
	"github.com/joseph-ayodele/shift-reports/internal/async"
)

// WatchEvent is a file that appeared under a report-type folder.
type WatchEvent struct {
	Path       string
	ReportType constants.ReportType
}

type WatchConfig struct {
	Root        string        // contains one folder per report type
	InitialScan bool          // emit files already present
	Debounce    time.Duration // coalesce rapid write/rename bursts
	Logger      *slog.Logger
}

// StartWatcher watches <root>/<reportType>/ (recursively) and emits new
// files with allowed extensions. Missing report-type folders are created.
// Both channels close when ctx is done.
func StartWatcher(ctx context.Context, cfg WatchConfig) (<-chan WatchEvent, <-chan error, error) {
	if cfg.Root == "" {
		return nil, nil, errors.New("no watch root provided")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("watcher.create.failed", "error", err)
		return nil, nil, err
	}

	evCh := make(chan WatchEvent, 256)
	errCh := make(chan error, 1)

	// addDir watches dir and its subdirectories and returns the files already in them.
	addDir := func(dir string) ([]string, error) {
		var files []string
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if path != dir && IsHidden(path) {
					return filepath.SkipDir
				}
				return w.Add(path)
			}
			if !IsHidden(path) && AllowedExt(filepath.Ext(path)) {
				files = append(files, path)
			}
			return nil
		})
		return files, err
	}
	var initial []string
	for _, rt := range constants.ReportTypes {
		dir := filepath.Join(cfg.Root, string(rt))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			_ = w.Close()
			return nil, nil, fmt.Errorf("create %s: %w", dir, err)
		}
		files, err := addDir(dir)
		if err != nil {
			logger.Error("watcher.add_root.failed", "dir", dir, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
		if cfg.InitialScan {
			initial = append(initial, files...)
		}
	}
	logger.Info("watcher.started", "root", cfg.Root, "initial_files", len(initial))

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("watcher.close.failed", "error", err)
			}
		}()

		emit := func(path string) {
			rt := ReportTypeFromPath(cfg.Root, path)
			if rt == "" {
				return
			}
			select {
			case evCh <- WatchEvent{Path: path, ReportType: rt}:
			case <-ctx.Done():
			}
		}
		for _, p := range initial {
			emit(p)
		}

		var (
			mu      sync.Mutex
			pending = map[string]struct{}{}
			flush   = make(chan struct{}, 1)
			timer   *time.Timer
		)
		drain := func() []string {
			mu.Lock()
			defer mu.Unlock()
			out := make([]string, 0, len(pending))
			for p := range pending {
				out = append(out, p)
				delete(pending, p)
			}
			return out
		}

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case <-flush:
				for _, p := range drain() {
					emit(p)
				}
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				fi, err := os.Stat(e.Name)
				if err != nil {
					continue
				}
				if fi.IsDir() {
					// a folder moved in may already hold files
					files, err := addDir(e.Name)
					if err != nil {
						logger.Warn("watcher.add_dir.failed", "path", e.Name, "error", err)
					}
					for _, p := range files {
						emit(p)
					}
					continue
				}
				if IsHidden(e.Name) || !AllowedExt(filepath.Ext(e.Name)) {
					continue
				}
				mu.Lock()
				pending[e.Name] = struct{}{}
				mu.Unlock()
				if cfg.Debounce <= 0 {
					for _, p := range drain() {
						emit(p)
					}
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(cfg.Debounce, func() {
					select {
					case flush <- struct{}{}:
					default:
					}
				})
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("watcher.error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

// RunWatcher feeds watch events into q until ctx is done.
func RunWatcher(ctx context.Context, cfg WatchConfig, q async.Queue) error {
	events, errs, err := StartWatcher(ctx, cfg)
	if err != nil {
		return err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := q.Enqueue(ctx, async.Job{Path: ev.Path, ReportType: ev.ReportType}); err != nil {
				logger.Warn("watcher.enqueue.failed", "path", ev.Path, "error", err)
				if errors.Is(err, async.ErrQueueClosed) {
					return nil
				}
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("watcher.backend.error", "error", err)
		}
	}
}
