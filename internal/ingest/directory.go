package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/shift-reports/constants"
)

type FileResult struct {
	Path       string
	ReportType constants.ReportType
	UploadID   uuid.UUID
	Status     constants.UploadStatus
	// Deduplicated means an existing row already held this content.
	Deduplicated bool
	Err          string
}

type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

type DirOptions struct {
	// ReportType applies to every file. When empty it is taken from the
	// first directory under root, e.g. root/waste/monday.jpg.
	ReportType  constants.ReportType
	SkipHidden  bool
	Concurrency int
}

// IngestDirectory walks root and submits every allowed file. Per-file
// failures are reported in the results; the error is for the walk itself.
// Succeeded counts files that got a ledger row, whatever its final status.
func (g *Gateway) IngestDirectory(ctx context.Context, root string, opts DirOptions) ([]FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	var (
		stats DirStats
		paths []string
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path != root && opts.SkipHidden && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		stats.Scanned++
		if AllowedExt(filepath.Ext(path)) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("walk: %w", err)
	}
	stats.Matched = uint32(len(paths))

	results := make([]FileResult, len(paths))
	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.Concurrency)
	for i, path := range paths {
		eg.Go(func() error {
			res := FileResult{Path: path, ReportType: opts.ReportType}
			if res.ReportType == "" {
				res.ReportType = ReportTypeFromPath(root, path)
			}
			u, err := g.SubmitPath(egCtx, path, res.ReportType)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Err = err.Error()
				stats.Failed++
			} else {
				res.UploadID, res.Status, res.Deduplicated = u.ID, u.Status, u.Deduplicated
				stats.Succeeded++
				if u.Deduplicated {
					stats.Deduplicated++
				}
			}
			results[i] = res
			return nil
		})
	}
	_ = eg.Wait()

	g.logger.Info("ingest.directory.done",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
	)
	return results, stats, nil
}

// ReportTypeFromPath returns the report type named by the first directory of
// path below root, or "" when there is none.
func ReportTypeFromPath(root, path string) constants.ReportType {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return ""
	}
	first, _, found := strings.Cut(filepath.ToSlash(rel), "/")
	if !found {
		return ""
	}
	rt, err := constants.ParseReportType(first)
	if err != nil {
		return ""
	}
	return rt
}

// AllowedExt checks if a file extension is in the allowed set.
func AllowedExt(ext string) bool {
	_, ok := constants.AllowedExtensions[constants.NormalizeExt(ext)]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
