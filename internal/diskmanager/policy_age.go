// policy_age.go - code for age retention policy
package diskmanager

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/omniface/omniface-go/internal/errors"
	"github.com/omniface/omniface-go/internal/logger"
)

// maxDeletions bounds the files removed in one run
const maxDeletions = 1000

// CleanupResult summarises one retention run
type CleanupResult struct {
	Scanned      int
	Deleted      int
	BytesFreed   int64
	DirsRemoved  int
	LimitReached bool
}

// AgeBasedCleanup removes crops below root older than retentionDays, oldest
// first, then prunes the person and tenant directories left empty. A
// retentionDays of zero or less keeps everything.
func AgeBasedCleanup(ctx context.Context, root string, retentionDays int, now time.Time) (CleanupResult, error) {
	var result CleanupResult
	if retentionDays <= 0 {
		return result, nil
	}

	log := GetLogger()
	start := time.Now()

	files, err := ListCaptures(root)
	if err != nil {
		return result, errors.New(err).
			Component("diskmanager").
			Category(errors.CategoryDiskCleanup).
			Context("root", root).
			Context("operation", "list_captures").
			Build()
	}
	result.Scanned = len(files)

	sort.Slice(files, func(i, j int) bool { return files[i].Timestamp.Before(files[j].Timestamp) })

	expirationTime := now.AddDate(0, 0, -retentionDays)
	touched := make(map[string]struct{})

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			log.Info("cleanup interrupted", logger.Int("files_deleted", result.Deleted))
			return result, nil
		}
		// sorted, so nothing after this is expired either
		if !file.Timestamp.Before(expirationTime) {
			break
		}

		if err := os.Remove(file.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return result, errors.New(err).
				Component("diskmanager").
				Category(errors.CategoryDiskCleanup).
				FileContext(file.Path, file.Size).
				Context("operation", "remove").
				Build()
		}

		log.Debug("expired capture deleted",
			logger.String("path", file.Path),
			logger.String("tenant", file.Tenant),
			logger.Time("captured_at", file.Timestamp))

		touched[filepath.Dir(file.Path)] = struct{}{}
		result.Deleted++
		result.BytesFreed += file.Size

		// Yield to other goroutines
		runtime.Gosched()

		if result.Deleted >= maxDeletions {
			result.LimitReached = true
			break
		}
	}

	result.DirsRemoved = pruneEmptyDirs(root, touched)

	log.Info("age retention policy applied",
		logger.String("root", root),
		logger.Int("retention_days", retentionDays),
		logger.Int("files_scanned", result.Scanned),
		logger.Int("files_deleted", result.Deleted),
		logger.Int64("bytes_freed", result.BytesFreed),
		logger.Int("dirs_removed", result.DirsRemoved),
		logger.Bool("limit_reached", result.LimitReached),
		logger.Duration("duration", time.Since(start)))

	return result, nil
}

// pruneEmptyDirs removes each touched directory and its parents up to, but
// not including, root while they are empty
func pruneEmptyDirs(root string, touched map[string]struct{}) int {
	root = filepath.Clean(root)
	removed := 0
	for dir := range touched {
		for dir = filepath.Clean(dir); dir != root && len(dir) > len(root); dir = filepath.Dir(dir) {
			entries, err := os.ReadDir(dir)
			if err != nil || len(entries) > 0 {
				break
			}
			if err := os.Remove(dir); err != nil {
				break
			}
			removed++
		}
	}
	return removed
}
