//go:build linux || darwin

package diskmanager

import (
	"syscall"

	"github.com/omniface/omniface-go/internal/errors"
)

// GetDetailedDiskUsage returns the total and used disk space in bytes for the filesystem containing the given path.
func GetDetailedDiskUsage(path string) (DiskSpaceInfo, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return DiskSpaceInfo{}, errors.New(err).
			Component("diskmanager").
			Category(errors.CategorySystem).
			Context("path", path).
			Context("operation", "statfs").
			Build()
	}

	totalBytes := stat.Blocks * uint64(stat.Bsize)
	freeBytes := stat.Bavail * uint64(stat.Bsize) // Available to non-root user

	return DiskSpaceInfo{
		TotalBytes: totalBytes,
		UsedBytes:  totalBytes - freeBytes,
	}, nil
}
