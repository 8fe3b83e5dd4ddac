//go:build windows

package diskmanager

import (
	"fmt"
	"syscall"
	"unsafe"

	"github.com/omniface/omniface-go/internal/errors"
)

// GetDetailedDiskUsage returns the total and used disk space in bytes for the filesystem containing the given path.
func GetDetailedDiskUsage(path string) (DiskSpaceInfo, error) {
	kernel32 := syscall.NewLazyDLL("kernel32.dll")
	getDiskFreeSpaceEx := kernel32.NewProc("GetDiskFreeSpaceExW")

	var freeBytesAvailable, totalNumberOfBytes, totalNumberOfFreeBytes uint64

	utf16Path, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return DiskSpaceInfo{}, errors.New(fmt.Errorf("diskmanager: failed to convert path to UTF16: %w", err)).
			Component("diskmanager").
			Category(errors.CategorySystem).
			Context("path", path).
			Build()
	}

	ret, _, callErr := getDiskFreeSpaceEx.Call(
		uintptr(unsafe.Pointer(utf16Path)),
		uintptr(unsafe.Pointer(&freeBytesAvailable)),
		uintptr(unsafe.Pointer(&totalNumberOfBytes)),
		uintptr(unsafe.Pointer(&totalNumberOfFreeBytes)),
	)
	if ret == 0 {
		return DiskSpaceInfo{}, errors.New(fmt.Errorf("diskmanager: GetDiskFreeSpaceExW failed: %w", callErr)).
			Component("diskmanager").
			Category(errors.CategorySystem).
			Context("path", path).
			Build()
	}

	return DiskSpaceInfo{
		TotalBytes: totalNumberOfBytes,
		UsedBytes:  totalNumberOfBytes - freeBytesAvailable,
	}, nil
}
