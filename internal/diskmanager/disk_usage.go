// disk_usage.go - Common definitions for disk usage calculations

package diskmanager

// DiskSpaceInfo holds detailed disk space information.
type DiskSpaceInfo struct {
	TotalBytes uint64
	UsedBytes  uint64
}

// UsedPercent returns the used share of the filesystem in percent
func (d DiskSpaceInfo) UsedPercent() float64 {
	if d.TotalBytes == 0 {
		return 0
	}
	return float64(d.UsedBytes) / float64(d.TotalBytes) * 100.0
}
