// Primary volume collector: reports the first local volume the host enumerates.
// Uses gopsutil for cross-platform disk metrics.
package collector

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"go.uber.org/zap"

	"github.com/aegis-monitor/aegis/internal/models"
)

// pseudoFSTypes lists virtual and remote filesystems that never count as the
// primary volume.
var pseudoFSTypes = map[string]bool{
	// Virtual / system filesystems
	"devfs":         true,
	"autofs":        true,
	"nullfs":        true,
	"tmpfs":         true,
	"sysfs":         true,
	"proc":          true,
	"procfs":        true,
	"devtmpfs":      true,
	"cgroup":        true,
	"cgroup2":       true,
	"overlay":       true,
	"squashfs":      true,
	"fuse.snapfuse": true,
	"nsfs":          true,
	"pstore":        true,
	"debugfs":       true,
	"tracefs":       true,
	"securityfs":    true,
	"configfs":      true,
	"fusectl":       true,
	"mqueue":        true,
	"hugetlbfs":     true,
	"binfmt_misc":   true,
	"efivarfs":      true,
	"bpf":           true,
	"ramfs":         true,

	// Network / remote filesystems
	"nfs":            true,
	"nfs4":           true,
	"cifs":           true,
	"smbfs":          true,
	"fuse.sshfs":     true,
	"fuse.rclone":    true,
	"9p":             true,
	"afs":            true,
	"ncpfs":          true,
	"glusterfs":      true,
	"lustre":         true,
	"ceph":           true,
	"fuse.ceph":      true,
	"gpfs":           true,
	"pvfs2":          true,
	"fuse.s3fs":      true,
	"fuse.gcsfuse":   true,
	"fuse.blobfuse":  true,
	"davfs2":         true,
}

// isSystemMount reports macOS system volumes and other OS-internal paths.
func isSystemMount(mount string) bool {
	systemPrefixes := []string{
		"/System/Volumes/",
		"/private/var/vm",
	}
	for _, prefix := range systemPrefixes {
		if strings.HasPrefix(mount, prefix) {
			return true
		}
	}
	return false
}

// DiskCollector reports the primary volume.
type DiskCollector struct {
	logger *zap.Logger
}

// NewDiskCollector creates a new disk collector.
func NewDiskCollector(logger *zap.Logger) *DiskCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiskCollector{logger: logger}
}

// Name returns the collector identifier.
func (c *DiskCollector) Name() string { return NameDisk }

// Collect returns the first enumerated local partition with a readable,
// non-zero size as a *models.DiskInfo. It is never an aggregate over
// volumes. A nil pointer means no local volume qualified.
func (c *DiskCollector) Collect(ctx context.Context) (interface{}, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}

	for _, p := range partitions {
		if pseudoFSTypes[p.Fstype] || isSystemMount(p.Mountpoint) {
			c.logger.Debug("Skipping non-local filesystem",
				zap.String("mount", p.Mountpoint),
				zap.String("fstype", p.Fstype))
			continue
		}

		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil || usage.Total == 0 {
			continue
		}
		return primaryDisk(p.Mountpoint, p.Fstype, usage.Total, usage.Used, usage.Free), nil
	}

	return (*models.DiskInfo)(nil), nil
}

// IsAvailable returns true; disk metrics are available on all platforms.
func (c *DiskCollector) IsAvailable() bool { return true }

func primaryDisk(mount, fs string, size, used, free uint64) *models.DiskInfo {
	return &models.DiskInfo{
		Size:           size,
		Used:           used,
		Available:      free,
		UsedPercentage: models.Percent(used, size),
		FS:             fs,
		Mount:          mount,
	}
}
