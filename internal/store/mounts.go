package store

import (
	"path/filepath"
	"slices"

	"github.com/shirou/gopsutil/v3/disk"
)

// Mount is one entry of the mount table, in kernel order.
type Mount struct {
	Device     string
	MountPoint string
	FSType     string
	Options    []string
}

func (m Mount) ReadOnly() bool {
	return slices.Contains(m.Options, "ro")
}

// MountLister returns the mount table with later entries shadowing earlier ones.
type MountLister interface {
	Mounts() ([]Mount, error)
}

// SystemMounts lists mounts from the kernel mount table, including pseudo and
// bind mounts.
type SystemMounts struct{}

func (SystemMounts) Mounts() ([]Mount, error) {
	parts, err := disk.Partitions(true)
	if err != nil {
		return nil, err
	}
	out := make([]Mount, 0, len(parts))
	for _, p := range parts {
		out = append(out, Mount{
			Device:     p.Device,
			MountPoint: p.Mountpoint,
			FSType:     p.Fstype,
			Options:    p.Opts,
		})
	}
	return out, nil
}

// lastMountAt returns the most recent entry mounted at path.
func lastMountAt(mounts []Mount, path string) (Mount, bool) {
	path = filepath.Clean(path)
	for i := len(mounts) - 1; i >= 0; i-- {
		if filepath.Clean(mounts[i].MountPoint) == path {
			return mounts[i], true
		}
	}
	return Mount{}, false
}
