//go:build linux

package sysfs

import (
	"fmt"
	"os"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// Mounts returns the mounts visible to the calling process.
func Mounts() ([]*procfs.MountInfo, error) {
	return procMounts(procfs.DefaultMountPoint, os.Getpid())
}

// procMounts reads <procRoot>/<pid>/mountinfo.
func procMounts(procRoot string, pid int) ([]*procfs.MountInfo, error) {
	fs, err := procfs.NewFS(procRoot)
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}
	p, err := fs.Proc(pid)
	if err != nil {
		return nil, fmt.Errorf("open proc %d: %w", pid, err)
	}
	mounts, err := p.MountInfo()
	if err != nil {
		return nil, fmt.Errorf("read mountinfo: %w", err)
	}
	return mounts, nil
}

// FindMount returns the first mount point of the given filesystem type.
func FindMount(mounts []*procfs.MountInfo, fstype string) (string, bool) {
	for _, m := range mounts {
		if m.FSType == fstype {
			return m.MountPoint, true
		}
	}
	return "", false
}

// IsDebugfs reports whether path is the root of a debugfs mount.
func IsDebugfs(path string) (bool, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return false, fmt.Errorf("statfs %s: %w", path, err)
	}
	return uint32(st.Type) == uint32(unix.DEBUGFS_MAGIC), nil
}

// DiscoverDebugfs locates the debugfs mount of the running system, looking
// at mountinfo first and falling back to /sys/kernel/debug.
func DiscoverDebugfs() (string, error) {
	if mounts, err := Mounts(); err == nil {
		if p, ok := FindMount(mounts, "debugfs"); ok {
			return p, nil
		}
	}
	const fallback = "/sys/kernel/debug"
	ok, err := IsDebugfs(fallback)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoDebugfs, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoDebugfs, fallback)
	}
	return fallback, nil
}
