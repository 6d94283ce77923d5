//go:build linux

package sysutil

import (
	"fmt"

	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"
)

// MountPointsOf 查找某个块设备当前的所有挂载点
// 自动挂载有可能抢在拒绝之前完成
func MountPointsOf(devPath string) ([]string, error) {
	mounts, err := mountinfo.GetMounts(mountinfo.FilterFunc(func(m *mountinfo.Info) (skip, stop bool) {
		return m.Source != devPath, false
	}))
	if err != nil {
		return nil, fmt.Errorf("read mountinfo: %w", err)
	}
	points := make([]string, 0, len(mounts))
	for _, m := range mounts {
		points = append(points, m.Mountpoint)
	}
	return points, nil
}

// DetachMount lazy umount, 设备正忙也能脱离命名空间
func DetachMount(mountPoint string) error {
	if err := unix.Unmount(mountPoint, unix.MNT_DETACH); err != nil {
		return fmt.Errorf("umount %s: %w", mountPoint, err)
	}
	return nil
}
