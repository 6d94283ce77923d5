package blackwhitelist

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Hara602/usbGate/internal/model"
	"github.com/Hara602/usbGate/internal/sysutil"
	"go.uber.org/zap"
)

// Enforcer 把拒绝结果落到内核上
// Linux 没有同步的挂载审批, 所以拒绝 = 禁用 USB 设备 + 卸载已抢先完成的挂载
type Enforcer struct {
	log *zap.Logger

	// 测试时替换
	mountPoints func(devPath string) ([]string, error)
	detach      func(mountPoint string) error
}

func NewEnforcer(log *zap.Logger) *Enforcer {
	return &Enforcer{
		log:         sysutil.OrNop(log),
		mountPoints: sysutil.MountPointsOf,
		detach:      sysutil.DetachMount,
	}
}

// Apply 失败只记录日志, 不会改变判定结果
func (e *Enforcer) Apply(d model.MountDecision, devPath string) {
	if d.Verdict.Allowed {
		return
	}
	if d.DeviceID != "" {
		if err := BlockDevice(d.DeviceID); err != nil {
			e.log.Error("Failed to deauthorize USB device", zap.String("device", d.DeviceID), zap.Error(err))
		} else {
			e.log.Info("⛔ USB device deauthorized", zap.String("device", d.DeviceID))
		}
	}
	if devPath == "" {
		return
	}
	points, err := e.mountPoints(devPath)
	if err != nil {
		e.log.Warn("Failed to check mounts of vetoed media", zap.String("dev", devPath), zap.Error(err))
		return
	}
	for _, mp := range points {
		if err := e.detach(mp); err != nil {
			e.log.Error("Failed to detach vetoed mount", zap.String("mount", mp), zap.Error(err))
			continue
		}
		e.log.Warn("Vetoed mount had already completed, detached", zap.String("dev", devPath), zap.String("mount", mp))
	}
}

// BlockDevice 通过 Sysfs 禁用设备
// devicePath 类似于 /sys/devices/pci0000:00/0000:00:14.0/usb1/1-1
func BlockDevice(devicePath string) error {
	path := filepath.Join(devicePath, "authorized")
	// 写入 "0" 代表物理层级禁用
	err := os.WriteFile(path, []byte("0"), 0644)
	if err != nil {
		return fmt.Errorf("block failed: %w", err)
	}
	return nil
}
