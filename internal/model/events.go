package model

import (
	"fmt"
	"time"
)

// DeviceSignature 唯一标识一个物理 USB 设备 (vid, pid, serial)
// 三个字段全部相等才算同一个设备
type DeviceSignature struct {
	VendorID     int
	ProductID    int
	SerialNumber string
}

func (s DeviceSignature) String() string {
	return fmt.Sprintf("%04x:%04x/%s", s.VendorID, s.ProductID, s.SerialNumber)
}

// DeniedReason 拒绝挂载时交给系统展示给用户的原因
const DeniedReason = "Mounting not permitted for this USB"

// Verdict 每次挂载审批只产生一个
type Verdict struct {
	Allowed bool
	Reason  string // 仅在拒绝时有值
}

func Allow() Verdict { return Verdict{Allowed: true} }

func Deny(reason string) Verdict { return Verdict{Allowed: false, Reason: reason} }

func (v Verdict) String() string {
	if v.Allowed {
		return "allow"
	}
	return "deny"
}

// MountDecision 审批结果 + 执行拒绝需要的上下文
type MountDecision struct {
	Verdict   Verdict
	MediaID   string           // 例如 /sys/devices/.../block/sdb/sdb1
	DeviceID  string           // 找到的 USB 设备节点, 没找到则为空
	Signature *DeviceSignature // 读不到身份时为 nil
	Product      string
	Manufacturer string
	Kind         string // "udisk", "BADUSB_SUSPECT", "other"
	RequestID    string
	TimeStamp    time.Time
}

// MountRequest 硬件层传上来的一次挂载尝试
type MountRequest struct {
	Action     string // "add"
	DevicePath string // e.g., /dev/sdb1
	DevType    string // "partition", "disk"
	SysPath    string // e.g., /sys/devices/.../block/sdb/sdb1
	TimeStamp  time.Time
}
