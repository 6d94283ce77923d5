package registry

import "errors"

var (
	ErrNotFound   = errors.New("registry: node not found")
	ErrUnreadable = errors.New("registry: attribute unreadable")
	ErrReleased   = errors.New("registry: handle already released")
)

// USBHostClass 物理 USB 设备节点的类名 (区别于 usb_interface 以及其上的块设备)
const USBHostClass = "usb_device"

// 属性名
const (
	PropVendorID         = "idVendor"
	PropProductID        = "idProduct"
	PropSerial           = "serial"
	PropProduct          = "product"
	PropManufacturer     = "manufacturer"
	PropInterfaceClasses = "interfaceClasses"
)

// Node 设备树中某个节点的句柄
type Node interface {
	ID() string
}

// Registry 设备树查询接口
//
// Parents 返回的每个节点都归调用方所有, 必须且只能 Release 一次。
type Registry interface {
	Parents(n Node) ([]Node, error)
	ClassName(n Node) (string, error)
	Properties(n Node) (map[string]any, error)
	Release(n Node) error
}
