package analysis

const (
	KindUDisk   = "udisk"
	KindBadUSB  = "BADUSB_SUSPECT"
	KindOther   = "other"
	KindUnknown = "unknown"
)

// USB 接口类代码 (bInterfaceClass)
const (
	classHID     = "03"
	classStorage = "08"
)

// CheckBadUSB 如果一个 USB 设备同时拥有 08(存储) 和 03(HID) 接口，则判定为 BadUSB
// 只用于日志, 不参与挂载判定
func CheckBadUSB(interfaceClasses []string) (bool, string) {
	if len(interfaceClasses) == 0 {
		return false, KindUnknown
	}
	hasStorage := false
	hasHID := false
	for _, code := range interfaceClasses {
		switch code {
		case classHID:
			hasHID = true
		case classStorage:
			hasStorage = true
		}
	}
	if hasStorage && hasHID {
		return true, KindBadUSB
	} else if hasStorage {
		return false, KindUDisk
	}
	return false, KindOther
}
