package decision

import "github.com/Hara602/usbGate/internal/model"

// Resolution 祖先查找与身份读取的结果
type Resolution struct {
	USBFound   bool
	Identified bool
}

// Decide 纯函数, 无 I/O
// 没找到 USB、身份读不全、没命中黑名单都放行, 只有身份完整且命中时拒绝
func Decide(res Resolution, matched *model.DeviceSignature) model.Verdict {
	switch {
	case !res.USBFound:
		return model.Allow()
	case !res.Identified:
		return model.Allow()
	case matched != nil:
		return model.Deny(model.DeniedReason)
	default:
		return model.Allow()
	}
}
