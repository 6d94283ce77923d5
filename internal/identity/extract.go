package identity

import (
	"github.com/Hara602/usbGate/internal/analysis"
	"github.com/Hara602/usbGate/internal/model"
	"github.com/Hara602/usbGate/internal/registry"
	"github.com/Hara602/usbGate/internal/sysutil"
	"go.uber.org/zap"
)

// Info 诊断信息, 读不到也不影响判定
type Info struct {
	Product      string
	Manufacturer string
	Kind         string
}

type Extractor struct {
	reg registry.Registry
	log *zap.Logger
}

func New(reg registry.Registry, log *zap.Logger) *Extractor {
	return &Extractor{reg: reg, log: sysutil.OrNop(log)}
}

// Extract 三个字段缺一个或类型不对都视为无法识别, 不做部分匹配
func (e *Extractor) Extract(device registry.Node) (model.DeviceSignature, Info, bool) {
	info := Info{Kind: analysis.KindUnknown}

	props, err := e.reg.Properties(device)
	if err != nil {
		e.log.Debug("failed to get device properties", zap.String("device", device.ID()), zap.Error(err))
		return model.DeviceSignature{}, info, false
	}

	info.Product, _ = props[registry.PropProduct].(string)
	info.Manufacturer, _ = props[registry.PropManufacturer].(string)
	if classes, ok := props[registry.PropInterfaceClasses].([]string); ok {
		_, info.Kind = analysis.CheckBadUSB(classes)
	}

	sig, ok := Signature(props)
	if !ok {
		e.log.Debug("device identity incomplete",
			zap.String("device", device.ID()),
			zap.Any("vid", props[registry.PropVendorID]),
			zap.Any("pid", props[registry.PropProductID]),
			zap.Any("serial", props[registry.PropSerial]))
	}
	return sig, info, ok
}

// Signature 从属性表构造 DeviceSignature, 校验存在性与类型
func Signature(props map[string]any) (model.DeviceSignature, bool) {
	vid, ok := intProp(props[registry.PropVendorID])
	if !ok {
		return model.DeviceSignature{}, false
	}
	pid, ok := intProp(props[registry.PropProductID])
	if !ok {
		return model.DeviceSignature{}, false
	}
	serial, ok := props[registry.PropSerial].(string)
	if !ok || serial == "" {
		return model.DeviceSignature{}, false
	}
	return model.DeviceSignature{VendorID: vid, ProductID: pid, SerialNumber: serial}, true
}

// intProp 只接受整数类型, 不做字符串转换
func intProp(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	default:
		return 0, false
	}
}
