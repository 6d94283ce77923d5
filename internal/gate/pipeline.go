package gate

import (
	"fmt"
	"time"

	"github.com/Hara602/usbGate/internal/analysis"
	"github.com/Hara602/usbGate/internal/blackwhitelist"
	"github.com/Hara602/usbGate/internal/decision"
	"github.com/Hara602/usbGate/internal/identity"
	"github.com/Hara602/usbGate/internal/model"
	"github.com/Hara602/usbGate/internal/registry"
	"github.com/Hara602/usbGate/internal/resolver"
	"github.com/Hara602/usbGate/internal/sysutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pipeline 无状态, 可以被多个挂载请求并发调用
type Pipeline struct {
	reg       registry.Registry
	resolver  *resolver.Resolver
	extractor *identity.Extractor
	blocklist blackwhitelist.Blocklist
	log       *zap.Logger
}

func NewPipeline(reg registry.Registry, list blackwhitelist.Blocklist, log *zap.Logger) *Pipeline {
	log = sysutil.OrNop(log)
	return &Pipeline{
		reg:       reg,
		resolver:  resolver.New(reg, log),
		extractor: identity.New(reg, log),
		blocklist: list,
		log:       log,
	}
}

// OnMountApproval media 由调用方持有
func (p *Pipeline) OnMountApproval(media registry.Node) model.Verdict {
	return p.Evaluate(media).Verdict
}

// Evaluate 完整判定, 额外带上执行拒绝需要的设备信息
func (p *Pipeline) Evaluate(media registry.Node) model.MountDecision {
	d := model.MountDecision{
		MediaID:   media.ID(),
		Kind:      analysis.KindUnknown,
		RequestID: uuid.NewString(),
		TimeStamp: time.Now(),
	}
	var res decision.Resolution
	var matched *model.DeviceSignature

	if device, ok := p.resolver.Resolve(media); ok {
		res.USBFound = true
		d.DeviceID = device.ID()

		sig, info, ok := p.extractor.Extract(device)
		if err := p.reg.Release(device); err != nil {
			p.log.Warn("failed to release USB device node", zap.String("device", d.DeviceID), zap.Error(err))
		}
		d.Product, d.Manufacturer, d.Kind = info.Product, info.Manufacturer, info.Kind

		if ok {
			res.Identified = true
			d.Signature = &sig
			if blocked, hit := blackwhitelist.Match(sig, p.blocklist); hit {
				matched = &blocked
			}
		}
	}

	d.Verdict = decision.Decide(res, matched)
	p.emit(d)
	return d
}

func (p *Pipeline) emit(d model.MountDecision) {
	fields := []zap.Field{
		zap.String("request", d.RequestID),
		zap.String("media", d.MediaID),
		zap.String("device", d.DeviceID),
		zap.String("product", d.Product),
		zap.String("manufacturer", d.Manufacturer),
		zap.String("type", d.Kind),
		zap.Time("at", d.TimeStamp),
	}
	if d.Signature != nil {
		fields = append(fields,
			zap.String("vid", hex4(d.Signature.VendorID)),
			zap.String("pid", hex4(d.Signature.ProductID)),
			zap.String("serial", d.Signature.SerialNumber))
	}

	switch {
	case !d.Verdict.Allowed:
		p.log.Warn("🚫 Blocking mount", append(fields, zap.String("reason", d.Verdict.Reason))...)
	case d.DeviceID == "":
		p.log.Info("✅ Allowing mount (no USB device)", fields...)
	case d.Signature == nil:
		p.log.Info("✅ Allowing mount (USB identity unavailable)", fields...)
	default:
		p.log.Info("✅ Allowing mount", fields...)
	}
	if d.Kind == analysis.KindBadUSB {
		p.log.Error("🚨 BADUSB DETECTED", fields...)
	}
}

func hex4(v int) string { return fmt.Sprintf("%04x", v) }
