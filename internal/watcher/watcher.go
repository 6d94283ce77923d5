package watcher

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/Hara602/usbGate/internal/model"
	"github.com/Hara602/usbGate/internal/registry"
	"github.com/Hara602/usbGate/internal/session"
	"github.com/Hara602/usbGate/internal/sysutil"
	"go.uber.org/zap"
)

var ErrAlreadyRegistered = errors.New("approval callback already registered")

// MediaLocator 把 uevent 的 DEVPATH 变成设备树节点, DEVPATH 不可用时按设备名查
type MediaLocator interface {
	NodeAt(devPath string) (registry.Node, error)
	MediaFor(devName string) (registry.Node, error)
	Release(n registry.Node) error
}

// Enforcer 执行拒绝
type Enforcer interface {
	Apply(d model.MountDecision, devPath string)
}

type Options struct {
	Locator   MediaLocator
	Enforcer  Enforcer // nil 表示只判定不执行
	QueueSize int
	Logger    *zap.Logger
}

// New 返回当前平台的挂载仲裁实现
func New(opts Options) session.Arbiter {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	opts.Logger = sysutil.OrNop(opts.Logger)
	return newWatcher(opts)
}

// dispatcher 与平台无关的部分: 每个挂载请求一个 goroutine
type dispatcher struct {
	opts Options
	log  *zap.Logger

	mu sync.Mutex
	cb session.ApprovalFunc
	wg sync.WaitGroup
}

func (d *dispatcher) setCallback(cb session.ApprovalFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cb != nil {
		return ErrAlreadyRegistered
	}
	d.cb = cb
	return nil
}

func (d *dispatcher) callback() session.ApprovalFunc {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cb
}

// wants 只关心块设备的新增 (分区或者没有分区表的整盘)
func wants(req model.MountRequest) bool {
	return req.Action == "add" && (req.DevType == "partition" || req.DevType == "disk")
}

func (d *dispatcher) submit(req model.MountRequest) {
	if !wants(req) {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.approve(req)
	}()
}

func (d *dispatcher) approve(req model.MountRequest) model.MountDecision {
	cb := d.callback()
	if cb == nil {
		return model.MountDecision{Verdict: model.Allow()}
	}
	media, err := d.locate(req)
	if err != nil {
		// 找不到介质节点, 无法判断, 放行
		d.log.Warn("Media node not found, allowing mount", zap.String("dev", req.DevicePath), zap.Error(err))
		return model.MountDecision{Verdict: model.Allow()}
	}
	defer func() {
		if err := d.opts.Locator.Release(media); err != nil {
			d.log.Warn("failed to release media node", zap.String("media", media.ID()), zap.Error(err))
		}
	}()

	decision := cb(media)
	if !decision.Verdict.Allowed && d.opts.Enforcer != nil {
		d.opts.Enforcer.Apply(decision, req.DevicePath)
	}
	if !req.TimeStamp.IsZero() {
		d.log.Debug("Mount request handled",
			zap.String("dev", req.DevicePath),
			zap.String("request", decision.RequestID),
			zap.Duration("latency", time.Since(req.TimeStamp)))
	}
	return decision
}

func (d *dispatcher) locate(req model.MountRequest) (registry.Node, error) {
	media, err := d.opts.Locator.NodeAt(req.SysPath)
	if err == nil || req.DevicePath == "" {
		return media, err
	}
	// 有些内核的 uevent 没有 DEVPATH, 退回 /sys/class/block/{name}
	fallback, ferr := d.opts.Locator.MediaFor(req.DevicePath)
	if ferr != nil {
		return nil, errors.Join(err, ferr)
	}
	return fallback, nil
}

func (d *dispatcher) wait() { d.wg.Wait() }

func devicePath(devName string) string {
	if devName == "" || strings.HasPrefix(devName, "/dev") {
		return devName
	}
	return "/dev/" + devName
}
