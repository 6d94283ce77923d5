package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Hara602/usbGate/internal/model"
	"github.com/Hara602/usbGate/internal/registry"
	"github.com/Hara602/usbGate/internal/sysutil"
	"go.uber.org/zap"
)

var ErrSessionUnavailable = errors.New("mount arbitration session unavailable")

// ApprovalFunc 每次挂载尝试调用一次, 可能被并发调用
type ApprovalFunc func(media registry.Node) model.MountDecision

// Arbiter 挂载仲裁服务, 监听彻底断开时 Lost 收到错误
type Arbiter interface {
	Connect() error
	Register(cb ApprovalFunc) error
	Lost() <-chan error
	Close() error
}

// Approver 一般是 *gate.Pipeline
type Approver interface {
	Evaluate(media registry.Node) model.MountDecision
}

type Handle struct {
	arb  Arbiter
	log  *zap.Logger
	once sync.Once
	err  error
}

// Start 连接失败时不会注册回调
func Start(arb Arbiter, approver Approver, log *zap.Logger) (*Handle, error) {
	log = sysutil.OrNop(log)
	if arb == nil || approver == nil {
		return nil, fmt.Errorf("%w: no arbiter or approver", ErrSessionUnavailable)
	}
	if err := arb.Connect(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	if err := arb.Register(guard(approver, log)); err != nil {
		if cerr := arb.Close(); cerr != nil {
			log.Warn("failed to close arbiter after register error", zap.Error(cerr))
		}
		return nil, fmt.Errorf("%w: register approval callback: %v", ErrSessionUnavailable, err)
	}
	log.Info("Mount approval callback registered")
	return &Handle{arb: arb, log: log}, nil
}

// Lost 会话在运行中丢失时收到一个错误, 进程应当退出
func (h *Handle) Lost() <-chan error {
	return h.arb.Lost()
}

// Close 可重复调用
func (h *Handle) Close() error {
	h.once.Do(func() {
		h.err = h.arb.Close()
		h.log.Info("Mount approval session closed")
	})
	return h.err
}

// guard 回调里的 panic 一律按放行处理, 保证每次请求都有结论
func guard(approver Approver, log *zap.Logger) ApprovalFunc {
	return func(media registry.Node) (d model.MountDecision) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("approval callback panicked, allowing mount",
					zap.String("media", media.ID()), zap.Any("panic", r))
				d = model.MountDecision{Verdict: model.Allow(), MediaID: media.ID()}
			}
		}()
		return approver.Evaluate(media)
	}
}
