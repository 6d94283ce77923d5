//go:build linux

package watcher

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Hara602/usbGate/internal/model"
	"github.com/Hara602/usbGate/internal/session"
	"github.com/pilebones/go-udev/netlink"
	"go.uber.org/zap"
)

// maxRearms 连续重建监听的上限, 收到一个正常事件后清零
const maxRearms = 5

// monitorConn *netlink.UEventConn 的子集, 测试时替换
type monitorConn interface {
	Monitor(queue chan netlink.UEvent, errs chan error, matcher netlink.Matcher) chan struct{}
	Close() error
}

// linuxWatcher 以 udev netlink 事件作为挂载审批的触发源
type linuxWatcher struct {
	dispatcher

	dial func() (monitorConn, error)

	// 以下字段只在 loop goroutine 里修改 (Register 之前除外)
	conn  monitorConn
	queue chan netlink.UEvent
	errs  chan error
	quit  chan struct{}

	started bool
	stop    chan struct{}
	done    chan struct{}
	lost    chan error
	closed  sync.Once
}

func newWatcher(opts Options) session.Arbiter {
	return &linuxWatcher{
		dispatcher: dispatcher{opts: opts, log: opts.Logger},
		dial:       dialUdev,
		queue:      make(chan netlink.UEvent, opts.QueueSize),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		lost:       make(chan error, 1),
	}
}

// dialUdev 监听 UDEV 事件,连接 NETLINK_KOBJECT_UEVENT
func dialUdev() (monitorConn, error) {
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return nil, fmt.Errorf("udev netlink connect: %w", err)
	}
	return conn, nil
}

func (w *linuxWatcher) Connect() error {
	conn, err := w.dial()
	if err != nil {
		return err
	}
	w.conn = conn
	return nil
}

func (w *linuxWatcher) Register(cb session.ApprovalFunc) error {
	if w.conn == nil {
		return errors.New("udev netlink not connected")
	}
	if err := w.setCallback(cb); err != nil {
		return err
	}
	w.arm()
	w.started = true
	go w.loop()
	return nil
}

// Lost 监听无法恢复时收到一个错误
func (w *linuxWatcher) Lost() <-chan error { return w.lost }

// arm 每次监听用新的 errs, 旧 goroutine 的迟到错误不会被误认为新连接出错
func (w *linuxWatcher) arm() {
	w.errs = make(chan error, 1)
	w.quit = w.conn.Monitor(w.queue, w.errs, nil)
}

func (w *linuxWatcher) disarm() {
	if w.quit != nil {
		close(w.quit)
		w.quit = nil
	}
	if w.conn != nil {
		if err := w.conn.Close(); err != nil {
			w.log.Warn("failed to close udev netlink socket", zap.Error(err))
		}
		w.conn = nil
	}
}

// rearm go-udev 的 Monitor 读出错后就退出了, 必须重新连接
func (w *linuxWatcher) rearm() error {
	w.disarm()
	conn, err := w.dial()
	if err != nil {
		return fmt.Errorf("udev netlink reconnect: %w", err)
	}
	w.conn = conn
	w.arm()
	return nil
}

func (w *linuxWatcher) loop() {
	defer close(w.done)
	failures := 0
	for {
		select {
		case <-w.stop:
			w.disarm()
			return

		case err := <-w.errs:
			failures++
			w.log.Error("udev monitor stopped, re-arming", zap.Int("attempt", failures), zap.Error(err))
			if failures > maxRearms {
				w.fail(fmt.Errorf("udev monitor failed %d times in a row: %w", failures, err))
				return
			}
			if rerr := w.rearm(); rerr != nil {
				w.fail(rerr)
				return
			}

		case uevent := <-w.queue:
			failures = 0
			w.submit(toRequest(uevent))
		}
	}
}

// fail 会话丢失, 交给 main 退出
func (w *linuxWatcher) fail(err error) {
	w.disarm()
	w.log.Error("🚨 Mount approval session lost", zap.Error(err))
	w.lost <- err
}

// Close 等待进行中的审批全部结束
func (w *linuxWatcher) Close() error {
	w.closed.Do(func() {
		if w.started {
			close(w.stop)
			<-w.done
		} else {
			w.disarm()
		}
		w.wait()
	})
	return nil
}

func toRequest(uevent netlink.UEvent) model.MountRequest {
	if uevent.Env["SUBSYSTEM"] != "block" {
		return model.MountRequest{}
	}
	return model.MountRequest{
		Action:     string(uevent.Action),
		DevicePath: devicePath(uevent.Env["DEVNAME"]),
		DevType:    uevent.Env["DEVTYPE"],
		SysPath:    uevent.Env["DEVPATH"],
		TimeStamp:  time.Now(),
	}
}
