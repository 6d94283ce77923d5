//go:build !linux

package watcher

import (
	"errors"

	"github.com/Hara602/usbGate/internal/session"
)

var errUnsupported = errors.New("udev is only available on linux")

type stubWatcher struct{}

func newWatcher(opts Options) session.Arbiter { return &stubWatcher{} }

func (w *stubWatcher) Connect() error                         { return errUnsupported }
func (w *stubWatcher) Register(cb session.ApprovalFunc) error { return errUnsupported }
func (w *stubWatcher) Lost() <-chan error                     { return nil }
func (w *stubWatcher) Close() error                           { return nil }
