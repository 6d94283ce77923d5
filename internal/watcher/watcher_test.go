package watcher

import (
	"sync"
	"testing"
	"time"

	"github.com/Hara602/usbGate/internal/model"
	"github.com/Hara602/usbGate/internal/registry"
	"github.com/Hara602/usbGate/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLocator struct {
	mem    *registry.Memory
	byName map[string]string
}

func (f fakeLocator) NodeAt(devPath string) (registry.Node, error) { return f.mem.Acquire(devPath) }
func (f fakeLocator) MediaFor(devName string) (registry.Node, error) {
	id, ok := f.byName[devName]
	if !ok {
		return nil, registry.ErrNotFound
	}
	return f.mem.Acquire(id)
}
func (f fakeLocator) Release(n registry.Node) error { return f.mem.Release(n) }

type recordingEnforcer struct {
	mu      sync.Mutex
	applied []string
}

func (r *recordingEnforcer) Apply(d model.MountDecision, devPath string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, devPath)
}

func (r *recordingEnforcer) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.applied...)
}

// denySdb 只拒绝 sdb1
func denySdb(media registry.Node) model.MountDecision {
	if media.ID() == "/devices/usb/sdb/sdb1" {
		return model.MountDecision{Verdict: model.Deny(model.DeniedReason), MediaID: media.ID()}
	}
	return model.MountDecision{Verdict: model.Allow(), MediaID: media.ID()}
}

func newDispatcher(t *testing.T, enforcer Enforcer, cb session.ApprovalFunc) (*dispatcher, *registry.Memory) {
	t.Helper()
	mem := registry.NewMemory()
	mem.Add("/devices/usb/sdb/sdb1", "partition", nil)
	mem.Add("/devices/usb/sdc", "disk", nil)

	byName := map[string]string{"/dev/sdb1": "/devices/usb/sdb/sdb1", "/dev/sdc": "/devices/usb/sdc"}
	opts := Options{Locator: fakeLocator{mem: mem, byName: byName}, Logger: zap.NewNop()}
	if enforcer != nil {
		opts.Enforcer = enforcer
	}
	d := &dispatcher{opts: opts, log: opts.Logger}
	if cb != nil {
		require.NoError(t, d.setCallback(cb))
	}
	return d, mem
}

func TestWants(t *testing.T) {
	tests := []struct {
		req  model.MountRequest
		want bool
	}{
		{model.MountRequest{Action: "add", DevType: "partition"}, true},
		{model.MountRequest{Action: "add", DevType: "disk"}, true},
		{model.MountRequest{Action: "remove", DevType: "partition"}, false},
		{model.MountRequest{Action: "change", DevType: "disk"}, false},
		{model.MountRequest{Action: "add", DevType: "usb_device"}, false},
		{model.MountRequest{}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, wants(tt.req), "%+v", tt.req)
	}
}

func TestDispatcher_DenyIsEnforced(t *testing.T) {
	enf := &recordingEnforcer{}
	d, mem := newDispatcher(t, enf, denySdb)

	got := d.approve(model.MountRequest{Action: "add", DevType: "partition", DevicePath: "/dev/sdb1", SysPath: "/devices/usb/sdb/sdb1"})
	assert.False(t, got.Verdict.Allowed)
	assert.Equal(t, []string{"/dev/sdb1"}, enf.calls())
	assert.Equal(t, 0, mem.Outstanding(), "media node must be released")
}

func TestDispatcher_AllowIsNotEnforced(t *testing.T) {
	enf := &recordingEnforcer{}
	d, mem := newDispatcher(t, enf, denySdb)

	got := d.approve(model.MountRequest{Action: "add", DevType: "disk", DevicePath: "/dev/sdc", SysPath: "/devices/usb/sdc"})
	assert.True(t, got.Verdict.Allowed)
	assert.Empty(t, enf.calls())
	assert.Equal(t, 0, mem.Outstanding())
}

func TestDispatcher_UnknownMediaFailsOpen(t *testing.T) {
	enf := &recordingEnforcer{}
	d, _ := newDispatcher(t, enf, denySdb)

	got := d.approve(model.MountRequest{Action: "add", DevType: "partition", DevicePath: "/dev/sdz1", SysPath: "/devices/gone"})
	assert.Equal(t, model.Allow(), got.Verdict)
	assert.Empty(t, enf.calls())
}

func TestDispatcher_FallsBackToDeviceName(t *testing.T) {
	enf := &recordingEnforcer{}
	d, mem := newDispatcher(t, enf, denySdb)

	got := d.approve(model.MountRequest{
		Action: "add", DevType: "partition", DevicePath: "/dev/sdb1", TimeStamp: time.Now(),
	})
	assert.False(t, got.Verdict.Allowed)
	assert.Equal(t, []string{"/dev/sdb1"}, enf.calls())
	assert.Equal(t, 0, mem.Outstanding())
}

func TestDispatcher_ReportOnly(t *testing.T) {
	d, _ := newDispatcher(t, nil, denySdb)

	got := d.approve(model.MountRequest{Action: "add", DevType: "partition", DevicePath: "/dev/sdb1", SysPath: "/devices/usb/sdb/sdb1"})
	assert.False(t, got.Verdict.Allowed)
}

func TestDispatcher_NoCallback(t *testing.T) {
	d, _ := newDispatcher(t, nil, nil)

	got := d.approve(model.MountRequest{Action: "add", DevType: "partition", SysPath: "/devices/usb/sdb/sdb1"})
	assert.Equal(t, model.Allow(), got.Verdict)
}

func TestDispatcher_RegisterTwice(t *testing.T) {
	d, _ := newDispatcher(t, nil, denySdb)
	assert.ErrorIs(t, d.setCallback(denySdb), ErrAlreadyRegistered)
}

func TestDispatcher_SubmitRunsConcurrently(t *testing.T) {
	enf := &recordingEnforcer{}
	d, mem := newDispatcher(t, enf, denySdb)

	for i := 0; i < 20; i++ {
		d.submit(model.MountRequest{Action: "add", DevType: "partition", DevicePath: "/dev/sdb1", SysPath: "/devices/usb/sdb/sdb1"})
		d.submit(model.MountRequest{Action: "add", DevType: "disk", DevicePath: "/dev/sdc", SysPath: "/devices/usb/sdc"})
		// 忽略的事件
		d.submit(model.MountRequest{Action: "remove", DevType: "partition", DevicePath: "/dev/sdb1", SysPath: "/devices/usb/sdb/sdb1"})
	}
	d.wait()

	assert.Len(t, enf.calls(), 20)
	assert.Equal(t, 0, mem.Outstanding())
}

func TestDevicePath(t *testing.T) {
	assert.Equal(t, "/dev/sdb1", devicePath("sdb1"))
	assert.Equal(t, "/dev/sdb1", devicePath("/dev/sdb1"))
	assert.Equal(t, "", devicePath(""))
}
