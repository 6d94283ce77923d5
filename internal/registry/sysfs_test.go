package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	usbDir  = "devices/pci0000:00/0000:00:14.0/usb1/1-1"
	sdbDir  = usbDir + "/1-1:1.0/host2/target2:0:0/2:0:0:0/block/sdb"
	sdb1Dir = sdbDir + "/sdb1"
)

// createMockSysfs 在临时目录里搭一个 U 盘的 sysfs 结构
func createMockSysfs(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	write := func(dir string, attrs map[string]string) {
		path := filepath.Join(root, dir)
		require.NoError(t, os.MkdirAll(path, 0755))
		for k, v := range attrs {
			require.NoError(t, os.WriteFile(filepath.Join(path, k), []byte(v+"\n"), 0644))
		}
	}

	write("devices/pci0000:00/0000:00:14.0", map[string]string{"uevent": "DRIVER=xhci_hcd"})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bus", "pci"), 0755))
	require.NoError(t, os.Symlink(filepath.Join(root, "bus", "pci"), filepath.Join(root, "devices/pci0000:00/0000:00:14.0", "subsystem")))

	write(usbDir, map[string]string{
		"uevent":       "DEVTYPE=usb_device",
		"idVendor":     "0781",
		"idProduct":    "55ab",
		"serial":       "00002324122424065600",
		"product":      "Ultra USB 3.0",
		"manufacturer": " SanDisk ",
	})
	write(usbDir+"/1-1:1.0", map[string]string{"uevent": "DEVTYPE=usb_interface", "bInterfaceClass": "08"})
	write(usbDir+"/1-1:1.1", map[string]string{"uevent": "DEVTYPE=usb_interface", "bInterfaceClass": "03"})
	write(usbDir+"/1-1:1.0/host2", map[string]string{"uevent": "DEVTYPE=scsi_host"})
	write(usbDir+"/1-1:1.0/host2/target2:0:0", map[string]string{"uevent": "DEVTYPE=scsi_target"})
	write(usbDir+"/1-1:1.0/host2/target2:0:0/2:0:0:0", map[string]string{"uevent": "DEVTYPE=scsi_device"})
	write(sdbDir, map[string]string{"uevent": "DEVTYPE=disk"})
	write(sdb1Dir, map[string]string{"uevent": "DEVTYPE=partition"})

	require.NoError(t, os.MkdirAll(filepath.Join(root, "class", "block"), 0755))
	require.NoError(t, os.Symlink(filepath.Join(root, sdb1Dir), filepath.Join(root, "class", "block", "sdb1")))
	return root
}

func TestSysfs_ParentsSkipNonDeviceDirs(t *testing.T) {
	root := createMockSysfs(t)
	s := NewSysfs(root)

	media, err := s.NodeAt("/" + sdb1Dir)
	require.NoError(t, err)

	var chain []string
	n := media
	for {
		parents, err := s.Parents(n)
		require.NoError(t, err)
		if len(parents) == 0 {
			break
		}
		require.Len(t, parents, 1)
		n = parents[0]
		chain = append(chain, filepath.Base(n.ID()))
		require.NoError(t, s.Release(n))
	}
	assert.Equal(t, []string{"sdb", "2:0:0:0", "target2:0:0", "host2", "1-1:1.0", "1-1", "0000:00:14.0"}, chain)
}

func TestSysfs_ClassName(t *testing.T) {
	root := createMockSysfs(t)
	s := NewSysfs(root)

	tests := []struct {
		dir  string
		want string
	}{
		{sdb1Dir, "partition"},
		{sdbDir, "disk"},
		{usbDir, USBHostClass},
		{usbDir + "/1-1:1.0", "usb_interface"},
		{"devices/pci0000:00/0000:00:14.0", "pci"},
	}
	for _, tt := range tests {
		n, err := s.NodeAt(tt.dir)
		require.NoError(t, err)
		got, err := s.ClassName(n)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.dir)
	}
}

func TestSysfs_ClassNameUnreadable(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "devices", "odd")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "uevent"), []byte("MAJOR=1\n"), 0644))

	s := NewSysfs(root)
	n, err := s.NodeAt("/devices/odd")
	require.NoError(t, err)
	_, err = s.ClassName(n)
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestSysfs_Properties(t *testing.T) {
	root := createMockSysfs(t)
	s := NewSysfs(root)

	n, err := s.NodeAt(usbDir)
	require.NoError(t, err)
	props, err := s.Properties(n)
	require.NoError(t, err)

	assert.Equal(t, 0x0781, props[PropVendorID])
	assert.Equal(t, 0x55ab, props[PropProductID])
	assert.Equal(t, "00002324122424065600", props[PropSerial])
	assert.Equal(t, "Ultra USB 3.0", props[PropProduct])
	assert.Equal(t, "SanDisk", props[PropManufacturer])
	assert.ElementsMatch(t, []string{"08", "03"}, props[PropInterfaceClasses])
}

func TestSysfs_PropertiesMissingAndMalformed(t *testing.T) {
	root := createMockSysfs(t)
	require.NoError(t, os.Remove(filepath.Join(root, usbDir, "serial")))
	require.NoError(t, os.WriteFile(filepath.Join(root, usbDir, "idVendor"), []byte("zz\n"), 0644))
	s := NewSysfs(root)

	n, err := s.NodeAt(usbDir)
	require.NoError(t, err)
	props, err := s.Properties(n)
	require.NoError(t, err)

	_, hasSerial := props[PropSerial]
	assert.False(t, hasSerial)
	// 解析失败保留原始字符串, 由上层判定类型不符
	assert.Equal(t, "zz", props[PropVendorID])
}

func TestSysfs_MediaFor(t *testing.T) {
	root := createMockSysfs(t)
	s := NewSysfs(root)

	n, err := s.MediaFor("/dev/sdb1")
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(filepath.Join(root, sdb1Dir))
	require.NoError(t, err)
	assert.Equal(t, want, n.ID())

	_, err = s.MediaFor("sdz9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSysfs_ForeignNode(t *testing.T) {
	s := NewSysfs(t.TempDir())
	m := NewMemory()
	m.Add("x", "disk", nil)
	n, err := m.Acquire("x")
	require.NoError(t, err)

	_, err = s.Parents(n)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Release(n), ErrNotFound)
}

func TestSysfs_NodeAtMissing(t *testing.T) {
	_, err := NewSysfs(t.TempDir()).NodeAt("/devices/nothing")
	assert.ErrorIs(t, err, ErrNotFound)
}
