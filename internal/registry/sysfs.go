package registry

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const DefaultSysfsRoot = "/sys"

// Sysfs 以 /sys/devices 作为设备树
// 节点 = 一个包含 uevent 文件的设备目录, 父节点 = 向上最近的设备目录
type Sysfs struct {
	Root string // "/sys" in production, temp dir in tests
}

type sysfsNode struct {
	path string
}

func (n sysfsNode) ID() string { return n.path }

func NewSysfs(root string) *Sysfs {
	if root == "" {
		root = DefaultSysfsRoot
	}
	return &Sysfs{Root: root}
}

// MediaFor 通过 /sys/class/block/{name} 找到块设备在设备树里的真实位置
func (s *Sysfs) MediaFor(devName string) (Node, error) {
	name := filepath.Base(devName)
	link := filepath.Join(s.Root, "class", "block", name)
	target, err := filepath.EvalSymlinks(link)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, link, err)
	}
	return sysfsNode{path: target}, nil
}

// NodeAt uevent 里的 DEVPATH 是相对 /sys 的
func (s *Sysfs) NodeAt(devPath string) (Node, error) {
	path := filepath.Join(s.Root, devPath)
	if !isDeviceDir(path) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return sysfsNode{path: path}, nil
}

func (s *Sysfs) path(n Node) (string, error) {
	sn, ok := n.(sysfsNode)
	if !ok {
		return "", fmt.Errorf("%w: foreign node %v", ErrNotFound, n)
	}
	return sn.path, nil
}

func (s *Sysfs) Parents(n Node) ([]Node, error) {
	path, err := s.path(n)
	if err != nil {
		return nil, err
	}
	top := filepath.Join(s.Root, "devices")
	// 跳过 block/、host 下的 scsi_host 之类的非设备目录
	for dir := filepath.Dir(path); strings.HasPrefix(dir, top) && dir != top; dir = filepath.Dir(dir) {
		if isDeviceDir(dir) {
			return []Node{sysfsNode{path: dir}}, nil
		}
	}
	return nil, nil
}

func (s *Sysfs) ClassName(n Node) (string, error) {
	path, err := s.path(n)
	if err != nil {
		return "", err
	}
	env, err := readUevent(filepath.Join(path, "uevent"))
	if err == nil && env["DEVTYPE"] != "" {
		return env["DEVTYPE"], nil
	}
	sub, lerr := os.Readlink(filepath.Join(path, "subsystem"))
	if lerr != nil {
		if err == nil {
			err = lerr
		}
		return "", fmt.Errorf("%w: class of %s: %v", ErrUnreadable, path, err)
	}
	return filepath.Base(sub), nil
}

// Properties 只返回能读到的属性, 缺失的不放进 map
func (s *Sysfs) Properties(n Node) (map[string]any, error) {
	path, err := s.path(n)
	if err != nil {
		return nil, err
	}
	if !isDeviceDir(path) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	props := make(map[string]any)
	for _, key := range []string{PropVendorID, PropProductID} {
		raw, ok := readAttr(filepath.Join(path, key))
		if !ok {
			continue
		}
		// idVendor/idProduct 是 4 位十六进制
		if v, err := strconv.ParseUint(raw, 16, 16); err == nil {
			props[key] = int(v)
		} else {
			props[key] = raw
		}
	}
	for _, key := range []string{PropSerial, PropProduct, PropManufacturer} {
		if v, ok := readAttr(filepath.Join(path, key)); ok {
			props[key] = v
		}
	}
	if classes := interfaceClasses(path); len(classes) > 0 {
		props[PropInterfaceClasses] = classes
	}
	return props, nil
}

// Release sysfs 节点不占内核资源
func (s *Sysfs) Release(n Node) error {
	_, err := s.path(n)
	return err
}

// interfaceClasses 遍历接口目录，例如 1-1:1.0
func interfaceClasses(devPath string) []string {
	files, err := os.ReadDir(devPath)
	if err != nil {
		return nil
	}
	var classes []string
	for _, f := range files {
		if !strings.Contains(f.Name(), ":") {
			continue
		}
		if code, ok := readAttr(filepath.Join(devPath, f.Name(), "bInterfaceClass")); ok {
			classes = append(classes, code)
		}
	}
	return classes
}

func isDeviceDir(path string) bool {
	st, err := os.Stat(filepath.Join(path, "uevent"))
	return err == nil && !st.IsDir()
}

func readAttr(path string) (string, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(b)), true
}

func readUevent(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	env := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		k, v, ok := strings.Cut(scanner.Text(), "=")
		if ok {
			env[k] = v
		}
	}
	return env, scanner.Err()
}
