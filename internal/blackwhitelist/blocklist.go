package blackwhitelist

import "github.com/Hara602/usbGate/internal/model"

// Blocklist 进程启动时确定, 之后只读, 并发读取不需要加锁
type Blocklist struct {
	entries []model.DeviceSignature
}

// Default 编译进程序的黑名单
var Default = []model.DeviceSignature{
	{VendorID: 1921, ProductID: 21931, SerialNumber: "00002324122424065600"},
}

// New 保持顺序, 重复项只保留第一次出现的位置
func New(sources ...[]model.DeviceSignature) Blocklist {
	seen := make(map[model.DeviceSignature]bool)
	var entries []model.DeviceSignature
	for _, src := range sources {
		for _, sig := range src {
			if seen[sig] {
				continue
			}
			seen[sig] = true
			entries = append(entries, sig)
		}
	}
	return Blocklist{entries: entries}
}

func (b Blocklist) Len() int { return len(b.entries) }

// Entries 返回副本
func (b Blocklist) Entries() []model.DeviceSignature {
	return append([]model.DeviceSignature(nil), b.entries...)
}

// Match 按顺序逐条精确比较 (vid, pid, serial)，第一条命中即返回
func Match(sig model.DeviceSignature, list Blocklist) (model.DeviceSignature, bool) {
	for _, blocked := range list.entries {
		if blocked == sig {
			return blocked, true
		}
	}
	return model.DeviceSignature{}, false
}

// Assemble 合并编译内置、YAML 文件、sqlite 三个来源; 路径为空的来源跳过
func Assemble(filePath, dbPath string) (Blocklist, error) {
	sources := [][]model.DeviceSignature{Default}
	if filePath != "" {
		entries, err := LoadFile(filePath)
		if err != nil {
			return Blocklist{}, err
		}
		sources = append(sources, entries)
	}
	if dbPath != "" {
		db, err := OpenBlockDB(dbPath)
		if err != nil {
			return Blocklist{}, err
		}
		defer db.Close()
		entries, err := db.Load()
		if err != nil {
			return Blocklist{}, err
		}
		sources = append(sources, entries)
	}
	return New(sources...), nil
}
