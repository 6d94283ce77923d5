package blackwhitelist

import (
	"database/sql"
	"fmt"

	"github.com/Hara602/usbGate/internal/model"
	_ "modernc.org/sqlite"
)

// 联合主键 (vid, pid, serial) 防止重复
const schema = `
CREATE TABLE IF NOT EXISTS blocklist (
	vid INTEGER NOT NULL,
	pid INTEGER NOT NULL,
	serial TEXT NOT NULL,
	reason TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (vid, pid, serial)
);
`

// BlockDB sqlite 中的黑名单, 只在启动时读一次
type BlockDB struct {
	db *sql.DB
}

// OpenBlockDB 打开数据库并初始化表结构
func OpenBlockDB(dbPath string) (*BlockDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return &BlockDB{db: db}, nil
}

func (b *BlockDB) Close() error { return b.db.Close() }

// Load 按插入顺序读出全部条目
func (b *BlockDB) Load() ([]model.DeviceSignature, error) {
	rows, err := b.db.Query("SELECT vid, pid, serial FROM blocklist ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("query blocklist: %w", err)
	}
	defer rows.Close()

	var out []model.DeviceSignature
	for rows.Next() {
		var sig model.DeviceSignature
		if err := rows.Scan(&sig.VendorID, &sig.ProductID, &sig.SerialNumber); err != nil {
			return nil, fmt.Errorf("scan blocklist row: %w", err)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// AddBlockRule 添加黑名单
func (b *BlockDB) AddBlockRule(sig model.DeviceSignature, reason string) error {
	_, err := b.db.Exec(
		"INSERT OR IGNORE INTO blocklist(vid,pid,serial,reason) VALUES (?, ?, ?, ?)",
		sig.VendorID, sig.ProductID, sig.SerialNumber, reason,
	)
	if err != nil {
		return fmt.Errorf("insert block rule %s: %w", sig, err)
	}
	return nil
}
