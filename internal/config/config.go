package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "USBGATE"

	KeySysfsRoot     = "sysfs_root"
	KeyBlocklistFile = "blocklist_file"
	KeyBlocklistDB   = "blocklist_db"
	KeyEnforce       = "enforce"
	KeyLogLevel      = "log_level"
	KeyQueueSize     = "queue_size"

	DefaultSysfsRoot = "/sys"
	DefaultLogLevel  = "debug"
	DefaultQueueSize = 16
	MaxQueueSize     = 4096
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config 进程启动时读取一次, 之后只读
type Config struct {
	SysfsRoot     string
	BlocklistFile string // 可选, YAML
	BlocklistDB   string // 可选, sqlite
	Enforce       bool
	LogLevel      string
	QueueSize     int
}

// New 返回绑定 USBGATE_* 环境变量的 viper 实例, 默认值都在这里
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetDefault(KeySysfsRoot, DefaultSysfsRoot)
	v.SetDefault(KeyBlocklistFile, "")
	v.SetDefault(KeyBlocklistDB, "")
	v.SetDefault(KeyEnforce, true)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyQueueSize, DefaultQueueSize)
	return v
}

// LoadFromEnv 读取环境变量并校验
func LoadFromEnv() (Config, error) {
	return Load(New())
}

// Load 测试里可以传入 v.Set 过的实例
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		SysfsRoot:     valueOr(v.GetString(KeySysfsRoot), DefaultSysfsRoot),
		BlocklistFile: strings.TrimSpace(v.GetString(KeyBlocklistFile)),
		BlocklistDB:   strings.TrimSpace(v.GetString(KeyBlocklistDB)),
		LogLevel:      strings.ToLower(valueOr(v.GetString(KeyLogLevel), DefaultLogLevel)),
	}

	// GetBool/GetInt 解析失败时静默返回零值, 这里要报错
	enforce, err := cast.ToBoolE(trimmed(v.Get(KeyEnforce)))
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidConfig, envName(KeyEnforce), v.GetString(KeyEnforce))
	}
	cfg.Enforce = enforce

	size, err := cast.ToIntE(trimmed(v.Get(KeyQueueSize)))
	if err != nil || size < 1 || size > MaxQueueSize {
		return Config{}, fmt.Errorf("%w: %s=%q must be between 1 and %d", ErrInvalidConfig, envName(KeyQueueSize), v.GetString(KeyQueueSize), MaxQueueSize)
	}
	cfg.QueueSize = size

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("%w: %s=%q", ErrInvalidConfig, envName(KeyLogLevel), cfg.LogLevel)
	}
	return cfg, nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(key)
}

func trimmed(raw any) any {
	if s, ok := raw.(string); ok {
		return strings.TrimSpace(s)
	}
	return raw
}

func valueOr(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
