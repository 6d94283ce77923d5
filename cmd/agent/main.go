package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/Hara602/usbGate/internal/blackwhitelist"
	"github.com/Hara602/usbGate/internal/config"
	"github.com/Hara602/usbGate/internal/gate"
	"github.com/Hara602/usbGate/internal/registry"
	"github.com/Hara602/usbGate/internal/session"
	"github.com/Hara602/usbGate/internal/sysutil"
	"github.com/Hara602/usbGate/internal/watcher"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

func main() {
	cfg, err := config.LoadFromEnv()
	// 初始化日志
	sysutil.InitLogger(cfg.LogLevel)
	defer sysutil.Log.Sync()
	if err != nil {
		sysutil.Log.Fatal("Config invalid", zap.Error(err))
	}

	// 写 authorized 和 umount 需要 Root 权限
	if cfg.Enforce && unix.Geteuid() != 0 {
		sysutil.LogSugar.Fatal("Must run as root when enforcement is enabled (set USBGATE_ENFORCE=false to only report).")
	}

	sysutil.Log.Info("🛡️ USB Gate Agent Starting...")

	blocklist, err := blackwhitelist.Assemble(cfg.BlocklistFile, cfg.BlocklistDB)
	if err != nil {
		sysutil.Log.Fatal("Blocklist load failed", zap.Error(err))
	}
	sysutil.Log.Info("Blocklist loaded", zap.Int("entries", blocklist.Len()))
	for _, sig := range blocklist.Entries() {
		sysutil.Log.Debug("Blocked device", zap.Stringer("signature", sig))
	}

	// 初始化核心模块 (依赖注入)
	reg := registry.NewSysfs(cfg.SysfsRoot)
	pipeline := gate.NewPipeline(reg, blocklist, sysutil.Log)

	opts := watcher.Options{
		Locator:   reg,
		QueueSize: cfg.QueueSize,
		Logger:    sysutil.Log,
	}
	if cfg.Enforce {
		opts.Enforcer = blackwhitelist.NewEnforcer(sysutil.Log)
	}

	handle, err := session.Start(watcher.New(opts), pipeline, sysutil.Log)
	if err != nil {
		if errors.Is(err, session.ErrSessionUnavailable) {
			sysutil.Log.Error("Mount arbitration unavailable", zap.Error(err))
		} else {
			sysutil.Log.Error("Session start failed", zap.Error(err))
		}
		sysutil.Log.Sync()
		os.Exit(1)
	}
	defer handle.Close()

	sysutil.Log.Info("Mount gate is running...", zap.Bool("enforce", cfg.Enforce))

	// 捕获操作系统信号，优雅关闭服务
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		sysutil.Log.Info("Shutting down...")
	case err := <-handle.Lost():
		// 监听无法恢复, 继续运行等于放行所有挂载
		sysutil.Log.Error("Mount arbitration lost, exiting", zap.Error(err))
		handle.Close()
		sysutil.Log.Sync()
		os.Exit(1)
	}
}
