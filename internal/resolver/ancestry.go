package resolver

import (
	"github.com/Hara602/usbGate/internal/registry"
	"github.com/Hara602/usbGate/internal/sysutil"
	"go.uber.org/zap"
)

type Resolver struct {
	reg registry.Registry
	log *zap.Logger
}

func New(reg registry.Registry, log *zap.Logger) *Resolver {
	return &Resolver{reg: reg, log: sysutil.OrNop(log)}
}

// Resolve 从 media 开始向上做深度优先搜索, 找到第一个 USB 设备节点
//
// 返回的节点归调用方所有; 遍历中拿到的其它句柄在返回前全部释放。
// media 本身是借来的, 这里不释放。
func (r *Resolver) Resolve(media registry.Node) (registry.Node, bool) {
	var stack []registry.Node
	// 提前返回时栈里剩下的句柄统一在这里释放
	defer func() {
		for _, n := range stack {
			r.release(n)
		}
	}()

	parents, err := r.reg.Parents(media)
	if err != nil {
		r.log.Debug("media has no readable parents", zap.String("media", media.ID()), zap.Error(err))
		r.releaseAll(parents)
		return nil, false
	}
	stack = pushReversed(stack, parents)

	seen := map[string]bool{media.ID(): true}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if seen[n.ID()] {
			r.release(n)
			continue
		}
		seen[n.ID()] = true

		class, err := r.reg.ClassName(n)
		if err != nil {
			r.log.Debug("class name unreadable, skipping node", zap.String("node", n.ID()), zap.Error(err))
		} else if class == registry.USBHostClass {
			r.log.Debug("USB host device found", zap.String("media", media.ID()), zap.String("device", n.ID()))
			return n, true
		}

		// class 读不到时也继续向上, 只把这个节点当作不匹配
		parents, err := r.reg.Parents(n)
		r.release(n)
		if err != nil {
			r.log.Debug("parents unreadable, dead end", zap.String("node", n.ID()), zap.Error(err))
			r.releaseAll(parents)
			continue
		}
		stack = pushReversed(stack, parents)
	}
	return nil, false
}

func (r *Resolver) release(n registry.Node) {
	if err := r.reg.Release(n); err != nil {
		r.log.Warn("failed to release registry node", zap.String("node", n.ID()), zap.Error(err))
	}
}

// releaseAll 出错时 Parents 也可能带回一部分句柄
func (r *Resolver) releaseAll(nodes []registry.Node) {
	for _, n := range nodes {
		if n != nil {
			r.release(n)
		}
	}
}

// pushReversed 第一个父节点最先出栈, 与递归遍历顺序一致
func pushReversed(stack, nodes []registry.Node) []registry.Node {
	for i := len(nodes) - 1; i >= 0; i-- {
		stack = append(stack, nodes[i])
	}
	return stack
}
