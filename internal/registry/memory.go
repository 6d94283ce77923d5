package registry

import (
	"fmt"
	"sync"
)

// Memory 内存版设备树, 记录未释放的句柄数, 测试用
type Memory struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	live    map[*memHandle]struct{}
	nextSeq int

	failParents    map[string]bool
	partialParents map[string]bool
	failClass      map[string]bool
	failRelease    map[string]bool
}

type memEntry struct {
	class   string
	parents []string
	props   map[string]any
}

type memHandle struct {
	id  string
	seq int
}

func (h *memHandle) ID() string { return h.id }

func NewMemory() *Memory {
	return &Memory{
		entries:     make(map[string]*memEntry),
		live:        make(map[*memHandle]struct{}),
		failParents:    make(map[string]bool),
		partialParents: make(map[string]bool),
		failClass:      make(map[string]bool),
		failRelease:    make(map[string]bool),
	}
}

// Add 注册一个节点, parents 按顺序遍历
func (m *Memory) Add(id, class string, props map[string]any, parents ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = &memEntry{class: class, parents: parents, props: props}
}

func (m *Memory) FailParents(id string) { m.mu.Lock(); m.failParents[id] = true; m.mu.Unlock() }
func (m *Memory) FailClass(id string)   { m.mu.Lock(); m.failClass[id] = true; m.mu.Unlock() }

// FailParentsPartial Parents 返回已经取得的句柄, 同时返回错误
func (m *Memory) FailParentsPartial(id string) {
	m.mu.Lock()
	m.partialParents[id] = true
	m.mu.Unlock()
}
func (m *Memory) FailRelease(id string) { m.mu.Lock(); m.failRelease[id] = true; m.mu.Unlock() }

// Acquire 取得一个节点句柄, 调用方负责 Release
func (m *Memory) Acquire(id string) (Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m.acquireLocked(id), nil
}

func (m *Memory) acquireLocked(id string) *memHandle {
	m.nextSeq++
	h := &memHandle{id: id, seq: m.nextSeq}
	m.live[h] = struct{}{}
	return h
}

// Outstanding 尚未释放的句柄数
func (m *Memory) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

func (m *Memory) entry(n Node) (*memEntry, error) {
	h, ok := n.(*memHandle)
	if !ok {
		return nil, fmt.Errorf("%w: foreign node %v", ErrNotFound, n)
	}
	if _, ok := m.live[h]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrReleased, h.id)
	}
	e, ok := m.entries[h.id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, h.id)
	}
	return e, nil
}

func (m *Memory) Parents(n Node) ([]Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.entry(n)
	if err != nil {
		return nil, err
	}
	if m.failParents[n.ID()] {
		return nil, fmt.Errorf("%w: parents of %s", ErrUnreadable, n.ID())
	}
	out := make([]Node, 0, len(e.parents))
	for _, p := range e.parents {
		if _, ok := m.entries[p]; !ok {
			continue
		}
		out = append(out, m.acquireLocked(p))
	}
	if m.partialParents[n.ID()] {
		return out, fmt.Errorf("%w: parents of %s truncated", ErrUnreadable, n.ID())
	}
	return out, nil
}

func (m *Memory) ClassName(n Node) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.entry(n)
	if err != nil {
		return "", err
	}
	if m.failClass[n.ID()] {
		return "", fmt.Errorf("%w: class of %s", ErrUnreadable, n.ID())
	}
	return e.class, nil
}

func (m *Memory) Properties(n Node) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.entry(n)
	if err != nil {
		return nil, err
	}
	props := make(map[string]any, len(e.props))
	for k, v := range e.props {
		props[k] = v
	}
	return props, nil
}

// Release 即使注入了失败, 句柄也会被回收
func (m *Memory) Release(n Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := n.(*memHandle)
	if !ok {
		return fmt.Errorf("%w: foreign node %v", ErrNotFound, n)
	}
	if _, ok := m.live[h]; !ok {
		return fmt.Errorf("%w: %s", ErrReleased, h.id)
	}
	delete(m.live, h)
	if m.failRelease[h.id] {
		return fmt.Errorf("release %s: injected failure", h.id)
	}
	return nil
}
