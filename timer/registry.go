package timer

import "sync"

// Registry handle到Entry的映射, 判断定时器是否存活的唯一依据.
// 每个Scheduler独占一个.
type Registry struct {
	mu      sync.RWMutex
	ids     HandleAllocator
	entries map[Handle]*Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[Handle]*Entry)}
}

// register 分配句柄并保存
func (r *Registry) register(e *Entry) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.id = r.ids.NextID()
	r.entries[e.id] = e
	return e.id
}

// lookup 不存在表示未知或已清除, 调用方当作空操作
func (r *Registry) lookup(h Handle) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[h]
	return e, ok
}

// remove 幂等
func (r *Registry) remove(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[h]; !ok {
		return false
	}
	delete(r.entries, h)
	return true
}

// update 原地修改存活的Entry
func (r *Registry) update(h Handle, fn func(e *Entry)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[h]
	if ok {
		fn(e)
	}
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
