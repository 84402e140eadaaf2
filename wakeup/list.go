package wakeup

// wheelTimer 时间轮上的一次唤醒请求
type wheelTimer struct {
	id         Handle
	when       int64 // 到期时间 单调毫秒
	prev, next *wheelTimer
}

func (t *wheelTimer) removeFromList() bool {
	if t.prev == nil || t.next == nil {
		return false
	}
	t.prev.next = t.next
	t.next.prev = t.prev
	t.prev = nil
	t.next = nil
	return true
}

// timerList 带哨兵的双向链表, 删除O(1)
type timerList struct {
	root *wheelTimer
}

func newTimerList() *timerList {
	l := new(timerList)
	l.root = new(wheelTimer)
	l.root.prev = l.root
	l.root.next = l.root
	return l
}

func (l *timerList) PushBack(t *wheelTimer) {
	tail := l.root.prev
	tail.next = t
	t.prev = tail
	t.next = l.root
	l.root.prev = t
}

func (l *timerList) IsEmpty() bool {
	return l.root.next == l.root
}

// PopRange 逐个摘下并回调, fn返回false停止
func (l *timerList) PopRange(fn func(t *wheelTimer) bool) {
	for !l.IsEmpty() {
		t := l.root.next
		t.removeFromList()
		if !fn(t) {
			break
		}
	}
}

// Clear 快速清空，让gc回收节点
func (l *timerList) Clear() {
	for t := l.root.next; t != l.root; {
		next := t.next
		t.prev, t.next = nil, nil
		t = next
	}
	l.root.prev = l.root
	l.root.next = l.root
}
