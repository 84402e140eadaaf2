package skiplist

// Keyed 按key去重的有序集合, 同一个key只保留最后一次Set的数据
// K: 唯一标识，T: 参与排序的数据，需要包含K以保证T在表里唯一
type Keyed[K comparable, T ElemType[T]] struct {
	sl   *SkipList[T]
	dict map[K]T
}

func NewKeyed[K comparable, T ElemType[T]]() *Keyed[K, T] {
	return &Keyed[K, T]{
		sl:   NewSkipList[T](),
		dict: make(map[K]T),
	}
}

// Set 添加或替换
func (t *Keyed[K, T]) Set(key K, data T) {
	if old, ok := t.dict[key]; ok {
		t.sl.Remove(old)
	}
	t.sl.Insert(data)
	t.dict[key] = data
}

func (t *Keyed[K, T]) Get(key K) (data T, ok bool) {
	data, ok = t.dict[key]
	return
}

func (t *Keyed[K, T]) Remove(key K) bool {
	if d, ok := t.dict[key]; ok {
		t.sl.Remove(d)
		delete(t.dict, key)
		return true
	}
	return false
}

func (t *Keyed[K, T]) Front() (T, bool) {
	return t.sl.Front()
}

// PopFront keyOf用于从数据里取回key
func (t *Keyed[K, T]) PopFront(keyOf func(T) K) (data T, ok bool) {
	data, ok = t.sl.PopFront()
	if ok {
		delete(t.dict, keyOf(data))
	}
	return
}

func (t *Keyed[K, T]) Foreach(f func(data T, rank int) bool) {
	t.sl.Foreach(f)
}

func (t *Keyed[K, T]) Clear() {
	t.sl.Clear()
	clear(t.dict)
}

func (t *Keyed[K, T]) Len() int {
	return t.sl.length
}
