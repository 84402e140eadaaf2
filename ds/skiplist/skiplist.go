package skiplist

import (
	"math/rand"
	"time"
)

const (
	maxLevel  = 32   // 跳跃表最大层数
	skipListP = 0.25 // 随机概率
)

// ElemType 元素自身定义顺序, Compare==0 视为同一个元素
type ElemType[T any] interface {
	Compare(o T) int
}

func randomLevel(r *rand.Rand) int {
	level := 1
	for r.Float32() < skipListP && level < maxLevel {
		level++
	}
	return level
}

type Node[T ElemType[T]] struct {
	Data  T
	level []skiplistLevel[T]
}

type skiplistLevel[T ElemType[T]] struct {
	next *Node[T]
	span int
}

type SkipList[T ElemType[T]] struct {
	header *Node[T]
	level  int
	length int
	rand   *rand.Rand
}

func NewSkipList[T ElemType[T]]() *SkipList[T] {
	return NewSkipListWithSeed[T](time.Now().UnixNano())
}

// NewSkipListWithSeed 固定随机种子, 测试用
func NewSkipListWithSeed[T ElemType[T]](seed int64) *SkipList[T] {
	header := &Node[T]{}
	header.level = make([]skiplistLevel[T], maxLevel)
	return &SkipList[T]{
		header: header,
		level:  1,
		rand:   rand.New(rand.NewSource(seed)),
	}
}

// 插入新的元素，返回rank(从1开始);
// 这里假设data不在表中，由上层保证data不重复
func (sl *SkipList[T]) Insert(data T) int {
	var update [maxLevel]*Node[T]
	var rank [maxLevel]int

	x := sl.header
	for i := sl.level - 1; i >= 0; i-- {
		if i != sl.level-1 {
			rank[i] = rank[i+1]
		}
		for x.level[i].next != nil && x.level[i].next.Data.Compare(data) < 0 {
			rank[i] += x.level[i].span
			x = x.level[i].next
		}
		update[i] = x
	}
	level := randomLevel(sl.rand)
	if level > sl.level {
		for i := sl.level; i < level; i++ {
			rank[i] = 0
			update[i] = sl.header
			update[i].level[i].span = sl.length
		}
		sl.level = level
	}
	x = &Node[T]{Data: data, level: make([]skiplistLevel[T], level)}
	for i := 0; i < level; i++ {
		x.level[i].next = update[i].level[i].next
		update[i].level[i].next = x
		// x插入后重新划分update[i]覆盖的跨度
		x.level[i].span = update[i].level[i].span - (rank[0] - rank[i])
		update[i].level[i].span = (rank[0] - rank[i]) + 1
	}
	// 未触及的高层跨度+1
	for i := level; i < sl.level; i++ {
		update[i].level[i].span++
	}
	sl.length++
	return rank[0] + 1
}

func (sl *SkipList[T]) Remove(data T) bool {
	var update [maxLevel]*Node[T]

	x := sl.header
	for i := sl.level - 1; i >= 0; i-- {
		for x.level[i].next != nil && x.level[i].next.Data.Compare(data) < 0 {
			x = x.level[i].next
		}
		update[i] = x
	}
	x = x.level[0].next
	if x == nil || x.Data.Compare(data) != 0 {
		return false
	}
	sl.unlink(x, &update)
	return true
}

func (sl *SkipList[T]) unlink(x *Node[T], update *[maxLevel]*Node[T]) {
	for i := 0; i < sl.level; i++ {
		if update[i].level[i].next == x {
			update[i].level[i].span += x.level[i].span - 1
			update[i].level[i].next = x.level[i].next
		} else {
			update[i].level[i].span--
		}
	}
	for sl.level > 1 && sl.header.level[sl.level-1].next == nil {
		sl.level--
	}
	sl.length--
}

func (sl *SkipList[T]) Contains(data T) bool {
	x := sl.header
	for i := sl.level - 1; i >= 0; i-- {
		for x.level[i].next != nil && x.level[i].next.Data.Compare(data) < 0 {
			x = x.level[i].next
		}
	}
	x = x.level[0].next
	return x != nil && x.Data.Compare(data) == 0
}

// GetRank 通过数据获取rank, 不存在返回-1
func (sl *SkipList[T]) GetRank(data T) int {
	rank := 0
	x := sl.header
	for i := sl.level - 1; i >= 0; i-- {
		for x.level[i].next != nil && x.level[i].next.Data.Compare(data) < 0 {
			rank += x.level[i].span
			x = x.level[i].next
		}
	}
	x = x.level[0].next
	if x != nil && x.Data.Compare(data) == 0 {
		return rank + 1
	}
	return -1
}

// Front 最小元素
func (sl *SkipList[T]) Front() (data T, ok bool) {
	if x := sl.header.level[0].next; x != nil {
		return x.Data, true
	}
	return
}

// PopFront 删除并返回最小元素
func (sl *SkipList[T]) PopFront() (data T, ok bool) {
	x := sl.header.level[0].next
	if x == nil {
		return
	}
	var update [maxLevel]*Node[T]
	for i := 0; i < sl.level; i++ {
		update[i] = sl.header
	}
	sl.unlink(x, &update)
	return x.Data, true
}

// Foreach 按顺序遍历, fn不能修改跳表
func (sl *SkipList[T]) Foreach(f func(T, int) bool) {
	rank := 1
	for x := sl.header.level[0].next; x != nil; x = x.level[0].next {
		if !f(x.Data, rank) {
			break
		}
		rank++
	}
}

func (sl *SkipList[T]) Clear() {
	for i := 0; i < maxLevel; i++ {
		sl.header.level[i].next = nil
		sl.header.level[i].span = 0
	}
	sl.level = 1
	sl.length = 0
}

func (sl *SkipList[T]) Len() int {
	return sl.length
}
