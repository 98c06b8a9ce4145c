package utils

import (
	"slices"
	"sync"

	"github.com/twmb/murmur3"
)

// KeyedMutex 按 key 分片的互斥锁，分槽方式与 KeyedPool 相同。
// 多个 key 总是按分片序号递增加锁，因此任意组合之间不会死锁
type KeyedMutex struct {
	stripes []sync.Mutex
}

func NewKeyedMutex(stripes int) *KeyedMutex {
	if stripes <= 0 {
		stripes = 1
	}
	return &KeyedMutex{stripes: make([]sync.Mutex, stripes)}
}

// Lock 锁住 keys 所在的分片，返回解锁函数
func (m *KeyedMutex) Lock(keys ...string) (unlock func()) {
	slots := make([]int, 0, len(keys))
	for _, key := range keys {
		slots = append(slots, m.slot(key))
	}
	slices.Sort(slots)
	return m.lockSlots(slices.Compact(slots))
}

// LockAll 锁住全部分片，等待所有持锁者退出
func (m *KeyedMutex) LockAll() (unlock func()) {
	slots := make([]int, len(m.stripes))
	for i := range slots {
		slots[i] = i
	}
	return m.lockSlots(slots)
}

func (m *KeyedMutex) lockSlots(slots []int) func() {
	for _, i := range slots {
		m.stripes[i].Lock()
	}
	return func() {
		for i := len(slots) - 1; i >= 0; i-- {
			m.stripes[slots[i]].Unlock()
		}
	}
}

func (m *KeyedMutex) slot(key string) int {
	return int(murmur3.StringSum32(key) % uint32(len(m.stripes)))
}
