package service

import (
	"hash/fnv"
	"sync"
)

// keyLock 按 key 分段加锁：同一个 key 总是落在同一把锁上，
// 不同 key 大概率互不阻塞。
type keyLock struct {
	stripes []sync.Mutex
}

func newKeyLock(n int) *keyLock {
	if n <= 0 {
		n = 64
	}
	return &keyLock{stripes: make([]sync.Mutex, n)}
}

func (l *keyLock) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &l.stripes[h.Sum32()%uint32(len(l.stripes))]
}

// Lock 锁住 key 并返回对应的解锁函数。
func (l *keyLock) Lock(key string) (unlock func()) {
	m := l.stripe(key)
	m.Lock()
	return m.Unlock
}
