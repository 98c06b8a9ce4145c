package utils

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutexExcludesSameKey(t *testing.T) {
	m := NewKeyedMutex(16)
	unlock := m.Lock("chat-1")

	var acquired atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		release := m.Lock("chat-1")
		acquired.Store(true)
		release()
	}()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, acquired.Load(), "second holder must wait")
	unlock()
	<-done
	assert.True(t, acquired.Load())
}

func TestKeyedMutexLockAllWaitsForHolders(t *testing.T) {
	m := NewKeyedMutex(8)
	unlock := m.Lock("a", "b", "a")

	var acquired atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		release := m.LockAll()
		acquired.Store(true)
		release()
	}()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, acquired.Load())
	unlock()
	<-done
	assert.True(t, acquired.Load())

	// 锁已全部释放
	m.Lock("a")()
	m.LockAll()()
}

func TestKeyedMutexOverlappingKeySetsDoNotDeadlock(t *testing.T) {
	m := NewKeyedMutex(4)
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Go(func() {
			keys := []string{fmt.Sprintf("k%d", i%5), fmt.Sprintf("k%d", (i+3)%5)}
			if i%2 == 0 {
				keys[0], keys[1] = keys[1], keys[0]
			}
			m.Lock(keys...)()
			if i%10 == 0 {
				m.LockAll()()
			}
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lockers deadlocked")
	}
}
