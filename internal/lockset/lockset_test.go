package lockset

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.Lock("proj-a")
			defer km.Unlock("proj-a")
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	km.Lock("a")
	// A different key must not block.
	done := make(chan struct{})
	go func() {
		km.Lock("b")
		km.Unlock("b")
		close(done)
	}()
	<-done
	km.Unlock("a")
}

func TestTryLockSet_SecondAcquireFails(t *testing.T) {
	ts := NewTryLockSet()
	assert.True(t, ts.TryAcquire("sess-1"))
	assert.False(t, ts.TryAcquire("sess-1"))
	ts.Release("sess-1")
	assert.True(t, ts.TryAcquire("sess-1"))
}

func TestTryLockSet_IndependentSessions(t *testing.T) {
	ts := NewTryLockSet()
	assert.True(t, ts.TryAcquire("sess-1"))
	assert.True(t, ts.TryAcquire("sess-2"))
	ts.Release("sess-1")
	ts.Release("sess-2")
}
