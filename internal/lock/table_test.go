package lock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockExcludesSameKey(t *testing.T) {
	tbl := NewTable()
	var active int32
	var maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := tbl.Lock("folder-a")
			defer release()

			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive, "at most one holder of the same key at a time")
}

func TestLockAllowsDistinctKeys(t *testing.T) {
	tbl := NewTable()
	releaseA := tbl.Lock("a")
	done := make(chan struct{})
	go func() {
		release := tbl.Lock("b")
		release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a distinct key should not block")
	}
	releaseA()
}

func TestReleaseIsIdempotent(t *testing.T) {
	tbl := NewTable()
	release := tbl.Lock("k")
	assert.NotPanics(t, func() {
		release()
		release()
	})
}
