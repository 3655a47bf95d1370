package atomiccowcache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/atomic"
)

func TestCacheGeneratesOncePerKey(t *testing.T) {
	var calls atomic.Int32
	c := NewCache(func(k string) int {
		calls.Inc()
		return len(k)
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, 5, c.Get("hello"))
			assert.Equal(t, 2, c.Get("hi"))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, c.Len())
}
