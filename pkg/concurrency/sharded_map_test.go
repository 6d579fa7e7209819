package concurrency

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShardedMapBasics(t *testing.T) {
	m := NewShardedMapString[int]()

	_, ok := m.Get("missing")
	assert.False(t, ok)

	m.Set("a", 1)
	m.Set("b", 2)

	v, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, m.Len())

	m.Delete("a")
	_, ok = m.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Len())
}

func TestShardedMapKeysAndRange(t *testing.T) {
	m := NewShardedMapString[string]()
	want := []string{}
	for i := 0; i < 20; i++ {
		k := fmt.Sprintf("node%d", i)
		want = append(want, k)
		m.Set(k, k)
	}

	assert.ElementsMatch(t, want, m.Keys())

	count := 0
	m.Range(func(key string, value string) bool {
		count++
		return count < 5
	})
	assert.Equal(t, 5, count, "Range must stop when fn returns false")
}

func TestShardedMapConcurrentAccess(t *testing.T) {
	m := NewShardedMapString[int]()
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%32)
				m.Set(key, g)
				m.Get(key)
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, 32, m.Len())
}
