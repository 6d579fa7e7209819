package concurrency

import (
	"hash/fnv"
	"sync"
)

const shardCount = 64

// ShardedMapString is a concurrent map with string keys, sharded to
// spread lock contention. The transport uses one as its endpoint
// registry, where every call and multicall performs a lookup.
type ShardedMapString[V any] struct {
	shards []*shardString[V]
}

type shardString[V any] struct {
	mu   sync.RWMutex
	data map[string]V
}

func NewShardedMapString[V any]() *ShardedMapString[V] {
	m := &ShardedMapString[V]{
		shards: make([]*shardString[V], shardCount),
	}
	for i := 0; i < shardCount; i++ {
		m.shards[i] = &shardString[V]{
			data: make(map[string]V),
		}
	}
	return m
}

func (m *ShardedMapString[V]) getShard(key string) *shardString[V] {
	h := fnv.New32a()
	h.Write([]byte(key))
	return m.shards[uint(h.Sum32())%shardCount]
}

func (m *ShardedMapString[V]) Set(key string, value V) {
	shard := m.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.data[key] = value
}

func (m *ShardedMapString[V]) Get(key string) (V, bool) {
	shard := m.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	val, ok := shard.data[key]
	return val, ok
}

func (m *ShardedMapString[V]) Delete(key string) {
	shard := m.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	delete(shard.data, key)
}

// Range calls fn for each entry until fn returns false. Entries added
// or removed concurrently may or may not be visited.
func (m *ShardedMapString[V]) Range(fn func(key string, value V) bool) {
	for _, shard := range m.shards {
		shard.mu.RLock()
		for k, v := range shard.data {
			if !fn(k, v) {
				shard.mu.RUnlock()
				return
			}
		}
		shard.mu.RUnlock()
	}
}

// Keys returns a snapshot of the current keys.
func (m *ShardedMapString[V]) Keys() []string {
	var keys []string
	m.Range(func(key string, _ V) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

func (m *ShardedMapString[V]) Len() int {
	n := 0
	for _, shard := range m.shards {
		shard.mu.RLock()
		n += len(shard.data)
		shard.mu.RUnlock()
	}
	return n
}
