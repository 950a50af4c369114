package cache

import (
	"hash/maphash"

	"github.com/hupe1980/percolate/query"
	"github.com/hupe1980/percolate/resource"
)

const numShards = 16

// ShardedLRU spreads entries across shards to reduce lock contention between
// concurrent verifications.
type ShardedLRU struct {
	shards [numShards]*LRU
	seed   maphash.Seed
}

// NewShardedLRU creates a sharded LRU. The capacity is divided evenly across all
// shards.
func NewShardedLRU(capacity int64, rc *resource.Controller) *ShardedLRU {
	shardCapacity := max(capacity/numShards, 1)

	s := &ShardedLRU{seed: maphash.MakeSeed()}
	for i := range numShards {
		s.shards[i] = NewLRU(shardCapacity, rc)
	}
	return s
}

func (s *ShardedLRU) shard(key Key) *LRU {
	return s.shards[maphash.String(s.seed, key.ID)%numShards]
}

// Get returns a cached query.
func (s *ShardedLRU) Get(key Key) (query.Query, bool) {
	return s.shard(key).Get(key)
}

// Set caches a query.
func (s *ShardedLRU) Set(key Key, q query.Query, size int64) {
	s.shard(key).Set(key, q, size)
}

// Forget drops every entry for id.
func (s *ShardedLRU) Forget(id string) {
	s.shards[maphash.String(s.seed, id)%numShards].Invalidate(func(k Key) bool { return k.ID == id })
}

// Purge drops every entry.
func (s *ShardedLRU) Purge() {
	for _, sh := range s.shards {
		sh.Invalidate(func(Key) bool { return true })
	}
}

// Stats returns aggregated hit and miss counts.
func (s *ShardedLRU) Stats() (hits, misses int64) {
	for _, sh := range s.shards {
		h, m := sh.Stats()
		hits += h
		misses += m
	}
	return hits, misses
}

// Size returns the total size across all shards.
func (s *ShardedLRU) Size() int64 {
	var total int64
	for _, sh := range s.shards {
		total += sh.Size()
	}
	return total
}

// Len returns the number of cached queries.
func (s *ShardedLRU) Len() int {
	var n int
	for _, sh := range s.shards {
		n += sh.Len()
	}
	return n
}
