// Package cache keeps decoded stored queries so repeated verifications skip
// decompression and parsing.
//
// Entries are keyed by stored query id and a hash of the serialized query. A
// replaced query gets a new key, so entries never go stale; Forget only frees the
// memory early.
//
// ShardedLRU uses per-shard mutexes keyed by id for concurrent verifications.
// Sizes are accounted in serialized bytes and may be charged against a
// resource.Controller memory limit.
package cache
