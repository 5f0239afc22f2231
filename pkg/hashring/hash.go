// Package hashring provides the FNV-1a key hashing used to pick a shard for
// a cache key. Shard count is fixed at CacheStore construction time, so the
// virtual-node ring machinery the hash was originally built for (routing a
// key to one of a variable set of remote nodes) is unnecessary here — only
// the hash function itself is reused.
package hashring

import "hash/fnv"

// ShardIndex returns the shard a key is assigned to, in [0, numShards).
// numShards must be > 0.
func ShardIndex(key string, numShards int) int {
	if numShards <= 1 {
		return 0
	}
	h := fnv.New64a()
	h.Write([]byte(key))
	return int(h.Sum64() % uint64(numShards))
}
