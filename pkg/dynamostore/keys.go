package dynamostore

import (
	"fmt"
	"hash/fnv"
)

// resolvePartitionKey spreads an aggregate type's rows across shardCount
// partitions by hashing the aggregate id, the same sharding shape as the
// original's DynamoDB backend (which hashes with Rust's DefaultHasher; this
// implementation uses FNV-1a since the two runtimes can't share a hash
// function, and only a stable, deterministic shard assignment within this
// implementation is required).
func resolvePartitionKey(aggregateType, aggregateID string, shardCount int) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(aggregateID))
	remainder := h.Sum32() % uint32(shardCount)
	return fmt.Sprintf("%s-%d", aggregateType, remainder)
}

// resolveSortKey orders journal rows for one aggregate by sequence number
// within its partition.
func resolveSortKey(aggregateType, aggregateID string, seqNr int64) string {
	return fmt.Sprintf("%s-%s-%d", aggregateType, aggregateID, seqNr)
}

// snapshotPartitionKey and snapshotSortKey key the snapshot table by
// aggregate type and id directly: there is exactly one live snapshot row
// per aggregate, so it needs no shard spread.
func snapshotPartitionKey(aggregateType, aggregateID string) string {
	return fmt.Sprintf("%s-%s", aggregateType, aggregateID)
}

func invertedIndexPartitionKey(keyword string) string {
	return keyword
}
