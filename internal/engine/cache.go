package engine

import (
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/moolen/engine-client/internal/results"
)

// bucketCache holds single-bucket lookups keyed by job, bucket and query
// flags. A nil *bucketCache is valid and caches nothing. Buckets are copied
// in and out, so a caller editing its records never changes an entry.
type bucketCache struct {
	lru *expirable.LRU[string, results.Bucket]
}

func newBucketCache(size int, ttl time.Duration) *bucketCache {
	return &bucketCache{lru: expirable.NewLRU[string, results.Bucket](size, nil, ttl)}
}

func bucketCacheKey(jobID, bucketKey string, expand, includeInterim bool) string {
	return jobID + "\x00" + bucketKey + "\x00" + strconv.FormatBool(expand) + "\x00" + strconv.FormatBool(includeInterim)
}

func (bc *bucketCache) get(key string) (results.Bucket, bool) {
	if bc == nil {
		return results.Bucket{}, false
	}
	b, ok := bc.lru.Get(key)
	if !ok {
		return results.Bucket{}, false
	}
	return cloneBucket(b), true
}

// add stores a final bucket. Interim buckets change as data arrives.
func (bc *bucketCache) add(key string, b results.Bucket) {
	if bc == nil || b.IsInterim {
		return
	}
	bc.lru.Add(key, cloneBucket(b))
}

// cloneBucket copies b down to the causes of each record.
func cloneBucket(b results.Bucket) results.Bucket {
	if b.Records == nil {
		return b
	}
	records := make([]results.AnomalyRecord, len(b.Records))
	for i, r := range b.Records {
		if r.Causes != nil {
			r.Causes = append([]results.AnomalyCause(nil), r.Causes...)
		}
		records[i] = r
	}
	b.Records = records
	return b
}

// invalidateJob drops every entry of jobID.
func (bc *bucketCache) invalidateJob(jobID string) {
	if bc == nil {
		return
	}
	prefix := jobID + "\x00"
	for _, k := range bc.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			bc.lru.Remove(k)
		}
	}
}

func (bc *bucketCache) len() int {
	if bc == nil {
		return 0
	}
	return bc.lru.Len()
}
