package engine

import (
	"context"
	"fmt"

	"github.com/moolen/engine-client/internal/results"
	"golang.org/x/sync/errgroup"
)

// FetchBuckets looks up several known buckets of a job in parallel, at most
// WithFetchConcurrency at a time. The output is in the order of keys; a
// missing bucket is an entry with Exists=false. The first failure cancels
// the remaining lookups and is returned.
func (c *Client) FetchBuckets(ctx context.Context, jobID string, keys []string, expand bool) ([]*results.SingleDocument[results.Bucket], error) {
	out := make([]*results.SingleDocument[results.Bucket], len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.fetchConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			doc, err := c.Bucket(jobID, key).Expand(expand).Get(gctx)
			if err != nil {
				return fmt.Errorf("bucket %s: %w", key, err)
			}
			out[i] = doc
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch buckets of %s: %w", jobID, err)
	}

	c.logger.Debug("Fetched %d buckets of job %s", len(keys), jobID)
	return out, nil
}
