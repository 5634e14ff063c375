package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/moolen/engine-client/internal/results"
	"go.opentelemetry.io/otel/attribute"
)

// ErrInvalidQuery is wrapped by errors for query parameters the service
// would reject, such as a negative skip.
var ErrInvalidQuery = errors.New("invalid query")

// filters are the parameters shared by the collection queries.
type filters struct {
	skip           int
	take           int
	includeInterim bool
	start          time.Time
	end            time.Time
	minScore       float64
	minProbability float64
}

func (f filters) validate() error {
	switch {
	case f.skip < 0:
		return fmt.Errorf("%w: skip must not be negative, got %d", ErrInvalidQuery, f.skip)
	case f.take < 0:
		return fmt.Errorf("%w: take must not be negative, got %d", ErrInvalidQuery, f.take)
	case !f.start.IsZero() && !f.end.IsZero() && !f.end.After(f.start):
		return fmt.Errorf("%w: end %s is not after start %s", ErrInvalidQuery,
			f.end.Format(time.RFC3339), f.start.Format(time.RFC3339))
	case f.minScore < 0 || f.minScore > 100:
		return fmt.Errorf("%w: anomaly score filter must be within 0..100", ErrInvalidQuery)
	case f.minProbability < 0 || f.minProbability > 100:
		return fmt.Errorf("%w: probability filter must be within 0..100", ErrInvalidQuery)
	}
	return nil
}

// values renders the parameters for one page starting at skip. take is only
// sent when set, leaving the page size to the service otherwise.
func (f filters) values(skip int, probabilityParam string) url.Values {
	v := url.Values{}
	v.Set("skip", strconv.Itoa(skip))
	if f.take > 0 {
		v.Set("take", strconv.Itoa(f.take))
	}
	if f.includeInterim {
		v.Set("includeInterim", "true")
	}
	if !f.start.IsZero() {
		v.Set("start", f.start.UTC().Format(time.RFC3339))
	}
	if !f.end.IsZero() {
		v.Set("end", f.end.UTC().Format(time.RFC3339))
	}
	if f.minScore > 0 {
		v.Set("anomalyScore", strconv.FormatFloat(f.minScore, 'f', -1, 64))
	}
	if f.minProbability > 0 {
		v.Set(probabilityParam, strconv.FormatFloat(f.minProbability, 'f', -1, 64))
	}
	return v
}

// BucketsQuery reads a job's buckets a page at a time. It is a value: every
// setter returns a modified copy and the receiver is left unchanged.
type BucketsQuery struct {
	client *Client
	jobID  string
	filters
	expand bool
}

// Buckets starts a bucket collection query for jobID.
func (c *Client) Buckets(jobID string) BucketsQuery {
	return BucketsQuery{client: c, jobID: jobID}
}

// Skip sets the offset of the first bucket.
func (q BucketsQuery) Skip(n int) BucketsQuery { q.skip = n; return q }

// Take sets the page size. Zero leaves it to the service.
func (q BucketsQuery) Take(n int) BucketsQuery { q.take = n; return q }

// Expand includes each bucket's anomaly records.
func (q BucketsQuery) Expand(expand bool) BucketsQuery { q.expand = expand; return q }

// IncludeInterim includes buckets that are still being analysed.
func (q BucketsQuery) IncludeInterim(include bool) BucketsQuery { q.includeInterim = include; return q }

// Start restricts results to buckets at or after t.
func (q BucketsQuery) Start(t time.Time) BucketsQuery { q.start = t; return q }

// End restricts results to buckets before t.
func (q BucketsQuery) End(t time.Time) BucketsQuery { q.end = t; return q }

// MinAnomalyScore drops buckets scoring below score.
func (q BucketsQuery) MinAnomalyScore(score float64) BucketsQuery { q.minScore = score; return q }

// MinNormalizedProbability drops buckets whose maxNormalizedProbability is
// below p.
func (q BucketsQuery) MinNormalizedProbability(p float64) BucketsQuery {
	q.minProbability = p
	return q
}

// Get fetches the page selected by the query's skip and take.
func (q BucketsQuery) Get(ctx context.Context) (*results.Pagination[results.Bucket], error) {
	return q.PageAt(ctx, q.skip)
}

// InitialSkip implements Pager.
func (q BucketsQuery) InitialSkip() int { return q.skip }

// PageAt implements Pager.
func (q BucketsQuery) PageAt(ctx context.Context, skip int) (*results.Pagination[results.Bucket], error) {
	f := q.filters
	f.skip = skip
	if err := f.validate(); err != nil {
		return nil, err
	}
	v := f.values(skip, "maxNormalizedProbability")
	if q.expand {
		v.Set("expand", "true")
	}
	return getPage[results.Bucket](ctx, q.client, "get buckets", q.client.endpoint(v, "results", q.jobID, "buckets"))
}

// PageFrom implements Pager.
func (q BucketsQuery) PageFrom(ctx context.Context, nextPage string) (*results.Pagination[results.Bucket], error) {
	return FetchPage[results.Bucket](ctx, q.client, nextPage)
}

// Walk fetches every page from the query's skip on. See Walk.
func (q BucketsQuery) Walk(ctx context.Context, opts ...WalkOption[results.Bucket]) (*WalkResult[results.Bucket], error) {
	return Walk[results.Bucket](ctx, q, opts...)
}

// RecordsQuery reads a job's anomaly records across buckets.
type RecordsQuery struct {
	client *Client
	jobID  string
	filters
	sortField  string
	descending bool
}

// Records starts an anomaly record query for jobID.
func (c *Client) Records(jobID string) RecordsQuery {
	return RecordsQuery{client: c, jobID: jobID}
}

// Skip sets the offset of the first record.
func (q RecordsQuery) Skip(n int) RecordsQuery { q.skip = n; return q }

// Take sets the page size. Zero leaves it to the service.
func (q RecordsQuery) Take(n int) RecordsQuery { q.take = n; return q }

// IncludeInterim includes records of buckets still being analysed.
func (q RecordsQuery) IncludeInterim(include bool) RecordsQuery { q.includeInterim = include; return q }

// Start restricts results to records at or after t.
func (q RecordsQuery) Start(t time.Time) RecordsQuery { q.start = t; return q }

// End restricts results to records before t.
func (q RecordsQuery) End(t time.Time) RecordsQuery { q.end = t; return q }

// MinAnomalyScore drops records scoring below score.
func (q RecordsQuery) MinAnomalyScore(score float64) RecordsQuery { q.minScore = score; return q }

// MinNormalizedProbability drops records below p.
func (q RecordsQuery) MinNormalizedProbability(p float64) RecordsQuery {
	q.minProbability = p
	return q
}

// SortField orders records by a result field, e.g. "normalizedProbability".
func (q RecordsQuery) SortField(field string) RecordsQuery { q.sortField = field; return q }

// Descending reverses the sort order.
func (q RecordsQuery) Descending(desc bool) RecordsQuery { q.descending = desc; return q }

// Get fetches the page selected by the query's skip and take.
func (q RecordsQuery) Get(ctx context.Context) (*results.Pagination[results.AnomalyRecord], error) {
	return q.PageAt(ctx, q.skip)
}

// InitialSkip implements Pager.
func (q RecordsQuery) InitialSkip() int { return q.skip }

// PageAt implements Pager.
func (q RecordsQuery) PageAt(ctx context.Context, skip int) (*results.Pagination[results.AnomalyRecord], error) {
	f := q.filters
	f.skip = skip
	if err := f.validate(); err != nil {
		return nil, err
	}
	v := f.values(skip, "normalizedProbability")
	if q.sortField != "" {
		v.Set("sort", q.sortField)
	}
	if q.descending {
		v.Set("desc", "true")
	}
	return getPage[results.AnomalyRecord](ctx, q.client, "get records", q.client.endpoint(v, "results", q.jobID, "records"))
}

// PageFrom implements Pager.
func (q RecordsQuery) PageFrom(ctx context.Context, nextPage string) (*results.Pagination[results.AnomalyRecord], error) {
	return FetchPage[results.AnomalyRecord](ctx, q.client, nextPage)
}

// Walk fetches every page from the query's skip on. See Walk.
func (q RecordsQuery) Walk(ctx context.Context, opts ...WalkOption[results.AnomalyRecord]) (*WalkResult[results.AnomalyRecord], error) {
	return Walk[results.AnomalyRecord](ctx, q, opts...)
}

// BucketQuery looks up one bucket by its epoch key.
type BucketQuery struct {
	client         *Client
	jobID          string
	key            string
	expand         bool
	includeInterim bool
}

// Bucket starts a single-bucket lookup. key is the bucket's start time in
// epoch seconds, as returned by Bucket.ID.
func (c *Client) Bucket(jobID, key string) BucketQuery {
	return BucketQuery{client: c, jobID: jobID, key: key}
}

// Expand includes the bucket's anomaly records and their causes.
func (q BucketQuery) Expand(expand bool) BucketQuery { q.expand = expand; return q }

// IncludeInterim allows an interim bucket to be returned.
func (q BucketQuery) IncludeInterim(include bool) BucketQuery { q.includeInterim = include; return q }

// Get fetches the bucket. A missing bucket is Exists=false, not an error.
func (q BucketQuery) Get(ctx context.Context) (doc *results.SingleDocument[results.Bucket], err error) {
	const op = "get bucket"
	c := q.client
	c.resetLastError()

	if q.jobID == "" || q.key == "" {
		return nil, fmt.Errorf("%w: job id and bucket key are required", ErrInvalidQuery)
	}

	cacheKey := bucketCacheKey(q.jobID, q.key, q.expand, q.includeInterim)
	if b, ok := c.cache.get(cacheKey); ok {
		c.metrics.cacheHit()
		return results.Found(b), nil
	}

	ctx, span := c.startSpan(ctx, "engine.GetBucket",
		attribute.String("job.id", q.jobID),
		attribute.String("bucket.key", q.key),
		attribute.Bool("bucket.expand", q.expand),
	)
	defer func() { finishSpan(span, err) }()

	v := url.Values{}
	if q.expand {
		v.Set("expand", "true")
	}
	if q.includeInterim {
		v.Set("includeInterim", "true")
	}

	resp, err := c.exchange(ctx, op, http.MethodGet, c.endpoint(v, "results", q.jobID, "buckets", q.key), nil, nil)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.mirrorNotFound(resp.Body)
		return results.NotFound[results.Bucket](), nil
	case !resp.IsSuccess():
		return nil, c.requestError(op, resp)
	}

	doc = &results.SingleDocument[results.Bucket]{}
	if err := c.codec.Decode(resp.Body, doc); err != nil {
		return nil, &DecodeError{Op: op, Err: err}
	}
	if err := doc.Validate(); err != nil {
		return nil, &DecodeError{Op: op, Err: err}
	}
	if b, ok := doc.Get(); ok {
		if err := b.Validate(); err != nil {
			return nil, &DecodeError{Op: op, Err: err}
		}
		c.cache.add(cacheKey, b)
	}
	return doc, nil
}
