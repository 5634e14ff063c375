package engine

import (
	"context"
	"fmt"
	"net/http"

	"github.com/moolen/engine-client/internal/logging"
	"github.com/moolen/engine-client/internal/results"
	"go.opentelemetry.io/otel/attribute"
)

// Pager yields the pages of one result collection. BucketsQuery and
// RecordsQuery implement it.
type Pager[T any] interface {
	// InitialSkip is the offset of the first page.
	InitialSkip() int
	// PageAt fetches the page starting at skip with the query's other
	// parameters unchanged.
	PageAt(ctx context.Context, skip int) (*results.Pagination[T], error)
	// PageFrom dereferences a nextPage continuation token.
	PageFrom(ctx context.Context, nextPage string) (*results.Pagination[T], error)
}

// WalkResult is what a walk accumulated. After a failed walk it holds
// everything received before the failure and can be passed to Resume.
type WalkResult[T any] struct {
	// Items are the documents of every page received, in service order.
	Items []T
	// NextSkip is the offset of the first document not yet received: the
	// initial skip plus the documentCount of every page received.
	NextSkip int
	// NextPage is the continuation token of the last page received.
	NextPage string
	// Pages is the number of pages received.
	Pages int
	// Done is set once a page without nextPage was received.
	Done bool
}

type walkConfig[T any] struct {
	followNextPage bool
	onPage         func(*results.Pagination[T]) error
}

// WalkOption configures Walk and Resume.
type WalkOption[T any] func(*walkConfig[T])

// FollowNextPage fetches pages after the first by dereferencing nextPage
// instead of re-issuing the query with an advanced skip. Both yield the same
// sequence.
func FollowNextPage[T any]() WalkOption[T] {
	return func(c *walkConfig[T]) {
		c.followNextPage = true
	}
}

// OnPage calls fn with every page as it arrives. An error from fn stops the
// walk and is returned.
func OnPage[T any](fn func(page *results.Pagination[T]) error) WalkOption[T] {
	return func(c *walkConfig[T]) {
		c.onPage = fn
	}
}

// Walk fetches every page of p and concatenates their documents.
//
// The offset advances by each page's documentCount, not by the requested
// take, since the last page may hold fewer. The walk ends at the first page
// without nextPage; an empty final page is not an error. A page with no
// documents that still points onward returns ErrStalledPage.
//
// Any fetch error aborts the walk. The partial result is returned with the
// error and can be handed to Resume.
func Walk[T any](ctx context.Context, p Pager[T], opts ...WalkOption[T]) (*WalkResult[T], error) {
	return walk(ctx, p, &WalkResult[T]{NextSkip: p.InitialSkip()}, opts)
}

// Resume continues an aborted walk from prev.NextSkip. prev is not
// modified. A completed walk is returned as is.
func Resume[T any](ctx context.Context, p Pager[T], prev *WalkResult[T], opts ...WalkOption[T]) (*WalkResult[T], error) {
	if prev == nil {
		return Walk(ctx, p, opts...)
	}
	res := *prev
	res.Items = append([]T(nil), prev.Items...)
	if res.Done {
		return &res, nil
	}
	return walk(ctx, p, &res, opts)
}

func walk[T any](ctx context.Context, p Pager[T], res *WalkResult[T], opts []WalkOption[T]) (*WalkResult[T], error) {
	cfg := &walkConfig[T]{}
	for _, opt := range opts {
		opt(cfg)
	}

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var (
			page *results.Pagination[T]
			err  error
		)
		if cfg.followNextPage && res.NextPage != "" {
			page, err = p.PageFrom(ctx, res.NextPage)
		} else {
			page, err = p.PageAt(ctx, res.NextSkip)
		}
		if err != nil {
			return res, fmt.Errorf("fetch page at skip %d: %w", res.NextSkip, err)
		}

		res.Pages++
		res.Items = append(res.Items, page.Documents...)
		res.NextSkip += page.DocumentCount
		res.NextPage = page.NextPage

		if cfg.onPage != nil {
			if err := cfg.onPage(page); err != nil {
				return res, err
			}
		}

		if !page.HasNext() {
			res.Done = true
			return res, nil
		}
		if page.DocumentCount == 0 {
			return res, fmt.Errorf("page %d at skip %d: %w", res.Pages, res.NextSkip, ErrStalledPage)
		}
	}
}

// FetchPage dereferences a continuation token. Absolute URLs are used as
// given, path-absolute ones resolve against the base URL's host and bare
// relative ones are appended to the base URL.
func FetchPage[T any](ctx context.Context, c *Client, nextPage string) (*results.Pagination[T], error) {
	target, err := c.resolve(nextPage)
	if err != nil {
		return nil, err
	}
	return getPage[T](ctx, c, "get page", target)
}

type validatable interface {
	Validate() error
}

// getPage fetches and checks one page. Documents that can validate
// themselves are checked against the result invariants.
func getPage[T any](ctx context.Context, c *Client, op, target string) (page *results.Pagination[T], err error) {
	c.resetLastError()

	ctx, span := c.startSpan(ctx, "engine.GetPage",
		attribute.String("engine.operation", op),
		attribute.String("page.url", target),
	)
	defer func() { finishSpan(span, err) }()

	resp, err := c.exchange(ctx, op, http.MethodGet, target, nil, nil)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, c.requestError(op, resp)
	}

	page = &results.Pagination[T]{}
	if err := c.codec.Decode(resp.Body, page); err != nil {
		return nil, &DecodeError{Op: op, Err: err}
	}

	switch {
	case page.DocumentCount == 0 && len(page.Documents) > 0:
		page.DocumentCount = len(page.Documents)
	case page.DocumentCount != len(page.Documents):
		return nil, &DecodeError{Op: op, Err: fmt.Errorf("documentCount %d but %d documents", page.DocumentCount, len(page.Documents))}
	}
	for i := range page.Documents {
		if v, ok := any(page.Documents[i]).(validatable); ok {
			if err := v.Validate(); err != nil {
				return nil, &DecodeError{Op: op, Err: err}
			}
		}
	}

	c.metrics.pageFetched()
	span.SetAttributes(
		attribute.Int("page.document_count", page.DocumentCount),
		attribute.Bool("page.has_next", page.HasNext()),
	)
	c.logger.DebugWithFields(op,
		logging.Field("skip", page.Skip),
		logging.Field("document_count", page.DocumentCount),
		logging.Field("has_next", page.HasNext()),
	)
	return page, nil
}
