package engine

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/moolen/engine-client/internal/job"
	"github.com/moolen/engine-client/internal/logging"
	"github.com/moolen/engine-client/internal/results"
	"go.opentelemetry.io/otel/attribute"
)

var errUploadFinished = errors.New("upload finished")

// UploadData streams data to the job without buffering it in memory.
//
// With persistAsPlainText false the stream is gzip-compressed on the fly;
// with true it is sent verbatim. The caller owns data and must close it.
//
// The request timeout does not apply: the upload runs until data is
// exhausted or ctx is done.
//
// The returned result has one entry per upload the service processed. A
// rejected portion shows up as an entry with a non-nil Error while the call
// itself succeeds, so callers must check every entry (or AnyErrors).
func (c *Client) UploadData(ctx context.Context, jobID string, data io.Reader, persistAsPlainText bool) (result *results.MultiDataPostResult, err error) {
	const op = "upload data"
	c.resetLastError()

	ctx, span := c.startSpan(ctx, "engine.UploadData",
		attribute.String("job.id", jobID),
		attribute.Bool("upload.plain_text", persistAsPlainText),
	)
	defer func() { finishSpan(span, err) }()

	if jobID == "" {
		return nil, job.NewConfigurationError("jobId", "is required")
	}
	if data == nil {
		return nil, job.NewConfigurationError("data", "is required")
	}
	if c.isClosed(jobID) {
		return nil, fmt.Errorf("upload to %s: %w", jobID, ErrJobNotOpen)
	}

	counted := &countingReader{r: data}
	header := http.Header{"Content-Type": []string{"application/octet-stream"}}

	var body io.Reader = counted
	if !persistAsPlainText {
		header.Set("Content-Encoding", "gzip")
		pr, done := compress(counted)
		defer func() {
			// Unblocks the compressor if the transport stopped reading early.
			_ = pr.CloseWithError(errUploadFinished)
			<-done
		}()
		body = pr
	}

	resp, err := c.stream(ctx, op, http.MethodPost, c.endpoint(nil, "data", jobID), header, body)
	sent := counted.n.Load()
	c.metrics.bytesUploaded(sent)
	span.SetAttributes(attribute.Int64("upload.bytes", sent))
	if err != nil {
		return nil, err
	}

	result = &results.MultiDataPostResult{}
	decodeErr := c.codec.Decode(resp.Body, result)

	if !resp.IsSuccess() {
		// A per-upload error document is a partial failure, not a failed call.
		if decodeErr == nil && len(result.Responses) > 0 {
			c.mirrorUploadErrors(result)
			return result, nil
		}
		return nil, c.requestError(op, resp)
	}
	if decodeErr != nil {
		return nil, &DecodeError{Op: op, Err: decodeErr}
	}

	c.mirrorUploadErrors(result)
	c.logger.InfoWithFields("Uploaded data",
		logging.Field("job_id", jobID),
		logging.Field("bytes", sent),
		logging.Field("responses", len(result.Responses)),
	)
	return result, nil
}

// mirrorUploadErrors puts the first rejected portion into LastError.
func (c *Client) mirrorUploadErrors(result *results.MultiDataPostResult) {
	if errs := result.Errors(); len(errs) > 0 {
		c.setLastError(errs[0])
		c.logger.Warn("%d of %d uploads rejected: %s", len(errs), len(result.Responses), errs[0].Error())
	}
}

// compress gzips src into a pipe. done is closed once the compressor has
// exited, which happens at end of input or when the read side is closed.
func compress(src io.Reader) (*io.PipeReader, <-chan struct{}) {
	pr, pw := io.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		gz := gzip.NewWriter(pw)
		_, err := io.Copy(gz, src)
		if closeErr := gz.Close(); err == nil {
			err = closeErr
		}
		_ = pw.CloseWithError(err)
	}()
	return pr, done
}

type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
