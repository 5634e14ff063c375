package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/moolen/engine-client/internal/job"
	"github.com/moolen/engine-client/internal/results"
	"go.opentelemetry.io/otel/attribute"
)

// CreateJob validates cfg, submits a copy of it and returns the new job's
// identifier. Invalid configurations fail with a *job.ConfigurationError
// before anything is sent.
func (c *Client) CreateJob(ctx context.Context, cfg *job.JobConfiguration) (id string, err error) {
	const op = "create job"
	c.resetLastError()

	ctx, span := c.startSpan(ctx, "engine.CreateJob")
	defer func() { finishSpan(span, err) }()

	if err := cfg.Validate(); err != nil {
		return "", err
	}
	span.SetAttributes(attribute.Bool("job.population", cfg.HasPopulationDetector()))

	body, err := c.codec.Encode(cfg.Clone())
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	header := http.Header{"Content-Type": []string{c.codec.ContentType()}}
	resp, err := c.exchange(ctx, op, http.MethodPost, c.endpoint(nil, "jobs"), header, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	if !resp.IsSuccess() {
		return "", c.requestError(op, resp)
	}

	var created results.CreateJobResponse
	if err := c.codec.Decode(resp.Body, &created); err != nil {
		return "", &DecodeError{Op: op, Err: err}
	}
	if created.ID == "" {
		return "", &DecodeError{Op: op, Err: errors.New("service returned an empty job id")}
	}

	span.SetAttributes(attribute.String("job.id", created.ID))
	c.forget(created.ID)
	c.logger.Info("Created job %s", created.ID)
	return created.ID, nil
}

// GetJob looks a job up. An unknown job is reported as Exists=false, not as
// an error; the service's explanation, if any, is mirrored into LastError.
func (c *Client) GetJob(ctx context.Context, jobID string) (doc *results.SingleDocument[results.JobDetails], err error) {
	const op = "get job"
	c.resetLastError()

	ctx, span := c.startSpan(ctx, "engine.GetJob", attribute.String("job.id", jobID))
	defer func() { finishSpan(span, err) }()

	if jobID == "" {
		return nil, job.NewConfigurationError("jobId", "is required")
	}

	resp, err := c.exchange(ctx, op, http.MethodGet, c.endpoint(nil, "jobs", jobID), nil, nil)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.mirrorNotFound(resp.Body)
		return results.NotFound[results.JobDetails](), nil
	case !resp.IsSuccess():
		return nil, c.requestError(op, resp)
	}

	doc = &results.SingleDocument[results.JobDetails]{}
	if err := c.codec.Decode(resp.Body, doc); err != nil {
		return nil, &DecodeError{Op: op, Err: err}
	}
	if err := doc.Validate(); err != nil {
		return nil, &DecodeError{Op: op, Err: err}
	}
	if details, ok := doc.Get(); ok {
		if details.IsOpen() {
			c.forget(jobID)
		} else {
			c.markClosed(jobID)
		}
	}
	return doc, nil
}

// CloseJob ends the job's data stream. The service flushes buffered analysis
// and the job's results become complete.
func (c *Client) CloseJob(ctx context.Context, jobID string) (err error) {
	const op = "close job"
	c.resetLastError()

	ctx, span := c.startSpan(ctx, "engine.CloseJob", attribute.String("job.id", jobID))
	defer func() { finishSpan(span, err) }()

	if jobID == "" {
		return job.NewConfigurationError("jobId", "is required")
	}

	resp, err := c.exchange(ctx, op, http.MethodPost, c.endpoint(nil, "data", jobID, "close"), nil, nil)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return c.requestError(op, resp)
	}

	span.SetAttributes(attribute.Bool("job.acknowledged", c.acknowledged(op, resp.Body)))
	c.markClosed(jobID)
	c.cache.invalidateJob(jobID)
	c.logger.Info("Closed job %s", jobID)
	return nil
}

// DeleteJob removes a job and its results from the service.
func (c *Client) DeleteJob(ctx context.Context, jobID string) (err error) {
	const op = "delete job"
	c.resetLastError()

	ctx, span := c.startSpan(ctx, "engine.DeleteJob", attribute.String("job.id", jobID))
	defer func() { finishSpan(span, err) }()

	if jobID == "" {
		return job.NewConfigurationError("jobId", "is required")
	}

	resp, err := c.exchange(ctx, op, http.MethodDelete, c.endpoint(nil, "jobs", jobID), nil, nil)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return c.requestError(op, resp)
	}

	span.SetAttributes(attribute.Bool("job.acknowledged", c.acknowledged(op, resp.Body)))
	c.forget(jobID)
	c.cache.invalidateJob(jobID)
	c.logger.Info("Deleted job %s", jobID)
	return nil
}

// acknowledged reads the acknowledgement of a close or delete. The status
// code decides success; a body that is not an acknowledgement, or none at
// all, counts as acknowledged.
func (c *Client) acknowledged(op string, body []byte) bool {
	var ack results.Acknowledgement
	if err := c.codec.Decode(body, &ack); err != nil {
		return true
	}
	if !ack.Acknowledged {
		c.logger.Warn("%s: service did not acknowledge the request", op)
	}
	return ack.Acknowledged
}

// mirrorNotFound records the APIError carried by a 404 body, if the body is
// one. A SingleDocument body with exists=false carries no error.
func (c *Client) mirrorNotFound(body []byte) {
	apiErr := &results.APIError{}
	if err := c.codec.Decode(body, apiErr); err == nil && apiErr.Message != "" {
		c.setLastError(apiErr)
	}
}
