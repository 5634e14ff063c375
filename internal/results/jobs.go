package results

import (
	"time"

	"github.com/moolen/engine-client/internal/job"
)

// JobStatus is the service-side state of a job.
type JobStatus string

const (
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusClosing JobStatus = "CLOSING"
	JobStatusClosed  JobStatus = "CLOSED"
	JobStatusFailed  JobStatus = "FAILED"
	JobStatusPaused  JobStatus = "PAUSED"
	JobStatusPausing JobStatus = "PAUSING"
)

// DataCounts summarises what the service did with uploaded data.
type DataCounts struct {
	BucketCount              int64     `json:"bucketCount"`
	ProcessedRecordCount     int64     `json:"processedRecordCount"`
	ProcessedFieldCount      int64     `json:"processedFieldCount"`
	InputBytes               int64     `json:"inputBytes"`
	InputRecordCount         int64     `json:"inputRecordCount"`
	InputFieldCount          int64     `json:"inputFieldCount"`
	InvalidDateCount         int64     `json:"invalidDateCount"`
	MissingFieldCount        int64     `json:"missingFieldCount"`
	OutOfOrderTimeStampCount int64     `json:"outOfOrderTimeStampCount"`
	FailedTransformCount     int64     `json:"failedTransformCount,omitempty"`
	LatestRecordTimeStamp    time.Time `json:"latestRecordTimeStamp,omitempty"`
}

// JobDetails is the service's view of a job.
type JobDetails struct {
	ID              string               `json:"id"`
	Description     string               `json:"description,omitempty"`
	Status          JobStatus            `json:"status"`
	CreateTime      time.Time            `json:"createTime,omitempty"`
	FinishedTime    *time.Time           `json:"finishedTime,omitempty"`
	LastDataTime    *time.Time           `json:"lastDataTime,omitempty"`
	Timeout         int64                `json:"timeout,omitempty"`
	AnalysisConfig  *job.AnalysisConfig  `json:"analysisConfig,omitempty"`
	AnalysisLimits  *job.AnalysisLimits  `json:"analysisLimits,omitempty"`
	DataDescription *job.DataDescription `json:"dataDescription,omitempty"`
	Counts          *DataCounts          `json:"counts,omitempty"`
	Location        string               `json:"location,omitempty"`
	DataEndpoint    string               `json:"dataEndpoint,omitempty"`
	BucketsEndpoint string               `json:"bucketsEndpoint,omitempty"`
	RecordsEndpoint string               `json:"recordsEndpoint,omitempty"`
}

// IsOpen reports whether the job still accepts data.
func (j JobDetails) IsOpen() bool {
	switch j.Status {
	case JobStatusClosed, JobStatusClosing, JobStatusFailed:
		return false
	default:
		return true
	}
}

// DataPostResponse is the outcome of one upload request for one job.
type DataPostResponse struct {
	JobID         string      `json:"jobId"`
	UploadSummary *DataCounts `json:"uploadSummary,omitempty"`
	Error         *APIError   `json:"error,omitempty"`
}

// MultiDataPostResult collects the per-upload outcomes of a data post.
// The post itself can succeed while individual responses carry errors.
type MultiDataPostResult struct {
	Responses []DataPostResponse `json:"responses"`
}

// Errors returns every non-nil response error in response order.
func (m *MultiDataPostResult) Errors() []*APIError {
	if m == nil {
		return nil
	}
	var errs []*APIError
	for _, r := range m.Responses {
		if r.Error != nil {
			errs = append(errs, r.Error)
		}
	}
	return errs
}

// AnyErrors reports whether any portion of the upload was rejected.
func (m *MultiDataPostResult) AnyErrors() bool {
	return len(m.Errors()) > 0
}

// CreateJobResponse is the body returned by job creation.
type CreateJobResponse struct {
	ID string `json:"id"`
}

// Acknowledgement is returned by close and delete.
type Acknowledgement struct {
	Acknowledged bool `json:"acknowledged"`
}
