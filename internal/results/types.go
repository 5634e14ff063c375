// Package results contains the documents returned by the Engine API:
// buckets, anomaly records and their causes, plus the paging and
// single-document envelopes they arrive in.
//
// Result values are created by decoding service responses and are treated
// as read-only afterwards.
package results

import (
	"fmt"
	"strconv"
	"time"
)

// AnomalyCause is one contributing member of a population anomaly.
type AnomalyCause struct {
	Probability         float64 `json:"probability"`
	Function            string  `json:"function,omitempty"`
	FieldName           string  `json:"fieldName,omitempty"`
	ByFieldName         string  `json:"byFieldName,omitempty"`
	ByFieldValue        string  `json:"byFieldValue,omitempty"`
	OverFieldName       string  `json:"overFieldName,omitempty"`
	OverFieldValue      string  `json:"overFieldValue,omitempty"`
	PartitionFieldName  string  `json:"partitionFieldName,omitempty"`
	PartitionFieldValue string  `json:"partitionFieldValue,omitempty"`
	Typical             float64 `json:"typical"`
	Actual              float64 `json:"actual"`
}

// Equal reports whether every field of c and other is identical.
func (c AnomalyCause) Equal(other AnomalyCause) bool {
	return c == other
}

// AnomalyRecord is one anomaly inside a bucket.
type AnomalyRecord struct {
	DetectorIndex         int       `json:"detectorIndex"`
	Timestamp             time.Time `json:"timestamp,omitempty"`
	Probability           float64   `json:"probability"`
	AnomalyScore          float64   `json:"anomalyScore"`
	NormalizedProbability float64   `json:"normalizedProbability"`
	Function              string    `json:"function,omitempty"`
	FieldName             string    `json:"fieldName,omitempty"`
	ByFieldName           string    `json:"byFieldName,omitempty"`
	ByFieldValue          string    `json:"byFieldValue,omitempty"`
	OverFieldName         string    `json:"overFieldName,omitempty"`
	OverFieldValue        string    `json:"overFieldValue,omitempty"`
	PartitionFieldName    string    `json:"partitionFieldName,omitempty"`
	PartitionFieldValue   string    `json:"partitionFieldValue,omitempty"`
	Typical               float64   `json:"typical"`
	Actual                float64   `json:"actual"`
	IsInterim             bool      `json:"isInterim,omitempty"`
	// Causes is only populated for population detectors, and only when the
	// query asked for expanded results.
	Causes []AnomalyCause `json:"causes,omitempty"`
}

// IsPopulation reports whether the record came from a detector with an
// over-field.
func (r AnomalyRecord) IsPopulation() bool {
	return r.OverFieldName != ""
}

// Validate checks that causes only appear on population records.
func (r AnomalyRecord) Validate() error {
	if len(r.Causes) > 0 && !r.IsPopulation() {
		return fmt.Errorf("record for detector %d has %d causes but no overFieldName", r.DetectorIndex, len(r.Causes))
	}
	return nil
}

// Bucket is the result for one bucketSpan-long time window.
type Bucket struct {
	// Timestamp is the start of the bucket.
	Timestamp                time.Time `json:"timestamp"`
	Epoch                    int64     `json:"epoch,omitempty"`
	AnomalyScore             float64   `json:"anomalyScore"`
	MaxNormalizedProbability float64   `json:"maxNormalizedProbability"`
	RecordCount              int       `json:"recordCount"`
	EventCount               int64     `json:"eventCount,omitempty"`
	IsInterim                bool      `json:"isInterim,omitempty"`
	// Records is only populated when the bucket was requested expanded.
	Records []AnomalyRecord `json:"records,omitempty"`
}

// ID returns the key used to look the bucket up individually: the epoch
// seconds of its start time.
func (b Bucket) ID() string {
	epoch := b.Epoch
	if epoch == 0 && !b.Timestamp.IsZero() {
		epoch = b.Timestamp.Unix()
	}
	return strconv.FormatInt(epoch, 10)
}

// Validate checks every record of the bucket.
func (b Bucket) Validate() error {
	for i, r := range b.Records {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("bucket %s record %d: %w", b.ID(), i, err)
		}
	}
	return nil
}
