// Package job holds the configuration model submitted to the Engine API when
// a job is created: detectors, analysis settings and the description of the
// input data stream.
//
// A JobConfiguration is built by the caller, checked with Validate and sent
// once. The client submits a deep copy, so mutating a configuration after
// CreateJob has no effect on the job.
package job

// Detector is one analysis rule within a job.
type Detector struct {
	DetectorDescription string   `json:"detectorDescription,omitempty" yaml:"detectorDescription,omitempty"`
	Function            Function `json:"function" yaml:"function" validate:"required,detector_function"`
	FieldName           string   `json:"fieldName,omitempty" yaml:"fieldName,omitempty"`
	ByFieldName         string   `json:"byFieldName,omitempty" yaml:"byFieldName,omitempty"`
	OverFieldName       string   `json:"overFieldName,omitempty" yaml:"overFieldName,omitempty"`
	PartitionFieldName  string   `json:"partitionFieldName,omitempty" yaml:"partitionFieldName,omitempty"`
	ExcludeFrequent     string   `json:"excludeFrequent,omitempty" yaml:"excludeFrequent,omitempty" validate:"omitempty,oneof=all none by over true false"`
}

// IsPopulation reports whether the detector compares a population of
// entities, i.e. has an over-field. Records produced by population
// detectors carry nested causes.
func (d Detector) IsPopulation() bool {
	return d.OverFieldName != ""
}

// AnalysisConfig controls how incoming records are analysed.
// Detector order is significant: it determines the detectorIndex of results.
type AnalysisConfig struct {
	// BucketSpan is the bucket duration in seconds.
	BucketSpan              int64      `json:"bucketSpan" yaml:"bucketSpan" validate:"gt=0"`
	Detectors               []Detector `json:"detectors" yaml:"detectors" validate:"min=1,dive"`
	Latency                 int64      `json:"latency,omitempty" yaml:"latency,omitempty" validate:"gte=0"`
	SummaryCountFieldName   string     `json:"summaryCountFieldName,omitempty" yaml:"summaryCountFieldName,omitempty"`
	CategorizationFieldName string     `json:"categorizationFieldName,omitempty" yaml:"categorizationFieldName,omitempty"`
	Influencers             []string   `json:"influencers,omitempty" yaml:"influencers,omitempty" validate:"dive,required"`
}

// AnalysisLimits caps the resources the service may spend on a job.
type AnalysisLimits struct {
	// ModelMemoryLimit in MB; 0 means the service default.
	ModelMemoryLimit            int64 `json:"modelMemoryLimit,omitempty" yaml:"modelMemoryLimit,omitempty" validate:"gte=0"`
	CategorizationExamplesLimit int64 `json:"categorizationExamplesLimit,omitempty" yaml:"categorizationExamplesLimit,omitempty" validate:"gte=0"`
}

// DataFormat is the layout of the uploaded data stream.
type DataFormat string

const (
	FormatDelimited  DataFormat = "DELIMITED"
	FormatJSON       DataFormat = "JSON"
	FormatSingleLine DataFormat = "SINGLE_LINE"
)

// Literal time formats understood by the service. Anything else is treated
// as a date pattern such as "yyyy-MM-dd HH:mm:ssX".
const (
	TimeFormatEpoch   = "epoch"
	TimeFormatEpochMs = "epoch_ms"
)

// DataDescription describes how the service parses uploaded records.
type DataDescription struct {
	Format DataFormat `json:"format" yaml:"format" validate:"required,oneof=DELIMITED JSON SINGLE_LINE"`
	// FieldDelimiter is a single character, required for DELIMITED data.
	FieldDelimiter string `json:"fieldDelimiter,omitempty" yaml:"fieldDelimiter,omitempty" validate:"omitempty,len=1"`
	QuoteCharacter string `json:"quoteCharacter,omitempty" yaml:"quoteCharacter,omitempty" validate:"omitempty,len=1"`
	TimeField      string `json:"timeField" yaml:"timeField" validate:"required"`
	TimeFormat     string `json:"timeFormat,omitempty" yaml:"timeFormat,omitempty"`
}

// IsEpochTime reports whether TimeFormat is one of the literal epoch markers.
// An empty format means epoch seconds on the service side.
func (d DataDescription) IsEpochTime() bool {
	return d.TimeFormat == "" || d.TimeFormat == TimeFormatEpoch || d.TimeFormat == TimeFormatEpochMs
}

// JobConfiguration is the aggregate sent to create a job.
type JobConfiguration struct {
	// ID is optional; the service generates one when empty.
	ID              string          `json:"id,omitempty" yaml:"id,omitempty" validate:"omitempty,max=64,job_id"`
	Description     string          `json:"description,omitempty" yaml:"description,omitempty"`
	AnalysisConfig  AnalysisConfig  `json:"analysisConfig" yaml:"analysisConfig"`
	AnalysisLimits  *AnalysisLimits `json:"analysisLimits,omitempty" yaml:"analysisLimits,omitempty"`
	DataDescription DataDescription `json:"dataDescription" yaml:"dataDescription"`
}

// Clone returns a deep copy of c.
func (c *JobConfiguration) Clone() *JobConfiguration {
	if c == nil {
		return nil
	}
	out := *c
	if c.AnalysisConfig.Detectors != nil {
		out.AnalysisConfig.Detectors = append([]Detector(nil), c.AnalysisConfig.Detectors...)
	}
	if c.AnalysisConfig.Influencers != nil {
		out.AnalysisConfig.Influencers = append([]string(nil), c.AnalysisConfig.Influencers...)
	}
	if c.AnalysisLimits != nil {
		limits := *c.AnalysisLimits
		out.AnalysisLimits = &limits
	}
	return &out
}

// HasPopulationDetector reports whether any detector has an over-field.
func (c *JobConfiguration) HasPopulationDetector() bool {
	for _, d := range c.AnalysisConfig.Detectors {
		if d.IsPopulation() {
			return true
		}
	}
	return false
}
