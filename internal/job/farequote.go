package job

// FarequoteConfiguration returns the configuration for the farequote demo
// data set: mean response time per airline in one-hour buckets, read from
// CSV lines such as
//
//	time,airline,responsetime,sourcetype
//	2014-06-23 00:00:00Z,AAL,132.2046,farequote
func FarequoteConfiguration() *JobConfiguration {
	return &JobConfiguration{
		Description: "farequote response times by airline",
		AnalysisConfig: AnalysisConfig{
			BucketSpan: 3600,
			Detectors: []Detector{
				{
					Function:    FunctionMetric,
					FieldName:   "responsetime",
					ByFieldName: "airline",
				},
			},
		},
		DataDescription: DataDescription{
			Format:         FormatDelimited,
			FieldDelimiter: ",",
			TimeField:      "time",
			TimeFormat:     "yyyy-MM-dd HH:mm:ssX",
		},
	}
}
