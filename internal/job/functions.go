package job

// Function names an analysis function of a detector.
type Function string

// Functions operating on the value of a field. A detector using one of
// these must set FieldName.
const (
	FunctionMetric          Function = "metric"
	FunctionMean            Function = "mean"
	FunctionAvg             Function = "avg"
	FunctionHighMean        Function = "high_mean"
	FunctionLowMean         Function = "low_mean"
	FunctionMedian          Function = "median"
	FunctionMin             Function = "min"
	FunctionMax             Function = "max"
	FunctionSum             Function = "sum"
	FunctionHighSum         Function = "high_sum"
	FunctionLowSum          Function = "low_sum"
	FunctionNonNullSum      Function = "non_null_sum"
	FunctionHighNonNullSum  Function = "high_non_null_sum"
	FunctionLowNonNullSum   Function = "low_non_null_sum"
	FunctionDistinctCount   Function = "distinct_count"
	FunctionHighDistinct    Function = "high_distinct_count"
	FunctionLowDistinct     Function = "low_distinct_count"
	FunctionInfoContent     Function = "info_content"
	FunctionHighInfoContent Function = "high_info_content"
	FunctionLowInfoContent  Function = "low_info_content"
	FunctionVarp            Function = "varp"
	FunctionHighVarp        Function = "high_varp"
	FunctionLowVarp         Function = "low_varp"
)

// Functions counting events. These must not set FieldName.
const (
	FunctionCount            Function = "count"
	FunctionHighCount        Function = "high_count"
	FunctionLowCount         Function = "low_count"
	FunctionNonZeroCount     Function = "non_zero_count"
	FunctionNZC              Function = "nzc"
	FunctionHighNonZeroCount Function = "high_non_zero_count"
	FunctionLowNonZeroCount  Function = "low_non_zero_count"
	FunctionRare             Function = "rare"
	FunctionFreqRare         Function = "freq_rare"
)

var fieldFunctions = map[Function]struct{}{
	FunctionMetric: {}, FunctionMean: {}, FunctionAvg: {}, FunctionHighMean: {},
	FunctionLowMean: {}, FunctionMedian: {}, FunctionMin: {}, FunctionMax: {},
	FunctionSum: {}, FunctionHighSum: {}, FunctionLowSum: {}, FunctionNonNullSum: {},
	FunctionHighNonNullSum: {}, FunctionLowNonNullSum: {}, FunctionDistinctCount: {},
	FunctionHighDistinct: {}, FunctionLowDistinct: {}, FunctionInfoContent: {},
	FunctionHighInfoContent: {}, FunctionLowInfoContent: {}, FunctionVarp: {},
	FunctionHighVarp: {}, FunctionLowVarp: {},
}

var countFunctions = map[Function]struct{}{
	FunctionCount: {}, FunctionHighCount: {}, FunctionLowCount: {},
	FunctionNonZeroCount: {}, FunctionNZC: {}, FunctionHighNonZeroCount: {},
	FunctionLowNonZeroCount: {}, FunctionRare: {}, FunctionFreqRare: {},
}

// IsKnown reports whether f is a function the service accepts.
func (f Function) IsKnown() bool {
	_, field := fieldFunctions[f]
	_, count := countFunctions[f]
	return field || count
}

// RequiresFieldName reports whether f belongs to the metric family.
func (f Function) RequiresFieldName() bool {
	_, ok := fieldFunctions[f]
	return ok
}

// IsRare reports whether f is one of the rare functions, which need a
// by-field to know what to count.
func (f Function) IsRare() bool {
	return f == FunctionRare || f == FunctionFreqRare
}
