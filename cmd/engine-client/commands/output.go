package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/moolen/engine-client/internal/results"
)

var prettyJSON = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	IndentionStep:          2,
}.Froze()

func printJSON(w io.Writer, v any) error {
	data, err := prettyJSON.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// printBucketScores writes the comma separated score listing of the
// farequote walkthrough.
func printBucketScores(w io.Writer, buckets []results.Bucket) {
	for _, b := range buckets {
		fmt.Fprintf(w, "%s,%f,%f\n", formatTime(b.Timestamp), b.AnomalyScore, b.MaxNormalizedProbability)
	}
}

func printBucketTable(w io.Writer, buckets []results.Bucket) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EPOCH\tTIME\tANOMALY SCORE\tUNUSUAL SCORE\tRECORDS\tEVENTS\tINTERIM")
	for _, b := range buckets {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%d\t%d\t%t\n",
			b.ID(), formatTime(b.Timestamp), b.AnomalyScore, b.MaxNormalizedProbability, b.RecordCount, b.EventCount, b.IsInterim)
	}
	return tw.Flush()
}

func printRecordTable(w io.Writer, records []results.AnomalyRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tFUNCTION\tFIELD\tBY\tOVER\tPARTITION\tPROBABILITY\tNORMALIZED\tTYPICAL\tACTUAL\tCAUSES")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%g\t%.2f\t%g\t%g\t%d\n",
			formatTime(r.Timestamp), r.Function, dash(r.FieldName),
			fieldValue(r.ByFieldName, r.ByFieldValue),
			fieldValue(r.OverFieldName, r.OverFieldValue),
			fieldValue(r.PartitionFieldName, r.PartitionFieldValue),
			r.Probability, r.NormalizedProbability, r.Typical, r.Actual, len(r.Causes))
	}
	return tw.Flush()
}

func printUploadTable(w io.Writer, result *results.MultiDataPostResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tRECORDS\tPROCESSED\tINVALID DATES\tMISSING FIELDS\tOUT OF ORDER\tERROR")
	for _, resp := range result.Responses {
		counts := resp.UploadSummary
		if counts == nil {
			counts = &results.DataCounts{}
		}
		errText := "-"
		if resp.Error != nil {
			errText = resp.Error.Error()
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			resp.JobID, counts.InputRecordCount, counts.ProcessedRecordCount,
			counts.InvalidDateCount, counts.MissingFieldCount, counts.OutOfOrderTimeStampCount, errText)
	}
	return tw.Flush()
}

func fieldValue(name, value string) string {
	if name == "" {
		return "-"
	}
	return name + "=" + value
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
