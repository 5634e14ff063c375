package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/moolen/engine-client/internal/engine"
	"github.com/moolen/engine-client/internal/results"
	"github.com/moolen/engine-client/internal/timeparse"
	"github.com/spf13/cobra"
)

type bucketsOptions struct {
	take           int
	skip           int
	expand         bool
	includeInterim bool
	start          string
	end            string
	minScore       float64
	followNextPage bool
	sortByScore    bool
	json           bool
}

func newBucketsCmd(s *session) *cobra.Command {
	var o bucketsOptions

	cmd := &cobra.Command{
		Use:   "buckets <job-id>",
		Short: "List the result buckets of a job",
		Long: `Walks every page of a job's buckets and prints them in time order.
--start and --end accept epoch seconds, RFC3339, 'now-2h' or human-readable
dates such as 'yesterday'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := timeparse.ParseRange(o.start, o.end, time.Now())
			if err != nil {
				return err
			}

			q := s.client.Buckets(args[0]).
				Take(takeOrDefault(o.take, s)).
				Skip(o.skip).
				Expand(o.expand).
				IncludeInterim(o.includeInterim).
				Start(start).
				End(end).
				MinAnomalyScore(o.minScore)

			var opts []engine.WalkOption[results.Bucket]
			if o.followNextPage {
				opts = append(opts, engine.FollowNextPage[results.Bucket]())
			}
			walk, err := q.Walk(cmd.Context(), opts...)
			if err != nil {
				return err
			}
			s.logger.Debug("Fetched %d buckets in %d pages", len(walk.Items), walk.Pages)

			buckets := walk.Items
			if o.sortByScore {
				results.SortBucketsByAnomalyScore(buckets)
			}
			if o.json {
				return printJSON(cmd.OutOrStdout(), buckets)
			}
			return printBucketTable(cmd.OutOrStdout(), buckets)
		},
	}

	cmd.Flags().IntVar(&o.take, "take", 0, "Page size (default: page_size from the configuration)")
	cmd.Flags().IntVar(&o.skip, "skip", 0, "Number of buckets to skip")
	cmd.Flags().BoolVar(&o.expand, "expand", false, "Include anomaly records")
	cmd.Flags().BoolVar(&o.includeInterim, "include-interim", false, "Include interim buckets")
	cmd.Flags().StringVar(&o.start, "start", "", "Earliest bucket time (inclusive)")
	cmd.Flags().StringVar(&o.end, "end", "", "Latest bucket time (exclusive)")
	cmd.Flags().Float64Var(&o.minScore, "min-score", 0, "Minimum anomaly score (0-100)")
	cmd.Flags().BoolVar(&o.followNextPage, "follow-next-page", false, "Follow the service's nextPage links instead of advancing skip")
	cmd.Flags().BoolVar(&o.sortByScore, "sort-by-score", false, "Order by anomaly score, highest first")
	cmd.Flags().BoolVar(&o.json, "json", false, "Output as JSON")
	return cmd
}

func newBucketCmd(s *session) *cobra.Command {
	var expand, includeInterim bool

	cmd := &cobra.Command{
		Use:   "bucket <job-id> <epoch>",
		Short: "Show one bucket as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := s.client.Bucket(args[0], args[1]).
				Expand(expand).
				IncludeInterim(includeInterim).
				Get(cmd.Context())
			if err != nil {
				return err
			}
			b, ok := doc.Get()
			if !ok {
				s.reportAPIError()
				return fmt.Errorf("bucket %s of job %s not found", args[1], args[0])
			}
			return printJSON(cmd.OutOrStdout(), b)
		},
	}
	cmd.Flags().BoolVar(&expand, "expand", false, "Include anomaly records and their causes")
	cmd.Flags().BoolVar(&includeInterim, "include-interim", false, "Allow an interim bucket")
	return cmd
}

type recordsOptions struct {
	take       int
	skip       int
	sortField  string
	descending bool
	start      string
	end        string
	minScore   float64
	byProb     bool
	json       bool
}

func newRecordsCmd(s *session) *cobra.Command {
	var o recordsOptions

	cmd := &cobra.Command{
		Use:   "records <job-id>",
		Short: "List the anomaly records of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := timeparse.ParseRange(o.start, o.end, time.Now())
			if err != nil {
				return err
			}

			walk, err := s.client.Records(args[0]).
				Take(takeOrDefault(o.take, s)).
				Skip(o.skip).
				SortField(o.sortField).
				Descending(o.descending).
				Start(start).
				End(end).
				MinAnomalyScore(o.minScore).
				Walk(cmd.Context())
			if err != nil {
				return err
			}

			records := walk.Items
			if o.byProb {
				results.SortRecordsByProbability(records)
			}
			if o.json {
				return printJSON(cmd.OutOrStdout(), records)
			}
			return printRecordTable(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().IntVar(&o.take, "take", 0, "Page size (default: page_size from the configuration)")
	cmd.Flags().IntVar(&o.skip, "skip", 0, "Number of records to skip")
	cmd.Flags().StringVar(&o.sortField, "sort", "", "Sort field, e.g. normalizedProbability")
	cmd.Flags().BoolVar(&o.descending, "desc", false, "Sort descending")
	cmd.Flags().StringVar(&o.start, "start", "", "Earliest record time (inclusive)")
	cmd.Flags().StringVar(&o.end, "end", "", "Latest record time (exclusive)")
	cmd.Flags().Float64Var(&o.minScore, "min-score", 0, "Minimum anomaly score (0-100)")
	cmd.Flags().BoolVar(&o.byProb, "by-probability", false, "Order by probability after fetching, most unusual first")
	cmd.Flags().BoolVar(&o.json, "json", false, "Output as JSON")
	return cmd
}

func takeOrDefault(take int, s *session) int {
	if take > 0 {
		return take
	}
	return s.cfg.PageSize
}

// bucketScoresOnPage prints each bucket page as it arrives.
func bucketScoresOnPage(w io.Writer) engine.WalkOption[results.Bucket] {
	return engine.OnPage(func(page *results.Pagination[results.Bucket]) error {
		printBucketScores(w, page.Documents)
		return nil
	})
}
