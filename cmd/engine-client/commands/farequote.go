package commands

import (
	"fmt"
	"os"

	"github.com/moolen/engine-client/internal/job"
	"github.com/moolen/engine-client/internal/results"
	"github.com/spf13/cobra"
)

func newFarequoteCmd(s *session) *cobra.Command {
	var keep bool

	cmd := &cobra.Command{
		Use:   "farequote <farequote.csv>",
		Short: "Analyze the farequote sample data end to end",
		Long: `Creates a job analyzing responsetime by airline, uploads the farequote CSV,
closes the job, prints the score of every bucket and shows the most
anomalous bucket with its records.

The sample data is available from http://s3.amazonaws.com/prelert_demo/farequote.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFarequote(cmd, s, args[0], keep)
		},
	}
	cmd.Flags().BoolVar(&keep, "keep", true, "Keep the job after the run; --keep=false deletes it")
	return cmd
}

func runFarequote(cmd *cobra.Command, s *session, path string, keep bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	data, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open data file: %w", err)
	}
	defer data.Close()

	jobID, err := s.client.CreateJob(ctx, job.FarequoteConfiguration())
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	s.logger.Info("Created job %s", jobID)
	if !keep {
		defer func() {
			if err := s.client.DeleteJob(ctx, jobID); err != nil {
				s.logger.Warn("Failed to delete job %s: %v", jobID, err)
			}
		}()
	}

	doc, err := s.client.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !doc.Exists {
		s.reportAPIError()
		return fmt.Errorf("job %s does not exist after creation", jobID)
	}

	upload, err := s.client.UploadData(ctx, jobID, data, false)
	if err != nil {
		return fmt.Errorf("failed to upload %s to job %s: %w", path, jobID, err)
	}
	if upload.AnyErrors() {
		for _, e := range upload.Errors() {
			s.logger.Warn("%s", e.JSON())
		}
		return fmt.Errorf("failed to upload %s to job %s", path, jobID)
	}

	if err := s.client.CloseJob(ctx, jobID); err != nil {
		return fmt.Errorf("failed to close job %s: %w", jobID, err)
	}

	fmt.Fprintln(out, "Time, Anomaly Score, Unusual Score")
	walk, err := s.client.Buckets(jobID).Take(s.cfg.PageSize).Walk(ctx, bucketScoresOnPage(out))
	if err != nil {
		return fmt.Errorf("error reading analysis results: %w", err)
	}
	if len(walk.Items) == 0 {
		s.logger.Warn("Job %s produced no buckets", jobID)
		return nil
	}

	buckets := append([]results.Bucket(nil), walk.Items...)
	results.SortBucketsByAnomalyScore(buckets)

	top, err := s.client.Bucket(jobID, buckets[0].ID()).Expand(true).Get(ctx)
	if err != nil {
		return err
	}
	b, ok := top.Get()
	if !ok {
		s.reportAPIError()
		return fmt.Errorf("bucket %s of job %s disappeared", buckets[0].ID(), jobID)
	}

	fmt.Fprintf(out, "The bucket at time %s has the largest anomaly score with a value of %f\n",
		b.Timestamp.UTC().Format("2006-01-02 15:04:05Z0700"), b.AnomalyScore)
	return printJSON(out, b)
}
