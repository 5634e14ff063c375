package commands

import (
	"fmt"
	"os"

	"github.com/moolen/engine-client/internal/job"
	"github.com/spf13/cobra"
)

func newJobCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage analysis jobs",
	}
	cmd.AddCommand(
		newJobTemplateCmd(),
		newJobCreateCmd(s),
		newJobGetCmd(s),
		newJobUploadCmd(s),
		newJobCloseCmd(s),
		newJobDeleteCmd(s),
	)
	return cmd
}

func newJobTemplateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "template <file>",
		Short: "Write the farequote job configuration as a YAML template",
		Args:  cobra.ExactArgs(1),
		// Needs no client.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := job.WriteConfiguration(args[0], job.FarequoteConfiguration()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote job template to %s\n", args[0])
			return nil
		},
	}
}

func newJobCreateCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "create <file>",
		Short: "Create a job from a YAML job configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := job.LoadConfiguration(args[0])
			if err != nil {
				return err
			}
			id, err := s.client.CreateJob(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to create job: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func newJobGetCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show a job's details as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := s.client.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			details, ok := doc.Get()
			if !ok {
				s.reportAPIError()
				return fmt.Errorf("job %s not found", args[0])
			}
			return printJSON(cmd.OutOrStdout(), details)
		},
	}
}

func newJobUploadCmd(s *session) *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "upload <job-id> <data-file>",
		Short: "Stream a data file to a job",
		Long: `Streams the file to the job's data endpoint. The data is gzip compressed
on the wire unless --plain is given.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("cannot open data file: %w", err)
			}
			defer f.Close()

			result, err := s.client.UploadData(cmd.Context(), args[0], f, plain)
			if err != nil {
				return err
			}
			if err := printUploadTable(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if result.AnyErrors() {
				return fmt.Errorf("upload to job %s reported %d error(s)", args[0], len(result.Errors()))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "Send the data uncompressed")
	return cmd
}

func newJobCloseCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "close <job-id>",
		Short: "Finish analysis of a job's data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.client.CloseJob(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Closed job %s\n", args[0])
			return nil
		},
	}
}

func newJobDeleteCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a job and its results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.client.DeleteJob(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted job %s\n", args[0])
			return nil
		},
	}
}
