package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/samtaplin/llmneldacoding/internal/infra/scheduler"
)

var (
	submitCSV    string
	submitDryRun bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Create pre and post election jobs from a CSV",
	Long: `Reads a CSV with the header electionId,countryName,types,year,mmdd and
creates two jobs per election: one a few days before and one a few days after.

Examples:
  # Print the jobs without calling the scheduling API
  nelda-scheduler submit --csv events.csv --dry-run

  # Create the jobs (needs CRONJOB_API_KEY)
  nelda-scheduler submit --csv events.csv`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		events, err := scheduler.ReadEventsFile(submitCSV)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No events found in CSV file.")
			return nil
		}

		s := cfg.Scheduler
		plan := scheduler.PlanJobs(events, scheduler.PlanOptions{
			ServerURL:  s.ServerURL,
			Hour:       s.Hour,
			OffsetDays: s.OffsetDays,
		})
		for _, e := range plan.Skipped {
			zap.L().Warn("skipping event with invalid date",
				zap.String("election_id", e.ElectionID), zap.String("year", e.Year), zap.String("mmdd", e.MMDD))
		}

		if submitDryRun {
			return printJobs(cmd.OutOrStdout(), plan)
		}

		if err := cfg.ValidateScheduler(); err != nil {
			return err
		}
		sub := &scheduler.Submitter{
			APIURL:     s.APIURL,
			APIKey:     s.APIKey,
			BatchSize:  s.BatchSize,
			JobDelay:   s.JobDelay,
			BatchDelay: s.BatchDelay,
			Logger:     zap.L(),
		}
		rep, err := sub.Submit(ctx, plan.Jobs)
		fmt.Fprintf(cmd.OutOrStdout(), "Completed: %d/%d jobs created successfully.\n", rep.Created, plan.Total)
		if err != nil {
			return eris.Wrap(err, "submit: interrupted")
		}
		return nil
	},
}

func printJobs(w io.Writer, plan scheduler.Plan) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(plan.Jobs); err != nil {
		return eris.Wrap(err, "submit: print jobs")
	}
	fmt.Fprintf(w, "Dry run: %d/%d jobs planned, %d events skipped.\n", len(plan.Jobs), plan.Total, len(plan.Skipped))
	return nil
}

func init() {
	submitCmd.Flags().StringVar(&submitCSV, "csv", "", "path to the events CSV")
	submitCmd.Flags().BoolVar(&submitDryRun, "dry-run", false, "print jobs instead of creating them")
	_ = submitCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(submitCmd)
}
