package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"daylife/internal/planner"
)

var (
	importFile   string
	importURL    string
	importSource string
	importDate   string
	importWake   string
	importBed    string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Turn one day of an iCalendar feed into a schedule",
	Long: `Expand the events of an .ics file or URL on the given day and print them
as a normalized schedule. Without --file, --source or --url the
subscriptions from the config file are used.

--url accepts a configured subscription URL. Other URLs are refused unless
allow_remote_import is set in the config file.

Examples:
  daylife import --file work.ics --date 2024-06-05
  daylife import --source team --wake "7:30 AM"`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", `Calendar file ("-" for stdin)`)
	importCmd.Flags().StringVar(&importURL, "url", "", "Calendar URL (http, https or webcal)")
	importCmd.Flags().StringVar(&importSource, "source", "", "ID of a configured subscription")
	importCmd.Flags().StringVar(&importDate, "date", "", "Day to import YYYY-MM-DD (default today)")
	importCmd.Flags().StringVar(&importWake, "wake", "", "Wake-up time to clip to (default whole day)")
	importCmd.Flags().StringVar(&importBed, "bed", "", "Bedtime to clip to (default whole day)")
	importCmd.MarkFlagsMutuallyExclusive("file", "url", "source")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, _ []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	date, err := parseDate(importDate)
	if err != nil {
		return err
	}

	req := planner.ImportRequest{URL: importURL, SourceID: importSource, Date: date, Wake: importWake, Bed: importBed}
	if importFile != "" {
		if req.ICS, err = readInput(cmd, importFile); err != nil {
			return fmt.Errorf("read calendar: %w", err)
		}
	}

	svc, err := newPlanner(nil)
	if err != nil {
		return err
	}
	res, err := svc.Import(cmd.Context(), req)
	if err != nil {
		return err
	}
	if res.SkippedAllDay > 0 || len(res.TruncatedEvents) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipped %d all-day event(s), truncated %v\n", res.SkippedAllDay, res.TruncatedEvents)
	}
	if date.IsZero() {
		date = svc.Today()
	}
	return printSchedule(cmd, date, res.Result)
}
