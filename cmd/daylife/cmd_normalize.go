package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"daylife/internal/llm"
	appLog "daylife/internal/log"
	"daylife/internal/model"
	"daylife/internal/planner"
	"daylife/internal/schedule"
)

var (
	normInput string
	normWake  string
	normBed   string
	normDate  string
	exportOut string
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Normalize a proposed schedule and print it as JSON",
	Long: `Read a proposal, either lines of "start-end | activity | category" or a
JSON array of records, and print the normalized schedule with its warnings.

Examples:
  daylife normalize --in plan.txt --wake "7:00 AM" --bed "10:30 PM"
  cat plan.json | daylife normalize`,
	RunE: runNormalize,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Normalize a proposed schedule and write it as an .ics file",
	Long: `Read a proposal like "normalize" does and write an iCalendar file.

Without --wake/--bed the whole day is allowed.

Examples:
  daylife export --in plan.txt --date 2024-06-01 --out daily_schedule.ics`,
	RunE: runExport,
}

func init() {
	windowDefaults := map[*cobra.Command]string{
		normalizeCmd: "default from config",
		exportCmd:    "default: whole day",
	}
	for _, c := range []*cobra.Command{normalizeCmd, exportCmd} {
		def := windowDefaults[c]
		c.Flags().StringVar(&normInput, "in", "-", `Proposal file ("-" for stdin)`)
		c.Flags().StringVar(&normWake, "wake", "", "Preferred wake-up time ("+def+")")
		c.Flags().StringVar(&normBed, "bed", "", "Preferred bedtime ("+def+")")
		c.Flags().StringVar(&normDate, "date", "", "Reference date YYYY-MM-DD (default today)")
		rootCmd.AddCommand(c)
	}
	exportCmd.Flags().StringVar(&exportOut, "out", "daily_schedule.ics", `Output file ("-" for stdout)`)
}

func runNormalize(cmd *cobra.Command, _ []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	raw, err := readProposal(cmd)
	if err != nil {
		return err
	}

	wake, bed := normWake, normBed
	if wake == "" {
		wake = cfg.Schedule.DefaultWake
	}
	if bed == "" {
		bed = cfg.Schedule.DefaultBed
	}
	prefs, err := schedule.ParsePreferences(wake, bed)
	if err != nil {
		return err
	}
	date, err := parseDate(normDate)
	if err != nil {
		return err
	}

	res, err := schedule.Normalize(raw, prefs, schedule.WithExemptCategories(cfg.Schedule.ExemptCategories...))
	if err != nil {
		return err
	}
	return printSchedule(cmd, date, planner.Result{Schedule: res.Schedule, Warnings: res.Warnings})
}

func runExport(cmd *cobra.Command, _ []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	raw, err := readProposal(cmd)
	if err != nil {
		return err
	}
	date, err := parseDate(normDate)
	if err != nil {
		return err
	}
	svc, err := newPlanner(nil)
	if err != nil {
		return err
	}

	res, err := svc.Export(planner.ExportRequest{Records: raw, Date: date, Wake: normWake, Bed: normBed})
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		appLog.Warn("block changed", "index", w.Index, "kind", string(w.Kind), "reason", w.Reason)
	}

	if exportOut == "-" {
		_, err = cmd.OutOrStdout().Write(res.Payload.Body)
		return err
	}
	if err := os.WriteFile(exportOut, res.Payload.Body, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d bytes)\n", exportOut, len(res.Payload.Body))
	return nil
}

// readProposal reads --in and parses it as line or JSON proposal text.
func readProposal(cmd *cobra.Command) ([]model.RawBlock, error) {
	data, err := readInput(cmd, normInput)
	if err != nil {
		return nil, fmt.Errorf("read proposal: %w", err)
	}
	return llm.ParseProposal(string(data))
}
