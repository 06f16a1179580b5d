package main

import (
	"github.com/spf13/cobra"

	"daylife/internal/planner"
)

var (
	genGoals       string
	genConstraints string
	genWake        string
	genBed         string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Ask the model for a day plan and print the normalized schedule",
	Long: `Send goals and constraints to the configured chat-completions endpoint and
print the normalized result. Requires GROQ_API_KEY or llm.api_key.

Example:
  daylife generate --goals "finish report, gym" --constraints "meeting 2-3pm"`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&genGoals, "goals", "", "What the day should accomplish")
	generateCmd.Flags().StringVar(&genConstraints, "constraints", "", "Fixed commitments and limits")
	generateCmd.Flags().StringVar(&genWake, "wake", "", "Preferred wake-up time (default from config)")
	generateCmd.Flags().StringVar(&genBed, "bed", "", "Preferred bedtime (default from config)")
	_ = generateCmd.MarkFlagRequired("goals")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	svc, err := newPlanner(nil)
	if err != nil {
		return err
	}
	res, err := svc.Generate(cmd.Context(), planner.GenerateRequest{
		Goals:       genGoals,
		Constraints: genConstraints,
		Wake:        genWake,
		Bed:         genBed,
	})
	if err != nil {
		return err
	}
	return printSchedule(cmd, svc.Today(), res)
}
