package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"daylife/internal/config"
	"daylife/internal/ics"
	"daylife/internal/llm"
	appLog "daylife/internal/log"
	"daylife/internal/metrics"
	"daylife/internal/model"
	"daylife/internal/planner"
)

const version = "0.1.0"

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "daylife",
	Short:         "DayLife - daily schedule planner",
	Long:          "DayLife turns a model-generated day plan into a clean, non-overlapping schedule and exports it as an iCalendar file.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "daylife.yaml", "Path to config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var me *model.Error
		if errors.As(err, &me) {
			for _, w := range me.Warnings {
				fmt.Fprintf(os.Stderr, "  block %d: %s (%s=%q): %s\n", w.Index, w.Kind, w.Field, w.Value, w.Reason)
			}
		}
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it).
func loadConfig() error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	appLog.Setup(cfg.Environment)
	return nil
}

// newPlanner builds the service shared by all commands. A missing API key
// is not fatal; only generation needs it.
func newPlanner(m *metrics.Metrics) (*planner.Service, error) {
	var client llm.Client
	c, err := llm.NewOpenAIClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLMTimeout(),
	})
	switch {
	case err == nil:
		client = c
	case errors.Is(err, llm.ErrMissingAPIKey):
		appLog.Warn("no model API key configured; schedule generation disabled", "env", config.APIKeyEnv)
	default:
		return nil, err
	}

	timezoneLabel := ""
	if cfg.Timezone != "Local" {
		timezoneLabel = cfg.Timezone
	}
	return planner.New(planner.Options{
		Client:            client,
		Fetcher:           ics.NewFetcher(cfg.CacheDir, nil),
		Metrics:           m,
		Location:          cfg.Location(),
		DefaultWake:       cfg.Schedule.DefaultWake,
		DefaultBed:        cfg.Schedule.DefaultBed,
		ExemptCategories:  cfg.Schedule.ExemptCategories,
		ProductID:         cfg.Schedule.ProductID,
		TimezoneLabel:     timezoneLabel,
		Subscriptions:     cfg.Sources(),
		AllowRemoteImport: cfg.AllowRemoteImport,
		CacheSize:         cfg.Cache.Size,
		CacheTTL:          cfg.CacheTTL(),
	})
}

// readInput reads a file, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// parseDate reads --date in the configured zone; empty means today.
func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, cfg.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
	}
	return t, nil
}

type scheduleOutput struct {
	Date     string          `json:"date,omitempty"`
	Schedule []model.Record  `json:"schedule"`
	Warnings []model.Warning `json:"warnings"`
}

func printSchedule(cmd *cobra.Command, date time.Time, res planner.Result) error {
	out := scheduleOutput{
		Schedule: res.Schedule.Records(),
		Warnings: res.Warnings,
	}
	if out.Warnings == nil {
		out.Warnings = []model.Warning{}
	}
	if !date.IsZero() {
		out.Date = date.Format("2006-01-02")
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
