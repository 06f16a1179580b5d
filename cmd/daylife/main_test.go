package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daylife/internal/model"
	"daylife/internal/planner"
)

// runCLI executes the root command against a fresh config file. Flag
// values are reset first since cobra keeps them between executions.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("GROQ_API_KEY", "")

	for _, c := range rootCmd.Commands() {
		c.Flags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}

	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "daylife.yaml")}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestNormalizeCommand(t *testing.T) {
	proposal := "7:00 AM - 9:00 AM | Breakfast | meal\n9:00 AM - 10:00 AM | Email | Category: Work\n"

	out, err := runCLI(t, proposal, "normalize", "--wake", "8:00 AM", "--bed", "10:00 PM", "--date", "2024-06-01")
	require.NoError(t, err)

	var got scheduleOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "2024-06-01", got.Date)
	assert.Equal(t, []model.Record{
		{StartTime: "8:00 AM", EndTime: "9:00 AM", Activity: "Breakfast", Category: "meal"},
		{StartTime: "9:00 AM", EndTime: "10:00 AM", Activity: "Email", Category: "work"},
	}, got.Schedule)
	require.Len(t, got.Warnings, 1)
	assert.Equal(t, model.WarnClipped, got.Warnings[0].Kind)
}

func TestNormalizeCommandNothingValid(t *testing.T) {
	_, err := runCLI(t, "no schedule here\n", "normalize")
	require.Error(t, err)
}

func TestExportCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ics")

	_, err := runCLI(t, "9:00 AM - 10:00 AM | Email | work\n", "export", "--date", "2024-06-01", "--out", path)
	require.NoError(t, err)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "BEGIN:VCALENDAR\r\n"))
	assert.Contains(t, string(body), "DTSTART:20240601T090000\r\n")
	assert.Contains(t, string(body), "SUMMARY:Email\r\n")
}

func TestExportCommandDefaultsToWholeDay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ics")

	// The config default wake-up is 8:00 AM; export must not clip to it.
	_, err := runCLI(t, "6:00 AM - 7:00 AM | Run | fitness\n", "export", "--date", "2024-06-01", "--out", path)
	require.NoError(t, err)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "DTSTART:20240601T060000\r\n")
}

func TestWindowFlagHelp(t *testing.T) {
	assert.Contains(t, exportCmd.Flags().Lookup("wake").Usage, "whole day")
	assert.Contains(t, exportCmd.Flags().Lookup("bed").Usage, "whole day")
	assert.Contains(t, normalizeCmd.Flags().Lookup("wake").Usage, "from config")
	assert.Contains(t, normalizeCmd.Flags().Lookup("bed").Usage, "from config")
}

func TestImportCommandRefusesUnlistedURL(t *testing.T) {
	_, err := runCLI(t, "", "import", "--url", "http://127.0.0.1:1/cal.ics", "--date", "2024-06-05")
	require.Error(t, err)
	assert.ErrorIs(t, err, planner.ErrRemoteImportDisabled)
}

func TestImportCommand(t *testing.T) {
	ics := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Test//EN",
		"BEGIN:VEVENT",
		"UID:review-1",
		"DTSTAMP:20240601T000000Z",
		"DTSTART:20240605T100000",
		"DTEND:20240605T110000",
		"SUMMARY:Design review",
		"CATEGORIES:work",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")
	path := filepath.Join(t.TempDir(), "work.ics")
	require.NoError(t, os.WriteFile(path, []byte(ics), 0o600))

	out, err := runCLI(t, "", "import", "--file", path, "--date", "2024-06-05")
	require.NoError(t, err)

	var got scheduleOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "2024-06-05", got.Date)
	assert.Equal(t, []model.Record{
		{StartTime: "10:00 AM", EndTime: "11:00 AM", Activity: "Design review", Category: "work"},
	}, got.Schedule)
}

func TestGenerateWithoutKey(t *testing.T) {
	_, err := runCLI(t, "", "generate", "--goals", "write")
	require.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "normalize", "export", "import", "generate"} {
		assert.True(t, names[want], want)
	}
}
