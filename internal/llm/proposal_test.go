package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daylife/internal/model"
)

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(Request{Goals: " ship the release ", Constraints: "no meetings after 4", Wake: "7:00 AM", Bed: "11:00 PM"})

	assert.Contains(t, p, "Goals: ship the release\n")
	assert.Contains(t, p, "Constraints: no meetings after 4\n")
	assert.Contains(t, p, "Wake Up Time: 7:00 AM\n")
	assert.Contains(t, p, "Bedtime: 11:00 PM\n")
	assert.Contains(t, p, "[start time]-[end time] | [activity] | [category]")
	assert.Contains(t, p, "8:00 AM-9:00 AM | Morning Routine | personal")
}

func TestParseProposalLines(t *testing.T) {
	text := `Here is your plan:

1. 8:00 AM-9:00 AM | Morning Routine | personal
- 9:00 AM – 10:30 AM | Job Applications | Category: Work
**10:30 AM-11:00 AM** | Break | rest
11am to 12pm | Lunch
Enjoy your day!`

	got, err := ParseProposal(text)
	require.NoError(t, err)
	assert.Equal(t, []model.RawBlock{
		model.NewRawBlock("8:00 AM", "9:00 AM", "Morning Routine", "personal"),
		model.NewRawBlock("9:00 AM", "10:30 AM", "Job Applications", "Category: Work"),
		model.NewRawBlock("10:30 AM", "11:00 AM", "Break", "rest"),
		model.NewRawBlock("11am", "12pm", "Lunch", ""),
	}, got)
}

func TestParseProposalNoCandidates(t *testing.T) {
	got, err := ParseProposal("I cannot help with that.")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseProposalJSONArray(t *testing.T) {
	got, err := ParseProposal(`[{"start_time":"9:00 AM","end_time":"10:00 AM","activity":"Gym","category":"fitness"}, 42]`)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "9:00 AM", got[0].StartText())
	assert.Equal(t, "Gym", got[0].Activity())
	assert.Empty(t, got[1])
}

func TestParseProposalFencedObject(t *testing.T) {
	text := "Sure!\n```json\n{\"schedule\": [{\"start\": \"13:00\", \"end\": \"14:00\", \"title\": \"Read\", \"type\": \"learning\"}]}\n```"
	got, err := ParseProposal(text)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "13:00", got[0].StartText())
	assert.Equal(t, "14:00", got[0].EndText())
	assert.Equal(t, "Read", got[0].Activity())
	assert.Equal(t, "learning", got[0].Category())
}

func TestParseProposalRepairsJSON(t *testing.T) {
	// Trailing comma and missing closing bracket.
	got, err := ParseProposal(`[{"start_time": "9:00 AM", "end_time": "10:00 AM", "activity": "Gym", "category": "fitness",}`)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Gym", got[0].Activity())
}

func TestParseProposalKeepsNumbers(t *testing.T) {
	got, err := ParseProposal(`[{"start_time": 9, "end_time": "10:00", "activity": "Gym", "category": "fitness"}]`)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, json.Number("9"), got[0]["start_time"])
}

func TestParseProposalWrongShape(t *testing.T) {
	_, err := ParseProposal(`{"plan": []}`)
	assert.ErrorIs(t, err, ErrMalformedProposal)

	_, err = ParseProposal(`{"schedule": "none"}`)
	assert.ErrorIs(t, err, ErrMalformedProposal)
}
