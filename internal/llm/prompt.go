// Package llm asks a chat-completion model for a day plan and turns its
// free-form answer into raw proposal records.
package llm

import (
	"strings"
	"text/template"
)

// Request carries the user's planning input.
type Request struct {
	Goals       string `json:"goals"`
	Constraints string `json:"constraints"`
	Wake        string `json:"preferred_wakeup"`
	Bed         string `json:"preferred_bedtime"`
}

var promptTemplate = template.Must(template.New("prompt").Parse(
	`Create a detailed daily schedule with these requirements:

Goals: {{.Goals}}
Constraints: {{.Constraints}}
Wake Up Time: {{.Wake}}
Bedtime: {{.Bed}}

Return the schedule in this EXACT format:
[start time]-[end time] | [activity] | [category]

Example:
8:00 AM-9:00 AM | Morning Routine | personal
9:00 AM-10:30 AM | Job Applications | work
`))

// BuildPrompt renders the instruction sent to the model.
func BuildPrompt(req Request) string {
	var b strings.Builder
	// The template has no failing actions; Execute into a Builder cannot fail.
	_ = promptTemplate.Execute(&b, Request{
		Goals:       strings.TrimSpace(req.Goals),
		Constraints: strings.TrimSpace(req.Constraints),
		Wake:        strings.TrimSpace(req.Wake),
		Bed:         strings.TrimSpace(req.Bed),
	})
	return b.String()
}
