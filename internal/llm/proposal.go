package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"daylife/internal/model"
)

// ErrMalformedProposal is returned when a JSON answer cannot be decoded into
// records even after repair.
var ErrMalformedProposal = errors.New("malformed proposal")

var (
	// bulletPrefix matches list markers a model likes to add: "-", "*", "•",
	// "1." or "1)".
	bulletPrefix = regexp.MustCompile(`^(?:[-*•]|\d{1,2}[.)])\s+`)
	// timeRange splits "8:00 AM-9:00 AM", "8:00 – 9:30" or "8am to 9am".
	timeRange = regexp.MustCompile(`^(.+?)\s*(?:-|–|—|\bto\b)\s*(.+)$`)
	jsonFence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
)

// ParseProposal extracts raw records from a model answer. Two shapes are
// understood:
//
//   - the line format "start-end | activity | category", one block per line;
//     lines without "|" are commentary and ignored
//   - a JSON array of objects, or an object with a "schedule" array,
//     optionally inside a code fence; broken JSON is repaired first
//
// Records are returned as found. Judging them is the normalizer's job, so a
// line with missing parts still yields a record.
func ParseProposal(text string) ([]model.RawBlock, error) {
	if body, ok := jsonBody(text); ok {
		return parseJSON(body)
	}
	return parseLines(text), nil
}

func jsonBody(text string) (string, bool) {
	if m := jsonFence.FindStringSubmatch(text); m != nil {
		inner := strings.TrimSpace(m[1])
		if strings.HasPrefix(inner, "[") || strings.HasPrefix(inner, "{") {
			return inner, true
		}
	}
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
		return trimmed, true
	}
	return "", false
}

func parseLines(text string) []model.RawBlock {
	out := make([]model.RawBlock, 0)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, "|") {
			continue
		}
		line = strings.Trim(line, "*` ")
		line = bulletPrefix.ReplaceAllString(line, "")

		parts := strings.SplitN(line, "|", 3)
		for i := range parts {
			parts[i] = strings.Trim(strings.TrimSpace(parts[i]), "*`")
		}

		var start, end, activity, category string
		if m := timeRange.FindStringSubmatch(parts[0]); m != nil {
			start, end = strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		} else {
			start = parts[0]
		}
		if len(parts) > 1 {
			activity = parts[1]
		}
		if len(parts) > 2 {
			category = parts[2]
		}
		out = append(out, model.NewRawBlock(start, end, activity, category))
	}
	return out
}

func parseJSON(body string) ([]model.RawBlock, error) {
	v, err := decodeLoose(body)
	if err != nil {
		repaired, rerr := jsonrepair.JSONRepair(body)
		if rerr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedProposal, rerr)
		}
		if v, err = decodeLoose(repaired); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedProposal, err)
		}
	}

	if obj, ok := v.(map[string]any); ok {
		inner, found := obj["schedule"]
		if !found {
			return nil, fmt.Errorf("%w: object has no schedule array", ErrMalformedProposal)
		}
		v = inner
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected an array of records, got %T", ErrMalformedProposal, v)
	}

	out := make([]model.RawBlock, 0, len(items))
	for _, item := range items {
		if rec, ok := item.(map[string]any); ok {
			out = append(out, model.RawBlock(rec))
			continue
		}
		// Keep the position so warnings still point at the right index.
		out = append(out, model.RawBlock{})
	}
	return out, nil
}

func decodeLoose(body string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
