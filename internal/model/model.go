package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	// MinutesPerDay is the exclusive upper bound of a start offset and the
	// inclusive upper bound of an end offset (midnight ending the day).
	MinutesPerDay = 1440
)

// TimeBlock is one scheduled activity on the schedule's reference day.
// Start and End are minutes since midnight; Start < End always holds.
type TimeBlock struct {
	Start    int
	End      int
	Activity string
	Category string
}

// Duration returns the block length in minutes.
func (b TimeBlock) Duration() int {
	return b.End - b.Start
}

// StartText renders the start offset as "3:04 PM".
func (b TimeBlock) StartText() string {
	return FormatClock(b.Start)
}

// EndText renders the end offset as "3:04 PM".
func (b TimeBlock) EndText() string {
	return FormatClock(b.End)
}

func (b TimeBlock) String() string {
	return fmt.Sprintf("%s-%s %s [%s]", b.StartText(), b.EndText(), b.Activity, b.Category)
}

// Record is the outbound textual shape of a block consumed by renderers.
type Record struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Activity  string `json:"activity"`
	Category  string `json:"category"`
}

// Schedule is an immutable, sorted, non-overlapping sequence of blocks for
// one reference day. The zero value is an empty schedule.
type Schedule struct {
	blocks []TimeBlock
}

// NewSchedule validates blocks and wraps them in a Schedule. Blocks must be
// well formed, sorted by start and must not overlap.
func NewSchedule(blocks []TimeBlock) (Schedule, error) {
	for i, b := range blocks {
		if b.Start < 0 || b.End > MinutesPerDay || b.Start >= b.End {
			return Schedule{}, fmt.Errorf("block %d: invalid range %d-%d", i, b.Start, b.End)
		}
		if strings.TrimSpace(b.Activity) == "" {
			return Schedule{}, fmt.Errorf("block %d: empty activity", i)
		}
		if i > 0 && blocks[i-1].End > b.Start {
			return Schedule{}, fmt.Errorf("block %d: overlaps or precedes block %d", i, i-1)
		}
	}
	out := make([]TimeBlock, len(blocks))
	copy(out, blocks)
	return Schedule{blocks: out}, nil
}

// Blocks returns a copy of the schedule's blocks.
func (s Schedule) Blocks() []TimeBlock {
	out := make([]TimeBlock, len(s.blocks))
	copy(out, s.blocks)
	return out
}

func (s Schedule) Len() int {
	return len(s.blocks)
}

// Records returns the schedule in the textual shape used for display.
func (s Schedule) Records() []Record {
	out := make([]Record, 0, len(s.blocks))
	for _, b := range s.blocks {
		out = append(out, Record{
			StartTime: b.StartText(),
			EndTime:   b.EndText(),
			Activity:  b.Activity,
			Category:  b.Category,
		})
	}
	return out
}

// Preferences are the caller's wake and bed times in minutes since
// midnight. Bed may be MinutesPerDay to mean the end of the day.
type Preferences struct {
	Wake int
	Bed  int
}

// WholeDay is the preference window used when a caller supplies none.
var WholeDay = Preferences{Wake: 0, Bed: MinutesPerDay}

// RawBlock is one loosely typed record proposed by the model or decoded
// from a request body.
type RawBlock map[string]any

// NewRawBlock builds a record in the canonical textual shape.
func NewRawBlock(start, end, activity, category string) RawBlock {
	return RawBlock{
		"start_time": start,
		"end_time":   end,
		"activity":   activity,
		"category":   category,
	}
}

// Text returns the first non-empty value found under keys, coerced to
// trimmed text. Strings, numbers and json.Number are accepted; anything
// else counts as missing.
func (r RawBlock) Text(keys ...string) string {
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case json.Number:
			s = t.String()
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		case int:
			s = strconv.Itoa(t)
		case fmt.Stringer:
			s = t.String()
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func (r RawBlock) StartText() string { return r.Text("start_time", "start", "startTime") }
func (r RawBlock) EndText() string   { return r.Text("end_time", "end", "endTime") }
func (r RawBlock) Activity() string  { return r.Text("activity", "title", "name", "summary") }
func (r RawBlock) Category() string  { return r.Text("category", "type", "tag") }

// FormatClock renders minutes since midnight as "3:04 PM". MinutesPerDay
// renders as "12:00 AM".
func FormatClock(min int) string {
	min = ((min % MinutesPerDay) + MinutesPerDay) % MinutesPerDay
	h, m := min/60, min%60
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%02d %s", h12, m, suffix)
}
