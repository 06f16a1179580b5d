package ics

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "daylife/internal/log"
	"daylife/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 500

	// DefaultImportCategory is used for imported events without CATEGORIES.
	DefaultImportCategory = "calendar"
)

// ExpandConfig controls how events are projected onto one reference day.
type ExpandConfig struct {
	// Day is the reference day; only its date in Location is used.
	Day time.Time

	// Location is the wall-clock zone of the reference day. If nil,
	// time.Local is used.
	Location *time.Location

	// MaxOccurrencesPerEvent caps how many instances of one recurring event
	// may land on the day. If zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult is the day's worth of imported blocks.
type ExpandResult struct {
	// Blocks are raw records in the 24-hour textual shape, ordered by start,
	// ready for normalization.
	Blocks []model.RawBlock
	// SkippedAllDay counts all-day events, which have no time block.
	SkippedAllDay int
	// TruncatedEvents records UIDs that hit the MaxOccurrencesPerEvent cap.
	TruncatedEvents []string
}

// occurrence is one concrete instance clipped to the reference day.
type occurrence struct {
	uid      string
	summary  string
	category string
	start    int
	end      int
}

// ExpandDay projects events onto the reference day. It handles:
//
//   - Single non-recurring events
//   - RRULE-based recurrence, with EXDATE removal
//   - RECURRENCE-ID overrides
//
// Instances are clipped to the day, so an event that began yesterday starts
// at 00:00 and one running past midnight ends at 24:00.
func ExpandDay(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.Day.IsZero() {
		return result, errors.New("expand: reference day is required")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	y, m, d := cfg.Day.In(cfg.Location).Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, cfg.Location)
	dayEnd := dayStart.AddDate(0, 0, 1)

	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else {
			baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
		}
	}

	var all []occurrence
	for uid, baseEvents := range baseByUID {
		ov := overridesByUID[uid]
		for _, ev := range baseEvents {
			if ev.AllDay {
				result.SkippedAllDay++
				continue
			}
			var (
				occ    []occurrence
				hitCap bool
			)
			if ev.RawRRule == "" {
				occ = expandSingle(ev, ov, dayStart, dayEnd)
			} else {
				occ, hitCap = expandRecurring(ev, ov, dayStart, dayEnd, cfg.MaxOccurrencesPerEvent)
			}
			all = append(all, occ...)
			if hitCap {
				result.TruncatedEvents = append(result.TruncatedEvents, uid)
				appLog.Warn("expand: truncated occurrences for UID due to cap",
					"uid", uid,
					"cap", cfg.MaxOccurrencesPerEvent,
				)
			}
		}
	}

	// Map iteration order is random; the normalizer's tie-break depends on
	// input order, so fix it here.
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.start != b.start {
			return a.start < b.start
		}
		if a.end != b.end {
			return a.end < b.end
		}
		if a.summary != b.summary {
			return a.summary < b.summary
		}
		return a.uid < b.uid
	})
	sort.Strings(result.TruncatedEvents)

	result.Blocks = make([]model.RawBlock, 0, len(all))
	for _, o := range all {
		result.Blocks = append(result.Blocks, model.NewRawBlock(
			clock24(o.start), clock24(o.end), o.summary, o.category,
		))
	}
	return result, nil
}

func expandSingle(ev ParsedEvent, overrides []ParsedEvent, dayStart, dayEnd time.Time) []occurrence {
	if o, ok := findOverrideForStart(overrides, ev.Start); ok {
		ev = o
	}
	if occ, ok := clipToDay(ev, ev.Start, ev.End, dayStart, dayEnd); ok {
		return []occurrence{occ}
	}
	return nil
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, dayStart, dayEnd time.Time, maxOcc int) ([]occurrence, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Include instances that started before the day but run into it.
	dur := ev.End.Sub(ev.Start)
	from := dayStart.Add(-dur).In(ev.Start.Location())
	to := dayEnd.In(ev.Start.Location())
	starts := set.Between(from, to, true)

	hitCap := false
	if len(starts) > maxOcc {
		starts = starts[:maxOcc]
		hitCap = true
	}

	out := make([]occurrence, 0, len(starts))
	for _, s := range starts {
		inst, start, end := ev, s, s.Add(dur)
		if o, ok := findOverrideForStart(overrides, s); ok {
			inst, start, end = o, o.Start, o.End
		}
		if occ, ok := clipToDay(inst, start, end, dayStart, dayEnd); ok {
			out = append(out, occ)
		}
	}
	return out, hitCap
}

// findOverrideForStart finds an override whose RECURRENCE-ID equals start.
func findOverrideForStart(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

// clipToDay converts an instance to minute offsets on the day, dropping it
// when it does not intersect [dayStart, dayEnd).
func clipToDay(ev ParsedEvent, start, end, dayStart, dayEnd time.Time) (occurrence, bool) {
	if !end.After(dayStart) || !start.Before(dayEnd) || !end.After(start) {
		return occurrence{}, false
	}
	if start.Before(dayStart) {
		start = dayStart
	}
	if end.After(dayEnd) {
		end = dayEnd
	}

	category := DefaultImportCategory
	if len(ev.Categories) > 0 {
		category = ev.Categories[0]
	}
	summary := strings.TrimSpace(ev.Summary)
	if summary == "" {
		summary = "Busy"
	}

	return occurrence{
		uid:      ev.UID,
		summary:  summary,
		category: category,
		start:    wallMinutes(start, dayStart, dayEnd),
		end:      wallMinutes(end, dayStart, dayEnd),
	}, true
}

// wallMinutes is t's wall-clock offset on the day; dayEnd maps to 1440.
func wallMinutes(t, dayStart, dayEnd time.Time) int {
	if !t.Before(dayEnd) {
		return model.MinutesPerDay
	}
	lt := t.In(dayStart.Location())
	return lt.Hour()*60 + lt.Minute()
}

// clock24 renders minutes since midnight as "15:04", with the end of the
// day as "24:00".
func clock24(min int) string {
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}
