package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"daylife/internal/model"
)

// Accepted clock layouts, tried in order:
//
//	"8:00 AM", "8:00am", "8 a.m."   12-hour with optional minutes
//	"13:30", "08:05", "24:00"       24-hour
var (
	clock12Pattern = regexp.MustCompile(`(?i)^(\d{1,2})(?::(\d{2}))?\s*([ap])\.?\s*m\.?$`)
	clock24Pattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

// ParseClock parses free-form clock text into minutes since midnight.
// The result is in [0, MinutesPerDay]; only "24:00" yields MinutesPerDay.
func ParseClock(text string) (int, error) {
	// Collapse any unicode spacing (e.g. U+202F before "AM") to one space.
	s := strings.Join(strings.Fields(text), " ")
	if s == "" {
		return 0, fmt.Errorf("empty time")
	}

	if m := clock12Pattern.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if h < 1 || h > 12 || minute > 59 {
			return 0, fmt.Errorf("time %q out of range", text)
		}
		h %= 12
		if strings.EqualFold(m[3], "p") {
			h += 12
		}
		return h*60 + minute, nil
	}

	if m := clock24Pattern.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if minute > 59 || h > 24 || (h == 24 && minute != 0) {
			return 0, fmt.Errorf("time %q out of range", text)
		}
		return h*60 + minute, nil
	}

	return 0, fmt.Errorf("unrecognized time format %q", text)
}

// parseEnd parses an end-of-range clock. Midnight ends the reference day.
func parseEnd(text string) (int, error) {
	v, err := ParseClock(text)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return model.MinutesPerDay, nil
	}
	return v, nil
}

// parseStart parses a start-of-range clock; "24:00" cannot start anything.
func parseStart(text string) (int, error) {
	v, err := ParseClock(text)
	if err != nil {
		return 0, err
	}
	if v == model.MinutesPerDay {
		return 0, fmt.Errorf("time %q is the end of the day", text)
	}
	return v, nil
}

// ParsePreferences parses the caller's wake and bed text and validates them.
func ParsePreferences(wake, bed string) (model.Preferences, error) {
	w, err := parseStart(wake)
	if err != nil {
		return model.Preferences{}, &model.Error{
			Kind:    model.KindInvalidPreferences,
			Field:   "preferred_wakeup",
			Value:   wake,
			Message: err.Error(),
		}
	}
	b, err := parseEnd(bed)
	if err != nil {
		return model.Preferences{}, &model.Error{
			Kind:    model.KindInvalidPreferences,
			Field:   "preferred_bedtime",
			Value:   bed,
			Message: err.Error(),
		}
	}
	p := model.Preferences{Wake: w, Bed: b}
	if err := ValidatePreferences(p); err != nil {
		if e, ok := err.(*model.Error); ok {
			e.Value = wake + " / " + bed
		}
		return model.Preferences{}, err
	}
	return p, nil
}

// ValidatePreferences enforces 0 <= wake < bed <= MinutesPerDay.
func ValidatePreferences(p model.Preferences) error {
	if p.Wake < 0 || p.Bed > model.MinutesPerDay || p.Wake >= p.Bed {
		return &model.Error{
			Kind:    model.KindInvalidPreferences,
			Field:   "preferred_wakeup",
			Value:   model.FormatClock(p.Wake) + " / " + model.FormatClock(p.Bed),
			Message: "wake time must be before bedtime",
		}
	}
	return nil
}
