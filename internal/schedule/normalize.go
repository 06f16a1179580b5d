// Package schedule turns an untrusted block proposal into a validated,
// sorted, non-overlapping day schedule.
package schedule

import (
	"fmt"
	"slices"
	"strings"

	"daylife/internal/model"
)

// DefaultExemptCategories may cross the wake/bed bounds; sleep naturally
// straddles the reference day.
var DefaultExemptCategories = []string{"sleep"}

// Result is a successful normalization. Warnings list every block that was
// dropped, clipped or truncated, in the order the changes were made.
type Result struct {
	Schedule model.Schedule
	Warnings []model.Warning
}

type options struct {
	exempt   map[string]bool
	observer func(model.Warning)
}

// Option customizes a single Normalize call.
type Option func(*options)

// WithExemptCategories replaces the set of categories that skip bounds
// clipping. Matching is case-insensitive.
func WithExemptCategories(categories ...string) Option {
	return func(o *options) {
		o.exempt = make(map[string]bool, len(categories))
		for _, c := range categories {
			o.exempt[normalizeCategory(c)] = true
		}
	}
}

// WithObserver registers a callback invoked for every warning as it is
// recorded.
func WithObserver(fn func(model.Warning)) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// candidate is a parsed block plus its position in the raw proposal.
type candidate struct {
	block model.TimeBlock
	index int
}

// outcome is the result of parsing one raw record: a candidate or a warning.
type outcome struct {
	cand    candidate
	warning *model.Warning
}

type normalizer struct {
	opts     options
	prefs    model.Preferences
	warnings []model.Warning
}

// Normalize parses, bounds-checks and de-overlaps raw against prefs.
//
// Per-block problems degrade to warnings. The call fails with
// InvalidPreferences before looking at any block, with EmptyProposal when no
// record parses, and with NoValidBlocks when every parsed block was dropped.
func Normalize(raw []model.RawBlock, prefs model.Preferences, opts ...Option) (Result, error) {
	if err := ValidatePreferences(prefs); err != nil {
		return Result{}, err
	}

	n := &normalizer{prefs: prefs}
	WithExemptCategories(DefaultExemptCategories...)(&n.opts)
	for _, opt := range opts {
		opt(&n.opts)
	}

	parsed := make([]candidate, 0, len(raw))
	for i, r := range raw {
		out := parseRecord(i, r)
		if out.warning != nil {
			n.warn(*out.warning)
			continue
		}
		parsed = append(parsed, out.cand)
	}
	if len(parsed) == 0 {
		return Result{}, &model.Error{
			Kind:     model.KindEmptyProposal,
			Message:  fmt.Sprintf("none of the %d proposed blocks could be parsed", len(raw)),
			Warnings: n.warnings,
		}
	}

	bounded := make([]candidate, 0, len(parsed))
	for _, c := range parsed {
		if c, ok := n.clip(c); ok {
			bounded = append(bounded, c)
		}
	}

	accepted := n.sweep(bounded)
	if len(accepted) == 0 {
		return Result{}, &model.Error{
			Kind:     model.KindNoValidBlocks,
			Message:  "every proposed block was dropped during validation",
			Warnings: n.warnings,
		}
	}

	s, err := model.NewSchedule(accepted)
	if err != nil {
		// The sweep guarantees the invariants; reaching this is a bug.
		return Result{}, fmt.Errorf("normalize: %w", err)
	}
	return Result{Schedule: s, Warnings: n.warnings}, nil
}

func (n *normalizer) warn(w model.Warning) {
	n.warnings = append(n.warnings, w)
	if n.opts.observer != nil {
		n.opts.observer(w)
	}
}

// parseRecord converts one raw record into a candidate or a warning.
func parseRecord(index int, r model.RawBlock) outcome {
	fail := func(field, value, reason string) outcome {
		return outcome{warning: &model.Warning{
			Index:  index,
			Kind:   model.WarnUnparseable,
			Field:  field,
			Value:  value,
			Reason: reason,
		}}
	}

	startText := r.StartText()
	start, err := parseStart(startText)
	if err != nil {
		return fail("start_time", startText, err.Error())
	}
	endText := r.EndText()
	end, err := parseEnd(endText)
	if err != nil {
		return fail("end_time", endText, err.Error())
	}
	if start >= end {
		return fail("end_time", endText, fmt.Sprintf("block %s-%s does not end after it starts on the same day", startText, endText))
	}
	activity := strings.Join(strings.Fields(r.Activity()), " ")
	if activity == "" {
		return fail("activity", "", "activity is empty")
	}
	category := normalizeCategory(r.Category())
	if category == "" {
		return fail("category", r.Category(), "category is empty")
	}

	return outcome{cand: candidate{
		index: index,
		block: model.TimeBlock{Start: start, End: end, Activity: activity, Category: category},
	}}
}

// normalizeCategory lower-cases a category and strips a "category:" style
// prefix the model sometimes echoes back.
func normalizeCategory(c string) string {
	if i := strings.LastIndex(c, ":"); i >= 0 {
		c = c[i+1:]
	}
	return strings.ToLower(strings.TrimSpace(c))
}

// clip restricts a non-exempt block to [wake, bed).
func (n *normalizer) clip(c candidate) (candidate, bool) {
	if n.opts.exempt[c.block.Category] {
		return c, true
	}
	b := c.block
	start := max(b.Start, n.prefs.Wake)
	end := min(b.End, n.prefs.Bed)
	if start >= end {
		n.warn(model.Warning{
			Index:  c.index,
			Kind:   model.WarnOutOfBounds,
			Field:  "start_time",
			Value:  b.StartText(),
			Reason: fmt.Sprintf("%q at %s-%s lies outside %s-%s", b.Activity, b.StartText(), b.EndText(), model.FormatClock(n.prefs.Wake), model.FormatClock(n.prefs.Bed)),
		})
		return c, false
	}
	if start != b.Start || end != b.End {
		clipped := b
		clipped.Start, clipped.End = start, end
		n.warn(model.Warning{
			Index:  c.index,
			Kind:   model.WarnClipped,
			Field:  "start_time",
			Value:  b.StartText(),
			Reason: fmt.Sprintf("%q clipped from %s-%s to %s-%s", b.Activity, b.StartText(), b.EndText(), clipped.StartText(), clipped.EndText()),
		})
		c.block = clipped
	}
	return c, true
}

// sweep orders candidates by start, longer duration first, then proposal
// order, and truncates or drops each block overlapping the last accepted one.
func (n *normalizer) sweep(cands []candidate) []model.TimeBlock {
	slices.SortStableFunc(cands, func(a, b candidate) int {
		if a.block.Start != b.block.Start {
			return a.block.Start - b.block.Start
		}
		if da, db := a.block.Duration(), b.block.Duration(); da != db {
			return db - da
		}
		return a.index - b.index
	})

	out := make([]model.TimeBlock, 0, len(cands))
	for _, c := range cands {
		b := c.block
		if len(out) > 0 {
			prev := out[len(out)-1]
			if b.Start < prev.End {
				if prev.End >= b.End {
					n.warn(model.Warning{
						Index:  c.index,
						Kind:   model.WarnOverlapDropped,
						Field:  "start_time",
						Value:  b.StartText(),
						Reason: fmt.Sprintf("%q at %s-%s is covered by %q", b.Activity, b.StartText(), b.EndText(), prev.Activity),
					})
					continue
				}
				n.warn(model.Warning{
					Index:  c.index,
					Kind:   model.WarnTruncated,
					Field:  "start_time",
					Value:  b.StartText(),
					Reason: fmt.Sprintf("%q moved to start at %s after %q", b.Activity, prev.EndText(), prev.Activity),
				})
				b.Start = prev.End
			}
		}
		out = append(out, b)
	}
	return out
}
