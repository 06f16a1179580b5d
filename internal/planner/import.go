package planner

import (
	"context"
	"fmt"
	"time"

	"daylife/internal/ics"
	appLog "daylife/internal/log"
	"daylife/internal/model"
)

// ImportRequest names a calendar to project onto one day. With none of
// ICS, SourceID or URL set, all configured subscriptions are used.
type ImportRequest struct {
	// SourceID selects one configured subscription.
	SourceID string
	// URL is either a configured subscription URL or, when remote imports
	// are allowed, any public calendar URL.
	URL string
	ICS []byte
	// Date is the reference date; zero means today.
	Date time.Time
	// Wake and Bed are optional; without them the whole day is kept.
	Wake string
	Bed  string
}

// ImportResult is an imported day.
type ImportResult struct {
	Result
	SkippedAllDay   int
	TruncatedEvents []string
}

// Import reads a calendar, expands its events onto the reference day and
// normalizes them like any other proposal.
func (s *Service) Import(ctx context.Context, req ImportRequest) (ImportResult, error) {
	res, err := s.importDay(ctx, req)
	s.opts.Metrics.ObserveImport(err)
	return res, err
}

func (s *Service) importDay(ctx context.Context, req ImportRequest) (ImportResult, error) {
	date := req.Date
	if date.IsZero() {
		date = s.Today()
	}
	// Only the calendar date counts; the wall clock comes from Location.
	y, m, d := date.Date()
	date = time.Date(y, m, d, 0, 0, 0, 0, s.opts.Location)

	prefs, err := optionalPreferences(req.Wake, req.Bed)
	if err != nil {
		return ImportResult{}, err
	}

	events, err := s.loadEvents(ctx, req)
	if err != nil {
		return ImportResult{}, err
	}

	exp, err := ics.ExpandDay(events, ics.ExpandConfig{Day: date, Location: s.opts.Location})
	if err != nil {
		return ImportResult{}, err
	}
	day := date.Format("2006-01-02")
	if len(exp.Blocks) == 0 {
		return ImportResult{}, &model.Error{
			Kind:    model.KindEmptyProposal,
			Field:   "date",
			Value:   day,
			Message: "calendar has no timed events on " + day,
		}
	}

	norm, err := s.normalize(exp.Blocks, prefs)
	if err != nil {
		return ImportResult{}, err
	}
	appLog.Info("calendar imported",
		"date", day,
		"events", len(events),
		"blocks", norm.Schedule.Len(),
		"skipped_all_day", exp.SkippedAllDay,
	)
	return ImportResult{
		Result:          norm,
		SkippedAllDay:   exp.SkippedAllDay,
		TruncatedEvents: exp.TruncatedEvents,
	}, nil
}

func (s *Service) loadEvents(ctx context.Context, req ImportRequest) ([]ics.ParsedEvent, error) {
	if len(req.ICS) > 0 {
		events, err := ics.ParseICS(ics.Source{ID: "upload"}, req.ICS, s.opts.Location)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCalendar, err)
		}
		return events, nil
	}

	var bodies []ics.FetchResult
	switch {
	case req.SourceID != "" || req.URL != "":
		res, err := s.fetchRequested(ctx, req)
		if err != nil {
			return nil, err
		}
		bodies = append(bodies, res)
	case len(s.opts.Subscriptions) > 0:
		results, errs := s.opts.Fetcher.FetchAll(ctx, s.opts.Subscriptions)
		if len(results) == 0 {
			return nil, fmt.Errorf("%w: all %d subscriptions failed", ErrInvalidCalendar, len(errs))
		}
		bodies = results
	default:
		return nil, ErrNoCalendarSource
	}

	var events []ics.ParsedEvent
	for _, b := range bodies {
		parsed, err := ics.ParseICS(b.Source, b.Body, s.opts.Location)
		if err != nil {
			if len(bodies) == 1 {
				return nil, fmt.Errorf("%w: %v", ErrInvalidCalendar, err)
			}
			continue
		}
		events = append(events, parsed...)
	}
	return events, nil
}

// fetchRequested loads the single calendar an import names. Configured
// subscriptions go through the disk cache; any other URL is fetched once,
// uncached, and only when remote imports are enabled.
func (s *Service) fetchRequested(ctx context.Context, req ImportRequest) (ics.FetchResult, error) {
	for _, src := range s.opts.Subscriptions {
		if (req.SourceID != "" && src.ID == req.SourceID) || (req.SourceID == "" && src.URL == req.URL) {
			res, err := s.opts.Fetcher.FetchOne(ctx, src)
			if err != nil {
				return ics.FetchResult{}, fmt.Errorf("%w: %v", ErrInvalidCalendar, err)
			}
			return res, nil
		}
	}
	if req.SourceID != "" {
		return ics.FetchResult{}, fmt.Errorf("%w: %q", ErrUnknownSource, req.SourceID)
	}
	if !s.opts.AllowRemoteImport {
		return ics.FetchResult{}, ErrRemoteImportDisabled
	}

	res, err := s.opts.Fetcher.FetchDirect(ctx, ics.Source{ID: "import", URL: req.URL})
	if err != nil {
		return ics.FetchResult{}, fmt.Errorf("%w: %w", ErrInvalidCalendar, err)
	}
	return res, nil
}
