package planner

import (
	"time"

	"daylife/internal/ics"
	"daylife/internal/model"
)

// ExportRequest carries caller-supplied records. They are normalized again
// before export, so the exporter only ever sees a valid schedule.
type ExportRequest struct {
	Records []model.RawBlock
	// Date is the reference date; zero means today.
	Date time.Time
	// Wake and Bed are optional; without them the whole day is allowed.
	Wake string
	Bed  string
}

// ExportResult is the calendar file plus the changes made to the records.
type ExportResult struct {
	Payload  ics.Payload
	Warnings []model.Warning
}

// Export normalizes req.Records and serializes them as an iCalendar file.
func (s *Service) Export(req ExportRequest) (ExportResult, error) {
	date := req.Date
	if date.IsZero() {
		date = s.Today()
	}

	var norm Result
	if len(req.Records) > 0 {
		prefs, err := optionalPreferences(req.Wake, req.Bed)
		if err != nil {
			s.opts.Metrics.ObserveExport(err)
			return ExportResult{}, err
		}
		if norm, err = s.normalize(req.Records, prefs); err != nil {
			s.opts.Metrics.ObserveExport(err)
			return ExportResult{}, err
		}
	}

	opts := []ics.ExportOption{ics.WithProductID(s.opts.ProductID)}
	if s.opts.TimezoneLabel != "" {
		opts = append(opts, ics.WithTimezone(s.opts.TimezoneLabel))
	}
	payload, err := ics.Export(norm.Schedule, date, opts...)
	s.opts.Metrics.ObserveExport(err)
	if err != nil {
		return ExportResult{}, err
	}
	return ExportResult{Payload: payload, Warnings: norm.Warnings}, nil
}
