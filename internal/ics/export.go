package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"daylife/internal/model"
)

const (
	// Filename is the suggested download name of an exported schedule.
	Filename = "daily_schedule.ics"
	// ContentType is the media type of an exported schedule.
	ContentType = "text/calendar"

	DefaultProductID = "-//DayLife//Daily Schedule//EN"

	// uidDomain suffixes every event UID, per RFC 5545's "@host" advice.
	uidDomain = "daylife"

	crlf           = "\r\n"
	floatingLayout = "20060102T150405"
	utcLayout      = "20060102T150405Z"
)

// uidNamespace seeds the name-based (v5) UUIDs used as event UIDs. Changing
// it changes every exported identifier.
var uidNamespace = uuid.MustParse("3b2a6f0e-5c1d-4e8a-9f7b-2d6c8e1a4b90")

// Payload is an exported calendar ready for download.
type Payload struct {
	Body        []byte
	Filename    string
	ContentType string
}

type exportOptions struct {
	productID string
	timezone  string
	stamp     time.Time
}

// ExportOption customizes Export.
type ExportOption func(*exportOptions)

// WithProductID overrides the PRODID written to the calendar.
func WithProductID(id string) ExportOption {
	return func(o *exportOptions) {
		if id != "" {
			o.productID = id
		}
	}
}

// WithTimezone records a zone label (X-WR-TIMEZONE) for clients that
// display floating times in a named zone. No conversion is performed.
func WithTimezone(name string) ExportOption {
	return func(o *exportOptions) {
		o.timezone = name
	}
}

// WithStamp sets the DTSTAMP written on every event. By default the stamp is
// midnight UTC of the reference date so that re-exports are byte-identical.
func WithStamp(t time.Time) ExportOption {
	return func(o *exportOptions) {
		o.stamp = t
	}
}

// Export serializes s as an RFC 5545 calendar with one VEVENT per block.
// Event times are floating local times on referenceDate; only its year,
// month and day are used.
func Export(s model.Schedule, referenceDate time.Time, opts ...ExportOption) (Payload, error) {
	if s.Len() == 0 {
		return Payload{}, &model.Error{
			Kind:    model.KindNothingToExport,
			Field:   "schedule",
			Message: "schedule has no blocks to export",
		}
	}

	y, m, d := referenceDate.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	o := exportOptions{productID: DefaultProductID, stamp: day}
	for _, opt := range opts {
		opt(&o)
	}

	// TEXT values are handed over unescaped; the library escapes and folds
	// them on serialization.
	cal := ical.NewCalendar()
	cal.SetProductId(sanitizeText(o.productID))
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ical.MethodPublish)
	if o.timezone != "" {
		cal.SetXWRTimezone(sanitizeText(o.timezone))
	}

	for _, b := range s.Blocks() {
		ev := cal.AddEvent(EventUID(day, b))
		ev.SetDtStampTime(o.stamp)
		ev.SetProperty(ical.ComponentPropertyDtStart, day.Add(time.Duration(b.Start)*time.Minute).Format(floatingLayout))
		ev.SetProperty(ical.ComponentPropertyDtEnd, day.Add(time.Duration(b.End)*time.Minute).Format(floatingLayout))
		ev.SetProperty(ical.ComponentPropertySummary, sanitizeText(b.Activity))
		ev.SetProperty(ical.ComponentPropertyCategories, sanitizeText(b.Category))
		ev.SetProperty(ical.ComponentPropertyDescription, sanitizeText("Category: "+b.Category))
	}

	var body strings.Builder
	if err := cal.SerializeTo(&body, ical.WithNewLine(crlf)); err != nil {
		return Payload{}, fmt.Errorf("serialize calendar: %w", err)
	}
	return Payload{
		Body:        []byte(body.String()),
		Filename:    Filename,
		ContentType: ContentType,
	}, nil
}

// EventUID derives a stable identifier from the reference date, the block's
// offsets and its activity, so unchanged blocks keep their UID across
// exports.
func EventUID(referenceDate time.Time, b model.TimeBlock) string {
	name := fmt.Sprintf("%s|%d|%d|%s", referenceDate.Format("2006-01-02"), b.Start, b.End, b.Activity)
	return uuid.NewSHA1(uidNamespace, []byte(name)).String() + "@" + uidDomain
}
