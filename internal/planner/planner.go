// Package planner wires the model client, the normalizer and the calendar
// import/export into the operations offered by the API and the CLI.
package planner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"daylife/internal/ics"
	"daylife/internal/llm"
	appLog "daylife/internal/log"
	"daylife/internal/metrics"
	"daylife/internal/model"
	"daylife/internal/schedule"
)

const (
	defaultCacheSize = 256
	defaultCacheTTL  = time.Hour
)

var (
	// ErrNoCalendarSource means an import named neither a URL nor an inline
	// calendar and no subscriptions are configured.
	ErrNoCalendarSource = errors.New("no calendar to import")
	// ErrInvalidCalendar wraps fetch and parse failures of an imported
	// calendar.
	ErrInvalidCalendar = errors.New("invalid calendar")
	// ErrUnknownSource means an import named a subscription that is not
	// configured.
	ErrUnknownSource = errors.New("unknown calendar source")
	// ErrRemoteImportDisabled means an import named a URL that is not a
	// configured subscription while remote imports are off.
	ErrRemoteImportDisabled = errors.New("importing arbitrary calendar URLs is disabled")
)

// Options configures a Service. Zero values take defaults.
type Options struct {
	// Client is the model used by Generate. If nil, Generate fails with
	// llm.ErrMissingAPIKey.
	Client llm.Client
	// Fetcher downloads calendars for Import and RefreshSubscriptions.
	Fetcher *ics.Fetcher
	Metrics *metrics.Metrics

	// Location decides "today" and the wall clock of imported events.
	Location *time.Location

	// DefaultWake and DefaultBed fill in Generate requests without
	// preferences.
	DefaultWake string
	DefaultBed  string

	// ExemptCategories skip clipping; nil means schedule.DefaultExemptCategories.
	ExemptCategories []string

	ProductID string
	// TimezoneLabel is written as X-WR-TIMEZONE when non-empty.
	TimezoneLabel string

	Subscriptions []ics.Source
	// AllowRemoteImport lets Import fetch URLs that are not subscriptions.
	AllowRemoteImport bool

	CacheSize int
	CacheTTL  time.Duration

	// Now is used for cache expiry and for "today".
	Now func() time.Time
}

// Service runs the schedule flows. It is safe for concurrent use.
type Service struct {
	opts  Options
	cache *lru.Cache[string, cacheEntry]
}

type cacheEntry struct {
	result  Result
	expires time.Time
}

// New builds a Service.
func New(opts Options) (*Service, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.DefaultWake == "" {
		opts.DefaultWake = "8:00 AM"
	}
	if opts.DefaultBed == "" {
		opts.DefaultBed = "11:00 PM"
	}
	if opts.ExemptCategories == nil {
		opts.ExemptCategories = schedule.DefaultExemptCategories
	}
	if opts.ProductID == "" {
		opts.ProductID = ics.DefaultProductID
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Fetcher == nil {
		opts.Fetcher = ics.NewFetcher("", nil)
	}

	cache, err := lru.New[string, cacheEntry](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create generation cache: %w", err)
	}
	return &Service{opts: opts, cache: cache}, nil
}

// Result is a normalized day together with the changes made to get there.
type Result struct {
	Schedule model.Schedule
	Warnings []model.Warning
	// Cached reports that Generate served the result from its cache.
	Cached bool
}

// Today is the current date in the service's location.
func (s *Service) Today() time.Time {
	return s.opts.Now().In(s.opts.Location)
}

// Location is the zone used for "today" and imports.
func (s *Service) Location() *time.Location {
	return s.opts.Location
}

func (s *Service) normalizeOptions() []schedule.Option {
	return []schedule.Option{schedule.WithExemptCategories(s.opts.ExemptCategories...)}
}

// normalize runs the normalizer and records its outcome.
func (s *Service) normalize(raw []model.RawBlock, prefs model.Preferences) (Result, error) {
	res, err := schedule.Normalize(raw, prefs, s.normalizeOptions()...)
	warnings := res.Warnings
	var e *model.Error
	if errors.As(err, &e) {
		warnings = e.Warnings
	}
	s.opts.Metrics.ObserveNormalization(warnings, err)
	if err != nil {
		return Result{}, err
	}
	return Result{Schedule: res.Schedule, Warnings: res.Warnings}, nil
}

// preferences parses wake/bed, substituting the given defaults for blanks.
func preferences(wake, bed, defWake, defBed string) (model.Preferences, error) {
	if strings.TrimSpace(wake) == "" {
		wake = defWake
	}
	if strings.TrimSpace(bed) == "" {
		bed = defBed
	}
	return schedule.ParsePreferences(wake, bed)
}

// optionalPreferences is the whole day unless the caller names a bound.
func optionalPreferences(wake, bed string) (model.Preferences, error) {
	if strings.TrimSpace(wake) == "" && strings.TrimSpace(bed) == "" {
		return model.WholeDay, nil
	}
	return preferences(wake, bed, "12:00 AM", "12:00 AM")
}

func hashKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SweepExpired evicts cache entries past their TTL and reports how many were
// removed.
func (s *Service) SweepExpired() int {
	now := s.opts.Now()
	removed := 0
	for _, key := range s.cache.Keys() {
		if e, ok := s.cache.Peek(key); ok && !now.Before(e.expires) {
			if s.cache.Remove(key) {
				removed++
			}
		}
	}
	if removed > 0 {
		appLog.Debug("generation cache swept", "removed", removed, "remaining", s.cache.Len())
	}
	return removed
}

// RefreshSubscriptions downloads every configured subscription into the
// fetcher's disk cache and reports how many succeeded.
func (s *Service) RefreshSubscriptions(ctx context.Context) (int, error) {
	if len(s.opts.Subscriptions) == 0 {
		return 0, nil
	}
	results, errs := s.opts.Fetcher.FetchAll(ctx, s.opts.Subscriptions)
	for range results {
		s.opts.Metrics.ObserveRefresh(nil)
	}
	for _, err := range errs {
		s.opts.Metrics.ObserveRefresh(err)
	}
	appLog.Info("subscriptions refreshed", "ok", len(results), "failed", len(errs))
	return len(results), errors.Join(errs...)
}
