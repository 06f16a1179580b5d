package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daylife/internal/config"
	"daylife/internal/ics"
	"daylife/internal/llm"
	"daylife/internal/metrics"
	"daylife/internal/model"
	"daylife/internal/planner"
)

type stubClient struct {
	answer string
	err    error
}

func (c stubClient) Complete(context.Context, string) (string, error) {
	return c.answer, c.err
}

const scenarioA = "9:00 AM-10:00 AM | Gym | fitness\n9:30 AM-11:00 AM | Work | work"

type testEnv struct {
	srv      *httptest.Server
	cfg      *config.Config
	cacheDir string
}

func newTestEnv(t *testing.T, client llm.Client, mod func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.RateLimit = config.RateLimitConfig{RequestsPerMinute: 600, Burst: 100}
	if mod != nil {
		mod(cfg)
	}

	reg := prometheus.NewRegistry()
	m := metrics.MustNewMetrics(reg)
	cacheDir := t.TempDir()
	svc, err := planner.New(planner.Options{
		Client:            client,
		Fetcher:           ics.NewFetcher(cacheDir, nil),
		Metrics:           m,
		Location:          cfg.Location(),
		Subscriptions:     cfg.Sources(),
		AllowRemoteImport: cfg.AllowRemoteImport,
		Now:               func() time.Time { return time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(cfg, svc, m, reg).Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, cfg: cfg, cacheDir: cacheDir}
}

func (e *testEnv) do(t *testing.T, method, path, body string, hdr map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestRootAndHealth(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	resp := env.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"message": "DayLife Scheduler API is running"}, decode[map[string]string](t, resp))

	resp = env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGenerateSchedule(t *testing.T) {
	env := newTestEnv(t, stubClient{answer: scenarioA}, nil)

	resp := env.do(t, http.MethodPost, "/generate-schedule",
		`{"goals":"stay fit","preferred_wakeup":"8:00 AM","preferred_bedtime":"11:00 PM"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[scheduleResponse](t, resp)
	assert.Equal(t, []model.Record{
		{StartTime: "9:00 AM", EndTime: "10:00 AM", Activity: "Gym", Category: "fitness"},
		{StartTime: "10:00 AM", EndTime: "11:00 AM", Activity: "Work", Category: "work"},
	}, got.Schedule)
	require.Len(t, got.Warnings, 1)
	assert.Equal(t, model.WarnTruncated, got.Warnings[0].Kind)
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name   string
		client llm.Client
		body   string
		status int
		kind   string
	}{
		{"invalid preferences", stubClient{answer: scenarioA}, `{"goals":"x","preferred_wakeup":"9:00 AM","preferred_bedtime":"7:00 AM"}`, http.StatusUnprocessableEntity, "InvalidPreferences"},
		{"no valid blocks", stubClient{answer: "6:00 AM-7:00 AM | Run | fitness"}, `{"goals":"x"}`, http.StatusUnprocessableEntity, "NoValidBlocks"},
		{"empty proposal", stubClient{answer: "no plan today"}, `{"goals":"x"}`, http.StatusUnprocessableEntity, "EmptyProposal"},
		{"missing goals", stubClient{answer: scenarioA}, `{"constraints":"none"}`, http.StatusBadRequest, "BadRequest"},
		{"malformed body", stubClient{answer: scenarioA}, `{"goals":`, http.StatusBadRequest, "BadRequest"},
		{"upstream rejected", stubClient{err: llm.ErrUpstreamRejected}, `{"goals":"x"}`, http.StatusBadRequest, "UpstreamRejected"},
		{"upstream unavailable", stubClient{err: llm.ErrUpstreamUnavailable}, `{"goals":"x"}`, http.StatusBadGateway, "UpstreamUnavailable"},
		{"no api key", nil, `{"goals":"x"}`, http.StatusInternalServerError, "Configuration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.client, nil)
			resp := env.do(t, http.MethodPost, "/generate-schedule", tt.body, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.kind, decode[errorResponse](t, resp).Error.Kind)
		})
	}
}

func TestGenerateErrorCarriesWarnings(t *testing.T) {
	env := newTestEnv(t, stubClient{answer: "6:00 AM-7:00 AM | Run | fitness"}, nil)

	resp := env.do(t, http.MethodPost, "/generate-schedule", `{"goals":"x"}`, nil)
	got := decode[errorResponse](t, resp)
	require.Len(t, got.Error.Warnings, 1)
	assert.Equal(t, model.WarnOutOfBounds, got.Error.Warnings[0].Kind)
}

func TestExportCalendar(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	resp := env.do(t, http.MethodPost, "/export-calendar",
		`{"date":"2024-06-01","schedule":[{"start_time":"8:00 AM","end_time":"9:00 AM","activity":"Workout","category":"fitness"}]}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/calendar", resp.Header.Get("Content-Type"))
	assert.Equal(t, "attachment; filename=daily_schedule.ics", resp.Header.Get("Content-Disposition"))
	assert.Equal(t, "0", resp.Header.Get("X-Schedule-Warnings"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "DTSTART:20240601T080000\r\n")
	assert.Contains(t, string(body), "DTEND:20240601T090000\r\n")
	assert.Contains(t, string(body), "SUMMARY:Workout\r\n")
}

func TestExportCalendarBareArray(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	resp := env.do(t, http.MethodPost, "/export-calendar",
		`[{"start_time":"8:00 AM","end_time":"9:00 AM","activity":"Workout","category":"fitness"},
		  {"start_time":"8:30 AM","end_time":"9:30 AM","activity":"Email","category":"work"}]`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("X-Schedule-Warnings"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(body), "BEGIN:VEVENT"))
}

func TestExportCalendarErrors(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	resp := env.do(t, http.MethodPost, "/export-calendar", `[]`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "NothingToExport", decode[errorResponse](t, resp).Error.Kind)

	resp = env.do(t, http.MethodPost, "/export-calendar", `{"date":"June 1st","schedule":[]}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/export-calendar", ``, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestImportCalendar(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	cal := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Test//EN",
		"BEGIN:VEVENT",
		"UID:a",
		"DTSTAMP:20240501T000000Z",
		"DTSTART:20240601T090000Z",
		"DTEND:20240601T100000Z",
		"SUMMARY:Standup",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:b",
		"DTSTAMP:20240501T000000Z",
		"DTSTART;VALUE=DATE:20240601",
		"SUMMARY:Holiday",
		"END:VEVENT",
		"END:VCALENDAR",
	}, "\r\n") + "\r\n"
	body, err := json.Marshal(map[string]string{"ics": cal, "date": "2024-06-01"})
	require.NoError(t, err)

	resp := env.do(t, http.MethodPost, "/import-calendar", string(body), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[importResponse](t, resp)
	assert.Equal(t, []model.Record{
		{StartTime: "9:00 AM", EndTime: "10:00 AM", Activity: "Standup", Category: ics.DefaultImportCategory},
	}, got.Schedule)
	assert.Equal(t, 1, got.SkippedAllDay)

	resp = env.do(t, http.MethodPost, "/import-calendar", `{"date":"2024-06-01"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "InvalidCalendar", decode[errorResponse](t, resp).Error.Kind)
}

func TestImportCalendarURLRestrictions(t *testing.T) {
	var hits atomic.Int32
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	}))
	defer internal.Close()
	target, err := json.Marshal(map[string]string{"url": internal.URL + "/admin.ics", "date": "2024-06-01"})
	require.NoError(t, err)

	t.Run("disabled by default", func(t *testing.T) {
		env := newTestEnv(t, nil, nil)
		resp := env.do(t, http.MethodPost, "/import-calendar", string(target), nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		got := decode[errorResponse](t, resp).Error
		assert.Equal(t, "RemoteImportDisabled", got.Kind)
		assert.Equal(t, "url", got.Field)
		assertEmptyDir(t, env.cacheDir)
	})

	t.Run("internal addresses refused when enabled", func(t *testing.T) {
		env := newTestEnv(t, nil, func(c *config.Config) { c.AllowRemoteImport = true })
		resp := env.do(t, http.MethodPost, "/import-calendar", string(target), nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		got := decode[errorResponse](t, resp).Error
		assert.Equal(t, "InvalidCalendar", got.Kind)
		assert.Contains(t, got.Message, ics.ErrBlockedAddress.Error())
		assertEmptyDir(t, env.cacheDir)
	})

	t.Run("unknown source", func(t *testing.T) {
		env := newTestEnv(t, nil, nil)
		resp := env.do(t, http.MethodPost, "/import-calendar", `{"source":"nope"}`, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "InvalidCalendar", decode[errorResponse](t, resp).Error.Kind)
	})

	assert.Zero(t, hits.Load())
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, stubClient{answer: scenarioA}, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{RequestsPerMinute: 1, Burst: 1}
	})

	resp := env.do(t, http.MethodPost, "/generate-schedule", `{"goals":"x"}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/generate-schedule", `{"goals":"x"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RateLimited", decode[errorResponse](t, resp).Error.Kind)

	// Export is not limited.
	resp = env.do(t, http.MethodPost, "/export-calendar", `[{"start_time":"8:00","end_time":"9:00","activity":"A","category":"b"}]`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimitIgnoresForwardedHeaders(t *testing.T) {
	env := newTestEnv(t, stubClient{answer: scenarioA}, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{RequestsPerMinute: 1, Burst: 1}
	})

	resp := env.do(t, http.MethodPost, "/generate-schedule", `{"goals":"x"}`, map[string]string{"X-Forwarded-For": "203.0.113.1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	for _, ip := range []string{"203.0.113.2", "198.51.100.7"} {
		resp = env.do(t, http.MethodPost, "/generate-schedule", `{"goals":"x"}`, map[string]string{
			"X-Forwarded-For": ip,
			"X-Real-IP":       ip,
		})
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode, ip)
	}
}

func TestRateLimitTrustedProxy(t *testing.T) {
	env := newTestEnv(t, stubClient{answer: scenarioA}, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{RequestsPerMinute: 1, Burst: 1}
		c.TrustProxyHeaders = true
	})

	for _, ip := range []string{"203.0.113.1", "203.0.113.2"} {
		resp := env.do(t, http.MethodPost, "/generate-schedule", `{"goals":"x"}`, map[string]string{"X-Real-IP": ip})
		assert.Equal(t, http.StatusOK, resp.StatusCode, ip)
	}
	resp := env.do(t, http.MethodPost, "/generate-schedule", `{"goals":"x"}`, map[string]string{"X-Real-IP": "203.0.113.1"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestRateLimitZeroIsUnlimited(t *testing.T) {
	env := newTestEnv(t, stubClient{answer: scenarioA}, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{}
	})

	for i := 0; i < 5; i++ {
		resp := env.do(t, http.MethodPost, "/generate-schedule", `{"goals":"x"}`, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	resp := env.do(t, http.MethodOptions, "/generate-schedule", "", map[string]string{
		"Origin":                         "http://localhost:3000",
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "content-type",
	})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "content-type", resp.Header.Get("Access-Control-Allow-Headers"))

	resp = env.do(t, http.MethodOptions, "/generate-schedule", "", map[string]string{
		"Origin":                        "https://evil.example",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	resp = env.do(t, http.MethodGet, "/", "", map[string]string{"Origin": "http://localhost:3000"})
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestBasicAuth(t *testing.T) {
	env := newTestEnv(t, nil, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "me", Password: "secret"}
	})

	resp := env.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Basic")

	resp = env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/", nil)
	require.NoError(t, err)
	req.SetBasicAuth("me", "secret")
	ok, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer ok.Body.Close()
	assert.Equal(t, http.StatusOK, ok.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.do(t, http.MethodGet, "/health", "", nil)

	resp := env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `daylife_http_requests_total{method="GET",route="/health",status="200"} 1`)
}
