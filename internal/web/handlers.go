package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"daylife/internal/model"
	"daylife/internal/planner"
)

const dateLayout = "2006-01-02"

type generateRequest struct {
	Goals       string `json:"goals"`
	Constraints string `json:"constraints"`
	Wake        string `json:"preferred_wakeup"`
	Bed         string `json:"preferred_bedtime"`
}

type exportRequest struct {
	Schedule []map[string]any `json:"schedule"`
	Date     string           `json:"date"`
	Wake     string           `json:"preferred_wakeup"`
	Bed      string           `json:"preferred_bedtime"`
}

type importRequest struct {
	Source string `json:"source"`
	URL    string `json:"url"`
	ICS    string `json:"ics"`
	Date   string `json:"date"`
	Wake   string `json:"preferred_wakeup"`
	Bed    string `json:"preferred_bedtime"`
}

type scheduleResponse struct {
	Schedule []model.Record  `json:"schedule"`
	Warnings []model.Warning `json:"warnings"`
	Cached   bool            `json:"cached,omitempty"`
}

type importResponse struct {
	scheduleResponse
	SkippedAllDay   int      `json:"skipped_all_day"`
	TruncatedEvents []string `json:"truncated_events,omitempty"`
}

func newScheduleResponse(res planner.Result) scheduleResponse {
	warnings := res.Warnings
	if warnings == nil {
		warnings = []model.Warning{}
	}
	return scheduleResponse{
		Schedule: res.Schedule.Records(),
		Warnings: warnings,
		Cached:   res.Cached,
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "DayLife Scheduler API is running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleGenerate asks the model for a plan and returns the normalized day.
//
// POST /generate-schedule
//
//	{"goals": "...", "constraints": "...", "preferred_wakeup": "8:00 AM", "preferred_bedtime": "11:00 PM"}
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	if strings.TrimSpace(req.Goals) == "" {
		writeFailure(w, r, fmt.Errorf("%w: goals is required", errBadRequest))
		return
	}

	res, err := s.planner.Generate(r.Context(), planner.GenerateRequest{
		Goals:       req.Goals,
		Constraints: req.Constraints,
		Wake:        req.Wake,
		Bed:         req.Bed,
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newScheduleResponse(res))
}

// handleExport returns the schedule as an .ics attachment. The body is
// either a bare array of records or an object with a "schedule" array and
// optional date and preferences.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, maxJSONBody)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	var req exportRequest
	if bytes.HasPrefix(body, []byte("[")) {
		err = decodeLoose(body, &req.Schedule)
	} else {
		err = decodeLoose(body, &req)
	}
	if err != nil {
		writeFailure(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	date, err := s.parseDate(req.Date)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	records := make([]model.RawBlock, 0, len(req.Schedule))
	for _, rec := range req.Schedule {
		records = append(records, model.RawBlock(rec))
	}

	res, err := s.planner.Export(planner.ExportRequest{
		Records: records,
		Date:    date,
		Wake:    req.Wake,
		Bed:     req.Bed,
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	p := res.Payload
	w.Header().Set("Content-Type", p.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+p.Filename)
	w.Header().Set("X-Schedule-Warnings", strconv.Itoa(len(res.Warnings)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(p.Body)
}

// handleImport projects a calendar (URL, inline text or the configured
// subscriptions) onto one day.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(w, r, maxImportBody, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	date, err := s.parseDate(req.Date)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	res, err := s.planner.Import(r.Context(), planner.ImportRequest{
		SourceID: strings.TrimSpace(req.Source),
		URL:      strings.TrimSpace(req.URL),
		ICS:      []byte(req.ICS),
		Date:     date,
		Wake:     req.Wake,
		Bed:      req.Bed,
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{
		scheduleResponse: newScheduleResponse(res.Result),
		SkippedAllDay:    res.SkippedAllDay,
		TruncatedEvents:  res.TruncatedEvents,
	})
}

// parseDate reads an optional YYYY-MM-DD date; empty means today.
func (s *Server) parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, v, s.planner.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD, got %q", errBadRequest, v)
	}
	return t, nil
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(http.MaxBytesReader(w, r.Body, limit)); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	body := bytes.TrimSpace(buf.Bytes())
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", errBadRequest)
	}
	return body, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	body, err := readBody(w, r, limit)
	if err != nil {
		return err
	}
	if err := decodeLoose(body, v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// decodeLoose keeps numbers as json.Number so record fields survive
// untouched until the normalizer reads them.
func decodeLoose(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(v)
}
