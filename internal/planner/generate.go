package planner

import (
	"context"
	"strings"
	"time"

	"daylife/internal/llm"
	appLog "daylife/internal/log"
	"daylife/internal/model"
)

// GenerateRequest asks the model for a day plan.
type GenerateRequest struct {
	Goals       string
	Constraints string
	Wake        string
	Bed         string
}

// Generate asks the model for a proposal and normalizes it. Preferences are
// validated before the model is called, and successful results are cached
// per request for the configured TTL.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (Result, error) {
	prefs, err := preferences(req.Wake, req.Bed, s.opts.DefaultWake, s.opts.DefaultBed)
	if err != nil {
		s.opts.Metrics.ObserveNormalization(nil, err)
		return Result{}, err
	}
	if s.opts.Client == nil {
		return Result{}, llm.ErrMissingAPIKey
	}

	key := hashKey(
		strings.TrimSpace(req.Goals),
		strings.TrimSpace(req.Constraints),
		model.FormatClock(prefs.Wake),
		model.FormatClock(prefs.Bed),
	)
	if e, ok := s.cache.Get(key); ok && s.opts.Now().Before(e.expires) {
		s.opts.Metrics.ObserveCache(true)
		res := e.result
		res.Cached = true
		return res, nil
	}
	s.opts.Metrics.ObserveCache(false)

	prompt := llm.BuildPrompt(llm.Request{
		Goals:       req.Goals,
		Constraints: req.Constraints,
		Wake:        model.FormatClock(prefs.Wake),
		Bed:         model.FormatClock(prefs.Bed),
	})

	start := time.Now()
	text, err := s.opts.Client.Complete(ctx, prompt)
	s.opts.Metrics.ObserveModelRequest(time.Since(start), err)
	if err != nil {
		return Result{}, err
	}

	raw, err := llm.ParseProposal(text)
	if err != nil {
		appLog.Warn("model answer unreadable", "error", err.Error(), "bytes", len(text))
		perr := &model.Error{
			Kind:    model.KindEmptyProposal,
			Field:   "proposal",
			Message: "model answer could not be read: " + err.Error(),
		}
		s.opts.Metrics.ObserveNormalization(nil, perr)
		return Result{}, perr
	}

	res, err := s.normalize(raw, prefs)
	if err != nil {
		return Result{}, err
	}
	appLog.Info("schedule generated", "blocks", res.Schedule.Len(), "warnings", len(res.Warnings))

	s.cache.Add(key, cacheEntry{result: res, expires: s.opts.Now().Add(s.opts.CacheTTL)})
	return res, nil
}
