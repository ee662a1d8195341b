// Package dates turns free-text search instructions into a bounded
// message-history window.
package dates

import (
	"context"
	"fmt"
	"time"

	"github.com/xaenox/slack-recall/internal/llm"
	"github.com/xaenox/slack-recall/internal/models"
	"go.uber.org/zap"
)

// Layout is the MM/DD/YYYY form used for every date string.
const Layout = "01/02/2006"

const (
	fallbackDays = 30
	perDayLimit  = 5
	minLimit     = 50
	maxLimit     = 200
)

// Today formats now as MM/DD/YYYY.
func Today(now time.Time) string {
	return now.Format(Layout)
}

// Fallback is the range used whenever a date range cannot be inferred:
// the 30 days ending today.
func Fallback(today string) models.DateRange {
	t, err := time.Parse(Layout, today)
	if err != nil {
		return models.DateRange{StartDate: today, EndDate: today}
	}
	return models.DateRange{
		StartDate: t.AddDate(0, 0, -fallbackDays).Format(Layout),
		EndDate:   today,
	}
}

type Extractor struct {
	llm    llm.Completer
	logger *zap.Logger
}

func NewExtractor(completer llm.Completer, logger *zap.Logger) *Extractor {
	return &Extractor{llm: completer, logger: logger}
}

// Extract asks the model for the date range the instructions refer to.
// It never fails: any unusable reply resolves to Fallback(today).
func (e *Extractor) Extract(ctx context.Context, instructions, today string) models.DateRange {
	prompt := fmt.Sprintf(`Today's date is %s.

Determine the date range the following search instructions refer to.
Rules:
- Compute relative phrases ("yesterday", "last week", "past 3 days") from today's date.
- Honour an explicit month and/or year ("in March", "March 2024").
- "recent" or "latest" means the past 7 days.
- If no time frame is given, use the past 30 days.

Return only a JSON object with this structure, dates in MM/DD/YYYY format:
{"startDate": "MM/DD/YYYY", "endDate": "MM/DD/YYYY"}

Search instructions: %s`, today, instructions)

	reply, err := e.llm.Complete(ctx, llm.Request{Prompt: prompt, JSON: true})
	if err != nil {
		e.logger.Warn("Date range inference failed, using default window", zap.Error(err))
		return Fallback(today)
	}

	var r models.DateRange
	if err := llm.Unmarshal(reply, &r); err != nil {
		e.logger.Warn("Failed to parse date range response",
			zap.Error(err),
			zap.String("response", reply))
		return Fallback(today)
	}
	if !valid(r.StartDate) || !valid(r.EndDate) {
		e.logger.Warn("Date range response has malformed dates",
			zap.String("start_date", r.StartDate),
			zap.String("end_date", r.EndDate))
		return Fallback(today)
	}
	return r
}

func valid(s string) bool {
	_, err := time.Parse(Layout, s)
	return err == nil
}

// ToWindow converts a date range into Unix-second bounds and a fetch limit.
// The window spans from the start of the start date to the end of the end
// date in loc. A reversed range is swapped. The limit is five messages per
// day, clamped to [50, 200].
func ToWindow(r models.DateRange, loc *time.Location) (models.TimeWindow, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation(Layout, r.StartDate, loc)
	if err != nil {
		return models.TimeWindow{}, fmt.Errorf("parse start date %q: %w", r.StartDate, err)
	}
	end, err := time.ParseInLocation(Layout, r.EndDate, loc)
	if err != nil {
		return models.TimeWindow{}, fmt.Errorf("parse end date %q: %w", r.EndDate, err)
	}
	if end.Before(start) {
		start, end = end, start
	}

	return models.TimeWindow{
		Oldest: start.Unix(),
		Latest: end.AddDate(0, 0, 1).Add(-time.Second).Unix(),
		Limit:  clamp(daysBetween(start, end)*perDayLimit, minLimit, maxLimit),
	}, nil
}

// daysBetween counts calendar days so DST shifts do not skew the result.
func daysBetween(start, end time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(s).Hours() / 24)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
