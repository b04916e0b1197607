// Package availability computes bookable time slots for a tenant.
package availability

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wolfman30/agendmed/pkg/logging"
)

// ErrUnavailable marks a failed schedule fetch, as opposed to a day with no free slots.
var ErrUnavailable = errors.New("availability: schedule unavailable")

// Period is a half-day bucket used to filter slots.
type Period string

const (
	Morning   Period = "morning"
	Afternoon Period = "afternoon"
)

// Label is the caller-facing name of the period.
func (p Period) Label() string {
	switch p {
	case Morning:
		return "Manhã"
	case Afternoon:
		return "Tarde"
	default:
		return string(p)
	}
}

// hourRange is half-open: [from, to).
type hourRange struct{ from, to int }

var periodHours = map[Period]hourRange{
	Morning:   {from: 8, to: 12},
	Afternoon: {from: 12, to: 18},
}

// ScheduleSource provides the raw schedule data for a tenant.
type ScheduleSource interface {
	BlockedTimes(ctx context.Context, tenantID, date string) ([]string, error)
	WorkingTimes(ctx context.Context, tenantID string) ([]string, error)
}

type Resolver struct {
	source ScheduleSource
	logger *logging.Logger
}

func NewResolver(source ScheduleSource, logger *logging.Logger) *Resolver {
	if source == nil {
		panic("availability: schedule source cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{source: source, logger: logger}
}

// Resolve returns the tenant's configured times inside period on date
// (YYYY-MM-DD) minus the already booked ones, in configured order.
func (r *Resolver) Resolve(ctx context.Context, tenantID, date string, period Period) ([]string, error) {
	blocked, err := r.source.BlockedTimes(ctx, tenantID, date)
	if err != nil {
		r.logger.Error("failed to fetch booked times", "tenant_id", tenantID, "date", date, "error", err)
		return nil, fmt.Errorf("%w: booked times: %v", ErrUnavailable, err)
	}
	configured, err := r.source.WorkingTimes(ctx, tenantID)
	if err != nil {
		r.logger.Error("failed to fetch working times", "tenant_id", tenantID, "error", err)
		return nil, fmt.Errorf("%w: working times: %v", ErrUnavailable, err)
	}
	return RemoveBlocked(FilterByPeriod(configured, period), blocked), nil
}

// TenantHours returns the configured times without any filtering.
func (r *Resolver) TenantHours(ctx context.Context, tenantID string) ([]string, error) {
	times, err := r.source.WorkingTimes(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: working times: %v", ErrUnavailable, err)
	}
	return times, nil
}

// FilterByPeriod keeps times whose hour falls in the period's range.
// An unrecognized period keeps every well-formed time.
func FilterByPeriod(times []string, period Period) []string {
	rng, known := periodHours[period]
	out := make([]string, 0, len(times))
	for _, t := range times {
		hour, ok := parseHour(t)
		if !ok {
			continue
		}
		if known && (hour < rng.from || hour >= rng.to) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// RemoveBlocked drops every time that exactly matches an entry in blocked.
func RemoveBlocked(times, blocked []string) []string {
	taken := make(map[string]struct{}, len(blocked))
	for _, b := range blocked {
		taken[b] = struct{}{}
	}
	out := make([]string, 0, len(times))
	for _, t := range times {
		if _, ok := taken[t]; ok {
			continue
		}
		out = append(out, t)
	}
	return out
}

func parseHour(t string) (int, bool) {
	h, m, found := strings.Cut(strings.TrimSpace(t), ":")
	if !found {
		return 0, false
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}
	return hour, true
}
