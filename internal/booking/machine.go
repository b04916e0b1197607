// Package booking drives the multi-turn conversation that books an appointment.
package booking

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/agendmed/internal/availability"
	"github.com/wolfman30/agendmed/internal/bookings"
	"github.com/wolfman30/agendmed/internal/catalog"
	"github.com/wolfman30/agendmed/internal/observability/metrics"
	"github.com/wolfman30/agendmed/internal/session"
	"github.com/wolfman30/agendmed/pkg/logging"
)

const defaultTimezone = "America/Sao_Paulo"

// CatalogSource returns a tenant's services, cached or freshly loaded.
type CatalogSource interface {
	Get(ctx context.Context, tenantID string) ([]catalog.ServiceOffering, error)
}

// SlotResolver returns free HH:MM slots for a date (YYYY-MM-DD) and period.
type SlotResolver interface {
	Resolve(ctx context.Context, tenantID, date string, period availability.Period) ([]string, error)
}

// Persister stores a confirmed booking. A non-nil error still returns the recorded booking.
type Persister interface {
	Save(ctx context.Context, b bookings.ConfirmedBooking) (bookings.ConfirmedBooking, error)
}

// Outcome is the result of one conversation step.
type Outcome struct {
	Reply     string
	Completed bool
	Booking   *bookings.ConfirmedBooking
	// State after the step; empty when the caller has no session.
	State session.State
	// Choices, when set, can be rendered as an interactive list by the channel.
	Choices []string
}

// Machine is the booking state machine. Every mutation for one caller runs
// under that caller's lock.
type Machine struct {
	store     session.Store
	locker    session.Locker
	catalog   CatalogSource
	slots     SlotResolver
	persister Persister
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	now       func() time.Time
	loc       *time.Location
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLocation sets the timezone used to decide what "today" is.
func WithLocation(loc *time.Location) Option {
	return func(m *Machine) {
		if loc != nil {
			m.loc = loc
		}
	}
}

func WithLocker(l session.Locker) Option {
	return func(m *Machine) {
		if l != nil {
			m.locker = l
		}
	}
}

func WithMetrics(bm *metrics.BookingMetrics) Option {
	return func(m *Machine) { m.metrics = bm }
}

func NewMachine(store session.Store, cat CatalogSource, slots SlotResolver, persister Persister, logger *logging.Logger, opts ...Option) *Machine {
	if store == nil {
		panic("booking: session store cannot be nil")
	}
	if cat == nil {
		panic("booking: catalog cannot be nil")
	}
	if slots == nil {
		panic("booking: slot resolver cannot be nil")
	}
	if persister == nil {
		panic("booking: persister cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		loc = time.UTC
	}
	m := &Machine{
		store:     store,
		locker:    session.NewLocalLocker(),
		catalog:   cat,
		slots:     slots,
		persister: persister,
		logger:    logger,
		now:       time.Now,
		loc:       loc,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Begin starts a new booking for the caller, replacing any previous session.
// No session is created when the tenant has no services or they cannot be loaded.
func (m *Machine) Begin(ctx context.Context, callerID, displayName, tenantID string) (Outcome, error) {
	unlock, err := m.locker.Lock(ctx, callerID)
	if err != nil {
		return Outcome{}, fmt.Errorf("booking: begin: %w", err)
	}
	defer unlock()

	services, err := m.catalog.Get(ctx, tenantID)
	if err != nil {
		m.logger.Warn("catalog unavailable at booking start", "caller", callerID, "tenant_id", tenantID, "error", err)
		m.metrics.ObserveSessionStart("catalog_unavailable")
		return Outcome{Reply: replyCatalogUnavailable}, nil
	}
	if len(services) == 0 {
		m.metrics.ObserveSessionStart("no_services")
		return Outcome{Reply: replyNoServices}, nil
	}

	now := m.now()
	s := &session.Session{
		CallerID:    callerID,
		DisplayName: displayName,
		TenantID:    tenantID,
		State:       session.StateAskingService,
		Services:    services,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.Put(ctx, s); err != nil {
		return Outcome{}, fmt.Errorf("booking: begin: %w", err)
	}
	m.metrics.ObserveSessionStart("started")
	m.logger.Info("booking started", "caller", callerID, "tenant_id", tenantID, "services", len(services))
	return Outcome{
		Reply:   servicesList(services),
		State:   session.StateAskingService,
		Choices: serviceChoices(services),
	}, nil
}

// Advance applies one caller input to the caller's active session.
func (m *Machine) Advance(ctx context.Context, callerID, rawText string) (Outcome, error) {
	unlock, err := m.locker.Lock(ctx, callerID)
	if err != nil {
		return Outcome{}, fmt.Errorf("booking: advance: %w", err)
	}
	defer unlock()

	s, err := m.store.Get(ctx, callerID)
	if errors.Is(err, session.ErrNotFound) {
		return Outcome{Reply: replyNotFound}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("booking: advance: %w", err)
	}
	if !s.Active() {
		return Outcome{Reply: replyNotFound}, nil
	}

	from := s.State
	var out Outcome
	switch s.State {
	case session.StateAskingService:
		out, err = m.selectService(ctx, s, rawText)
	case session.StateAskingPeriod:
		out, err = m.selectPeriod(ctx, s, rawText)
	case session.StateAskingDate:
		out, err = m.selectDate(ctx, s, rawText)
	case session.StateAskingTime:
		out, err = m.selectTime(ctx, s, rawText)
	case session.StateConfirming:
		out, err = m.confirm(ctx, s, rawText)
	default:
		return Outcome{Reply: replyNotFound}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	m.metrics.ObserveTransition(string(from), transitionResult(from, out))
	return out, nil
}

// Peek returns the caller's stored session, if any. Completed sessions are returned too.
func (m *Machine) Peek(ctx context.Context, callerID string) (*session.Session, bool, error) {
	s, err := m.store.Get(ctx, callerID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("booking: peek: %w", err)
	}
	return s, true, nil
}

// Cancel discards the caller's session.
func (m *Machine) Cancel(ctx context.Context, callerID string) error {
	unlock, err := m.locker.Lock(ctx, callerID)
	if err != nil {
		return fmt.Errorf("booking: cancel: %w", err)
	}
	defer unlock()
	if err := m.store.Delete(ctx, callerID); err != nil {
		return fmt.Errorf("booking: cancel: %w", err)
	}
	return nil
}

func (m *Machine) selectService(ctx context.Context, s *session.Session, raw string) (Outcome, error) {
	n, ok := parseIndex(raw, len(s.Services))
	if !ok {
		return stay(s, invalidIndex(len(s.Services))), nil
	}
	svc := s.Services[n-1]
	s.Service = &svc
	s.State = session.StateAskingPeriod
	if err := m.save(ctx, s); err != nil {
		return Outcome{}, err
	}
	return Outcome{Reply: periodPrompt(svc), State: s.State, Choices: periodChoices}, nil
}

func (m *Machine) selectPeriod(ctx context.Context, s *session.Session, raw string) (Outcome, error) {
	var p availability.Period
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "manhã", "manha":
		p = availability.Morning
	case "2", "tarde":
		p = availability.Afternoon
	default:
		return stay(s, replyInvalidPeriod), nil
	}
	s.Period = &p
	s.State = session.StateAskingDate
	if err := m.save(ctx, s); err != nil {
		return Outcome{}, err
	}
	return Outcome{Reply: datePrompt(p), State: s.State}, nil
}

func (m *Machine) selectDate(ctx context.Context, s *session.Session, raw string) (Outcome, error) {
	text := strings.TrimSpace(raw)
	date, reply, ok := m.parseDate(text)
	if !ok {
		return stay(s, reply), nil
	}
	period := availability.Morning
	if s.Period != nil {
		period = *s.Period
	}

	slots, err := m.slots.Resolve(ctx, s.TenantID, date.Format("2006-01-02"), period)
	if err != nil {
		m.logger.Warn("slot lookup failed", "caller", s.CallerID, "tenant_id", s.TenantID, "date", text, "error", err)
		return stay(s, replySlotsUnavailable), nil
	}
	if len(slots) == 0 {
		return stay(s, noSlots(period, text)), nil
	}

	s.Date = &text
	s.AvailableSlots = slots
	s.State = session.StateAskingTime
	if err := m.save(ctx, s); err != nil {
		return Outcome{}, err
	}
	return Outcome{Reply: slotsList(text, period, slots), State: s.State, Choices: slotChoices(slots)}, nil
}

func (m *Machine) selectTime(ctx context.Context, s *session.Session, raw string) (Outcome, error) {
	n, ok := parseIndex(raw, len(s.AvailableSlots))
	if !ok {
		return stay(s, invalidIndex(len(s.AvailableSlots))), nil
	}
	at := s.AvailableSlots[n-1]
	s.Time = &at
	s.AvailableSlots = nil
	s.State = session.StateConfirming
	if err := m.save(ctx, s); err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Reply:   summary(s.DisplayName, s.CallerID, *s.Service, *s.Date, at, *s.Period),
		State:   s.State,
		Choices: confirmChoices,
	}, nil
}

func (m *Machine) confirm(ctx context.Context, s *session.Session, raw string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sim", "s":
	case "não", "nao", "n":
		if err := m.store.Delete(ctx, s.CallerID); err != nil {
			return Outcome{}, fmt.Errorf("booking: cancel on decline: %w", err)
		}
		m.logger.Info("booking declined", "caller", s.CallerID)
		return Outcome{Reply: replyCancelled}, nil
	default:
		return stay(s, replyInvalidConfirm), nil
	}

	completedAt := m.now()
	s.State = session.StateCompleted
	s.CompletedAt = &completedAt
	if err := m.save(ctx, s); err != nil {
		return Outcome{}, err
	}

	draft := m.draftBooking(s)
	saved, saveErr := m.persister.Save(ctx, draft)
	if saved.ID != "" {
		s.BookingID = saved.ID
		if err := m.save(ctx, s); err != nil {
			m.logger.Warn("failed to attach booking id to session", "caller", s.CallerID, "booking_id", saved.ID, "error", err)
		}
	}

	out := Outcome{Completed: true, State: session.StateCompleted, Booking: &saved}
	if saveErr != nil || saved.RemoteID == "" {
		m.logger.Warn("booking confirmed but not registered", "caller", s.CallerID, "booking_id", saved.ID, "error", saveErr)
		out.Reply = confirmedUnsaved(*s.Service, *s.Date, *s.Time)
		return out, nil
	}
	m.logger.Info("booking confirmed", "caller", s.CallerID, "booking_id", saved.ID, "remote_id", saved.RemoteID)
	out.Reply = confirmedSaved(saved.RemoteID, *s.Service, *s.Date, *s.Time)
	return out, nil
}

func (m *Machine) draftBooking(s *session.Session) bookings.ConfirmedBooking {
	b := bookings.ConfirmedBooking{
		CallerID:   s.CallerID,
		CallerName: s.DisplayName,
		TenantID:   s.TenantID,
		Service:    *s.Service,
		Date:       *s.Date,
		Time:       *s.Time,
		Period:     *s.Period,
		Price:      s.Service.Price,
	}
	if at, err := time.ParseInLocation("02/01/2006 15:04", *s.Date+" "+*s.Time, m.loc); err == nil {
		b.AppointmentAt = at
	}
	return b
}

func (m *Machine) save(ctx context.Context, s *session.Session) error {
	s.UpdatedAt = m.now()
	if err := m.store.Put(ctx, s); err != nil {
		return fmt.Errorf("booking: save session: %w", err)
	}
	return nil
}

var dateFormat = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)

// parseDate validates DD/MM/YYYY as a real calendar date not before today.
func (m *Machine) parseDate(text string) (time.Time, string, bool) {
	if !dateFormat.MatchString(text) {
		return time.Time{}, replyInvalidDateFormat, false
	}
	day, _ := strconv.Atoi(text[0:2])
	month, _ := strconv.Atoi(text[3:5])
	year, _ := strconv.Atoi(text[6:10])
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, m.loc)
	if date.Day() != day || int(date.Month()) != month || date.Year() != year {
		return time.Time{}, replyInvalidDate, false
	}
	now := m.now().In(m.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, m.loc)
	if date.Before(today) {
		return time.Time{}, replyPastDate, false
	}
	return date, "", true
}

// parseIndex accepts a trimmed base-10 integer in [1, max].
func parseIndex(raw string, max int) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 || n > max {
		return 0, false
	}
	return n, true
}

func stay(s *session.Session, reply string) Outcome {
	out := Outcome{Reply: reply, State: s.State}
	switch s.State {
	case session.StateAskingService:
		out.Choices = serviceChoices(s.Services)
	case session.StateAskingTime:
		out.Choices = slotChoices(s.AvailableSlots)
	}
	return out
}

func transitionResult(from session.State, out Outcome) string {
	switch {
	case out.Completed:
		return "completed"
	case out.State == "":
		return "cancelled"
	case out.State == from:
		return "rejected"
	default:
		return "advanced"
	}
}
