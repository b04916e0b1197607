package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/agendmed/internal/availability"
	"github.com/wolfman30/agendmed/internal/catalog"
	"github.com/wolfman30/agendmed/internal/events"
	"github.com/wolfman30/agendmed/internal/observability/metrics"
	"github.com/wolfman30/agendmed/pkg/logging"
)

var bookingsTracer = otel.Tracer("agendmed.internal.bookings")

// Service records confirmed bookings and pushes them to the tenant system.
type Service struct {
	repo      Repository
	connector Connector
	outbox    events.Outbox
	publisher events.Publisher
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	now       func() time.Time
}

type ServiceOption func(*Service)

func WithMetrics(m *metrics.BookingMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func WithPublisher(p events.Publisher) ServiceOption {
	return func(s *Service) { s.publisher = p }
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a bookings service.
func NewService(repo Repository, connector Connector, outbox events.Outbox, logger *logging.Logger, opts ...ServiceOption) *Service {
	if repo == nil {
		panic("bookings: repository required")
	}
	if connector == nil {
		panic("bookings: connector required")
	}
	if outbox == nil {
		panic("bookings: outbox required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		repo:      repo,
		connector: connector,
		outbox:    outbox,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save records b in the ledger and attempts the remote save. When the remote
// save fails the booking is queued for retry and an error wrapping
// ErrRemoteSave is returned alongside the recorded booking.
func (s *Service) Save(ctx context.Context, b ConfirmedBooking) (ConfirmedBooking, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.save")
	defer span.End()

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now().UTC()
	}
	b.Status = StatusPending
	span.SetAttributes(
		attribute.String("agendmed.booking_id", b.ID),
		attribute.String("agendmed.tenant_id", b.TenantID),
	)

	if err := s.repo.Create(ctx, b); err != nil {
		// The ledger is a local copy; the remote save is still attempted.
		span.RecordError(err)
		s.logger.Error("failed to record booking", "booking_id", b.ID, "caller", b.CallerID, "error", err)
	}

	remoteID, err := s.connector.Save(ctx, b)
	if err != nil {
		span.RecordError(err)
		b.Status = StatusPendingRetry
		s.deferSave(ctx, b, err)
		s.metrics.ObservePersistence("deferred")
		return b, fmt.Errorf("%w: %v", ErrRemoteSave, err)
	}

	b.RemoteID = remoteID
	b.Status = StatusSaved
	if err := s.repo.SetRemoteID(ctx, b.ID, remoteID); err != nil {
		s.logger.Error("failed to store remote booking id", "booking_id", b.ID, "remote_id", remoteID, "error", err)
	}
	s.metrics.ObservePersistence("saved")
	s.logger.Info("booking saved", "booking_id", b.ID, "remote_id", remoteID, "tenant_id", b.TenantID, "caller", b.CallerID)
	s.publishConfirmed(ctx, b)
	return b, nil
}

func (s *Service) deferSave(ctx context.Context, b ConfirmedBooking, cause error) {
	s.logger.Warn("remote booking save failed, queueing retry", "booking_id", b.ID, "tenant_id", b.TenantID, "error", cause)
	if err := s.repo.SetStatus(ctx, b.ID, StatusPendingRetry); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Error("failed to mark booking pending retry", "booking_id", b.ID, "error", err)
	}
	evt := events.BookingSaveRequestedV1{
		BookingID:     b.ID,
		TenantID:      b.TenantID,
		CallerID:      b.CallerID,
		CallerName:    b.CallerName,
		ServiceID:     b.Service.ID,
		ServiceName:   b.Service.Name,
		Price:         b.Price,
		Period:        string(b.Period),
		Date:          b.Date,
		Time:          b.Time,
		AppointmentAt: b.AppointmentAt,
		RequestedAt:   s.now().UTC(),
	}
	if _, err := s.outbox.Insert(ctx, b.TenantID, evt); err != nil {
		s.logger.Error("failed to queue booking retry", "booking_id", b.ID, "error", err)
	}
}

func (s *Service) publishConfirmed(ctx context.Context, b ConfirmedBooking) {
	if s.publisher == nil {
		return
	}
	evt := events.BookingConfirmedV1{
		BookingID:     b.ID,
		RemoteID:      b.RemoteID,
		TenantID:      b.TenantID,
		CallerID:      b.CallerID,
		ServiceID:     b.Service.ID,
		ServiceName:   b.Service.Name,
		Price:         b.Price,
		Period:        string(b.Period),
		AppointmentAt: b.AppointmentAt,
		ConfirmedAt:   s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, b.CallerID, evt); err != nil {
		s.logger.Warn("failed to publish booking confirmed", "booking_id", b.ID, "error", err)
	}
}

// ListByCaller returns the caller's non-cancelled bookings.
func (s *Service) ListByCaller(ctx context.Context, callerID string) ([]ConfirmedBooking, error) {
	return s.repo.ListByCaller(ctx, callerID)
}

// Cancel marks a caller's booking cancelled in the ledger. A queued retry for
// it becomes a no-op.
func (s *Service) Cancel(ctx context.Context, callerID, bookingID string) error {
	if err := s.repo.Cancel(ctx, callerID, bookingID); err != nil {
		return err
	}
	s.logger.Info("booking cancelled", "booking_id", bookingID, "caller", callerID)
	return nil
}

// RetryHandler replays deferred remote saves from the outbox.
func (s *Service) RetryHandler() events.DeliveryHandler {
	return &retryHandler{svc: s}
}

type retryHandler struct {
	svc *Service
}

func (h *retryHandler) Handle(ctx context.Context, entry events.OutboxEntry) error {
	var evt events.BookingSaveRequestedV1
	if err := json.Unmarshal(entry.Payload, &evt); err != nil {
		// A payload that cannot be decoded will never succeed; drop it.
		h.svc.logger.Error("invalid booking retry payload", "event_id", entry.ID, "error", err)
		return nil
	}

	if existing, err := h.svc.repo.Get(ctx, evt.BookingID); err == nil {
		if existing.Status == StatusCancelled || existing.Status == StatusSaved {
			h.svc.logger.Info("skipping booking retry", "booking_id", evt.BookingID, "status", existing.Status)
			return nil
		}
	}

	b := ConfirmedBooking{
		ID:         evt.BookingID,
		CallerID:   evt.CallerID,
		CallerName: evt.CallerName,
		TenantID:   evt.TenantID,
		Service: catalog.ServiceOffering{
			ID:    evt.ServiceID,
			Name:  evt.ServiceName,
			Price: evt.Price,
		},
		Date:          evt.Date,
		Time:          evt.Time,
		Period:        availability.Period(evt.Period),
		Price:         evt.Price,
		AppointmentAt: evt.AppointmentAt,
		Status:        StatusSaved,
	}
	remoteID, err := h.svc.connector.Save(ctx, b)
	if err != nil {
		return fmt.Errorf("bookings: retry save %s: %w", evt.BookingID, err)
	}
	b.RemoteID = remoteID
	if err := h.svc.repo.SetRemoteID(ctx, b.ID, remoteID); err != nil {
		h.svc.logger.Error("failed to store remote booking id", "booking_id", b.ID, "error", err)
	}
	if current, err := h.svc.repo.Get(ctx, b.ID); err == nil && current.Status == StatusCancelled {
		h.svc.logger.Warn("booking cancelled during retry; remote booking needs manual cancellation",
			"booking_id", b.ID, "remote_id", remoteID)
		return nil
	}
	h.svc.metrics.ObservePersistence("retried")
	h.svc.logger.Info("booking saved on retry", "booking_id", b.ID, "remote_id", remoteID, "attempt", entry.Attempts+1)
	h.svc.publishConfirmed(ctx, b)
	return nil
}
