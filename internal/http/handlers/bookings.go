package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/agendmed/internal/bookings"
	"github.com/wolfman30/agendmed/internal/compliance"
	"github.com/wolfman30/agendmed/pkg/logging"
)

// BookingLedger is the part of bookings.Service the API reads and cancels through.
type BookingLedger interface {
	ListByCaller(ctx context.Context, callerID string) ([]bookings.ConfirmedBooking, error)
	Cancel(ctx context.Context, callerID, bookingID string) error
}

type BookingsHandler struct {
	ledger  BookingLedger
	auditor Auditor
	logger  *logging.Logger
}

func NewBookingsHandler(ledger BookingLedger, logger *logging.Logger) *BookingsHandler {
	if ledger == nil {
		panic("handlers: booking ledger cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingsHandler{ledger: ledger, logger: logger}
}

// WithAuditor records operator cancellations.
func (h *BookingsHandler) WithAuditor(a Auditor) *BookingsHandler {
	h.auditor = a
	return h
}

type bookingItem struct {
	ID            string    `json:"id"`
	RemoteID      string    `json:"remoteId,omitempty"`
	Service       string    `json:"service"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Period        string    `json:"period"`
	Price         float64   `json:"price"`
	Status        string    `json:"status"`
	AppointmentAt time.Time `json:"appointmentAt"`
	Timestamp     time.Time `json:"timestamp"`
}

// List handles GET /api/bookings/{phone}.
func (h *BookingsHandler) List(w http.ResponseWriter, r *http.Request) {
	phone := phoneParam(r)
	if phone == "" {
		jsonError(w, "invalid phone number", http.StatusBadRequest)
		return
	}
	list, err := h.ledger.ListByCaller(r.Context(), phone)
	if err != nil {
		h.logger.Error("failed to list bookings", "error", err, "caller", phone)
		jsonError(w, "failed to list bookings", http.StatusInternalServerError)
		return
	}
	items := make([]bookingItem, 0, len(list))
	for _, b := range list {
		items = append(items, bookingItem{
			ID:            b.ID,
			RemoteID:      b.RemoteID,
			Service:       b.Service.Name,
			Date:          b.Date,
			Time:          b.Time,
			Period:        string(b.Period),
			Price:         b.Price,
			Status:        string(b.Status),
			AppointmentAt: b.AppointmentAt,
			Timestamp:     b.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"phoneNumber": phone,
		"total":       len(items),
		"bookings":    items,
	})
}

// Cancel handles DELETE /api/bookings/{phone}/{bookingID}.
func (h *BookingsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	phone := phoneParam(r)
	bookingID := strings.TrimSpace(chi.URLParam(r, "bookingID"))
	if phone == "" || bookingID == "" {
		jsonError(w, "phone number and booking id are required", http.StatusBadRequest)
		return
	}
	err := h.ledger.Cancel(r.Context(), phone, bookingID)
	if errors.Is(err, bookings.ErrNotFound) {
		jsonError(w, "booking not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to cancel booking", "error", err, "caller", phone, "booking_id", bookingID)
		jsonError(w, "failed to cancel booking", http.StatusInternalServerError)
		return
	}
	audit(r, h.auditor, h.logger, compliance.AuditEvent{
		EventType: compliance.EventBookingCancelled,
		CallerID:  phone,
		Details:   compliance.Details(map[string]string{"booking_id": bookingID}),
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "booking cancelled"})
}
