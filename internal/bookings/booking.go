// Package bookings persists confirmed bookings locally and in the tenant system.
package bookings

import (
	"errors"
	"time"

	"github.com/wolfman30/agendmed/internal/availability"
	"github.com/wolfman30/agendmed/internal/catalog"
)

var (
	// ErrNotFound is returned when a booking does not exist for the caller.
	ErrNotFound = errors.New("bookings: not found")
	// ErrRemoteSave means the tenant API did not accept the booking; a retry is queued.
	ErrRemoteSave = errors.New("bookings: remote save failed")
)

type Status string

const (
	StatusPending      Status = "pending"
	StatusSaved        Status = "saved"
	StatusPendingRetry Status = "pending_retry"
	StatusCancelled    Status = "cancelled"
)

// ConfirmedBooking is the finalized record produced by an affirmative confirmation.
type ConfirmedBooking struct {
	ID            string                  `json:"id"`
	CallerID      string                  `json:"caller_id"`
	CallerName    string                  `json:"caller_name"`
	TenantID      string                  `json:"tenant_id"`
	Service       catalog.ServiceOffering `json:"service"`
	Date          string                  `json:"date"`
	Time          string                  `json:"time"`
	Period        availability.Period     `json:"period"`
	Price         float64                 `json:"price"`
	AppointmentAt time.Time               `json:"appointment_at"`
	CreatedAt     time.Time               `json:"created_at"`
	RemoteID      string                  `json:"remote_id,omitempty"`
	Status        Status                  `json:"status"`
}
