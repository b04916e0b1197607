package events

import "time"

// BookingSaveRequestedV1 asks the tenant API to store a confirmed booking.
// It is written to the outbox when the synchronous save failed.
type BookingSaveRequestedV1 struct {
	BookingID     string    `json:"booking_id"`
	TenantID      string    `json:"tenant_id"`
	CallerID      string    `json:"caller_id"`
	CallerName    string    `json:"caller_name"`
	ServiceID     string    `json:"service_id"`
	ServiceName   string    `json:"service_name"`
	Price         float64   `json:"price"`
	Period        string    `json:"period"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	AppointmentAt time.Time `json:"appointment_at"`
	RequestedAt   time.Time `json:"requested_at"`
}

func (BookingSaveRequestedV1) EventType() string {
	return "booking.save.v1"
}

func (e BookingSaveRequestedV1) BookingRef() (string, string) { return e.TenantID, e.BookingID }

func (e BookingSaveRequestedV1) OccurredAt() time.Time { return e.RequestedAt }

// BookingConfirmedV1 announces a booking that the tenant API accepted.
type BookingConfirmedV1 struct {
	BookingID     string    `json:"booking_id"`
	RemoteID      string    `json:"remote_id"`
	TenantID      string    `json:"tenant_id"`
	CallerID      string    `json:"caller_id"`
	ServiceID     string    `json:"service_id"`
	ServiceName   string    `json:"service_name"`
	Price         float64   `json:"price"`
	Period        string    `json:"period"`
	AppointmentAt time.Time `json:"appointment_at"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}

func (BookingConfirmedV1) EventType() string {
	return "booking.confirmed.v1"
}

func (e BookingConfirmedV1) BookingRef() (string, string) { return e.TenantID, e.BookingID }

func (e BookingConfirmedV1) OccurredAt() time.Time { return e.ConfirmedAt }
