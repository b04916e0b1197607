package bookings

import (
	"context"
	"time"

	"github.com/wolfman30/agendmed/internal/upstream"
)

// Connector stores a booking in the tenant system and returns its remote id.
type Connector interface {
	Save(ctx context.Context, b ConfirmedBooking) (string, error)
}

type appointmentSaver interface {
	SaveAppointment(ctx context.Context, req upstream.SaveAppointmentRequest, idempotencyKey string) (string, error)
}

// HTTPConnector posts bookings to /api/chatbot/save-appointment.
type HTTPConnector struct {
	client appointmentSaver
}

func NewHTTPConnector(client appointmentSaver) *HTTPConnector {
	if client == nil {
		panic("bookings: upstream client required")
	}
	return &HTTPConnector{client: client}
}

func (c *HTTPConnector) Save(ctx context.Context, b ConfirmedBooking) (string, error) {
	return c.client.SaveAppointment(ctx, upstream.SaveAppointmentRequest{
		Name:            b.CallerName,
		Phone:           b.CallerID,
		ServiceID:       b.Service.ID,
		UserID:          b.TenantID,
		AppointmentDate: b.AppointmentAt.UTC().Format(time.RFC3339),
		Time:            b.Time,
	}, b.ID)
}
