package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ServiceDTO is one entry of GET /api/chatbot/services.
type ServiceDTO struct {
	ID       FlexibleID `json:"id"`
	Name     string     `json:"name"`
	Duration int        `json:"duration"`
	Price    float64    `json:"price"`
}

type userTimesResponse struct {
	Times []string `json:"times"`
}

// SaveAppointmentRequest is the body of POST /api/chatbot/save-appointment.
type SaveAppointmentRequest struct {
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	ServiceID       string `json:"serviceId"`
	UserID          string `json:"userId"`
	AppointmentDate string `json:"appointmentDate"`
	Time            string `json:"time"`
}

type saveAppointmentResponse struct {
	ID FlexibleID `json:"id"`
}

// FlexibleID accepts both JSON strings and numbers. The tenant API has shipped both.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("upstream: id must be string or number: %w", err)
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*f = FlexibleID(strconv.FormatInt(i, 10))
		return nil
	}
	*f = FlexibleID(n.String())
	return nil
}

func (f FlexibleID) String() string { return string(f) }

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream: %s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}
