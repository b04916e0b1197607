package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chatbot/services", r.URL.Path)
		assert.Equal(t, "tenant-1", r.URL.Query().Get("userId"))
		_, _ = w.Write([]byte(`[{"id":7,"name":"Limpeza","duration":30,"price":100},{"id":"abc","name":"Clareamento","duration":60,"price":150.5}]`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, nil)
	services, err := c.Services(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, FlexibleID("7"), services[0].ID)
	assert.Equal(t, "abc", services[1].ID.String())
	assert.Equal(t, 150.5, services[1].Price)
}

func TestBlockedAndWorkingTimes(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/schedule/get-appointments":
			assert.Equal(t, "2030-01-15", r.URL.Query().Get("date"))
			_, _ = w.Write([]byte(`["09:00"]`))
		case "/api/chatbot/user-times":
			_, _ = w.Write([]byte(`{"times":["08:00","09:00","13:00"]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	c := NewClient(ts.URL+"/", nil)
	blocked, err := c.BlockedTimes(context.Background(), "t", "2030-01-15")
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00"}, blocked)

	times, err := c.WorkingTimes(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, []string{"08:00", "09:00", "13:00"}, times)
}

func TestSaveAppointmentSendsIdempotencyKey(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "booking-1", r.Header.Get("Idempotency-Key"))
		var body SaveAppointmentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "svc-1", body.ServiceID)
		assert.Equal(t, "10:00", body.Time)
		_, _ = w.Write([]byte(`{"id":"remote-42"}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, nil)
	id, err := c.SaveAppointment(context.Background(), SaveAppointmentRequest{ServiceID: "svc-1", Time: "10:00"}, "booking-1")
	require.NoError(t, err)
	assert.Equal(t, "remote-42", id)
}

func TestNon2xxReturnsStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, nil)
	_, err := c.Services(context.Background(), "t")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestTimeoutIsAnError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer ts.Close()

	c := NewClient(ts.URL, nil, WithTimeout(20*time.Millisecond))
	_, err := c.WorkingTimes(context.Background(), "t")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestMissingBaseURL(t *testing.T) {
	c := NewClient("", nil)
	_, err := c.Services(context.Background(), "t")
	require.Error(t, err)
}

func TestOversizedResponseIsRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"times":["` + strings.Repeat("0", 4096) + `"]}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, nil, WithMaxResponseBytes(1024))
	_, err := c.WorkingTimes(context.Background(), "t")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResponseTooLarge)

	small := NewClient(ts.URL, nil, WithMaxResponseBytes(8192))
	times, err := small.WorkingTimes(context.Background(), "t")
	require.NoError(t, err)
	assert.Len(t, times, 1)
}
