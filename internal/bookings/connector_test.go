package bookings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/agendmed/internal/upstream"
)

func TestHTTPConnectorMapsBooking(t *testing.T) {
	var got map[string]any
	var key string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"id":123}`))
	}))
	defer ts.Close()

	conn := NewHTTPConnector(upstream.NewClient(ts.URL, nil))
	b := sampleBooking()
	b.ID = "b-1"

	remoteID, err := conn.Save(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, "123", remoteID)
	assert.Equal(t, "b-1", key)
	assert.Equal(t, "Ana", got["name"])
	assert.Equal(t, "5511999990000", got["phone"])
	assert.Equal(t, "svc-1", got["serviceId"])
	assert.Equal(t, "tenant-1", got["userId"])
	assert.Equal(t, "2030-01-15T12:00:00Z", got["appointmentDate"])
	assert.Equal(t, "09:00", got["time"])
}
