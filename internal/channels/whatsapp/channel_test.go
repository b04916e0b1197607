package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/agendmed/pkg/logging"
)

type graphRecorder struct {
	mu        sync.Mutex
	requests  []SendRequest
	failLists bool
}

func (g *graphRecorder) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req SendRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		g.mu.Lock()
		g.requests = append(g.requests, req)
		g.mu.Unlock()
		if req.Type == "interactive" && g.failLists {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Invalid parameter","code":100}}`))
			return
		}
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.x"}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestChannel(t *testing.T, g *graphRecorder) *Channel {
	client := NewClient("token", "PHONE_ID")
	client.SetGraphAPIBase(g.server(t).URL)
	return NewChannel(client, nil, logging.Discard())
}

func TestChannelSendNormalizesRecipient(t *testing.T) {
	g := &graphRecorder{}
	ch := newTestChannel(t, g)
	require.NoError(t, ch.Send(context.Background(), "+55 11 99999-0000", "oi"))
	require.Len(t, g.requests, 1)
	assert.Equal(t, "5511999990000", g.requests[0].To)
}

func TestChannelSendChoicesAsList(t *testing.T) {
	g := &graphRecorder{}
	ch := newTestChannel(t, g)

	out, err := ch.SendChoices(context.Background(), "5511999990000", "Escolha o serviço", []string{
		"1. Limpeza - R$ 100",
		"2. Clareamento dental completo premium - R$ 900",
	})
	require.NoError(t, err)
	assert.True(t, out.Interactive)

	require.Len(t, g.requests, 1)
	rows := g.requests[0].Interactive.Action.Sections[0].Rows
	require.Len(t, rows, 2)
	assert.Equal(t, Row{ID: "1", Title: "Limpeza - R$ 100"}, rows[0])
	assert.Equal(t, "2", rows[1].ID)
	assert.Len(t, []rune(rows[1].Title), maxRowTitle)
	assert.Equal(t, "Clareamento dental completo premium - R$ 900", rows[1].Description)
}

func TestChannelSendChoicesFallsBackForLongLists(t *testing.T) {
	g := &graphRecorder{}
	ch := newTestChannel(t, g)

	options := make([]string, 11)
	for i := range options {
		options[i] = fmt.Sprintf("%d. %02d:00", i+1, i+8)
	}
	out, err := ch.SendChoices(context.Background(), "5511999990000", "Horários", options)
	require.NoError(t, err)
	assert.False(t, out.Interactive)
	assert.Contains(t, out.FallbackReason, "11 options")

	require.Len(t, g.requests, 1)
	assert.Equal(t, "text", g.requests[0].Type)
	assert.True(t, strings.HasSuffix(g.requests[0].Text.Body, "11. 18:00"))
}

func TestChannelSendChoicesFallsBackOnListError(t *testing.T) {
	g := &graphRecorder{failLists: true}
	ch := newTestChannel(t, g)

	out, err := ch.SendChoices(context.Background(), "5511999990000", "Confirma?", []string{"sim", "não"})
	require.NoError(t, err)
	assert.False(t, out.Interactive)
	assert.Equal(t, "interactive send failed", out.FallbackReason)

	require.Len(t, g.requests, 2)
	assert.Equal(t, "interactive", g.requests[0].Type)
	assert.Equal(t, "Confirma?\n\nsim\nnão", g.requests[1].Text.Body)
}
