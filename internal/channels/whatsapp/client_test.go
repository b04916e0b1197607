package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendText(t *testing.T) {
	var received SendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/PHONE_ID/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test_token" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatal(err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.out1"}]}`))
	}))
	defer server.Close()

	client := NewClient("test_token", "PHONE_ID")
	client.SetGraphAPIBase(server.URL)

	resp, err := client.SendText(context.Background(), "5511999990000", "Olá!")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].ID != "wamid.out1" {
		t.Errorf("unexpected response %+v", resp)
	}
	if received.MessagingProduct != "whatsapp" || received.Type != "text" {
		t.Errorf("unexpected request %+v", received)
	}
	if received.To != "5511999990000" || received.Text == nil || received.Text.Body != "Olá!" {
		t.Errorf("unexpected text payload %+v", received.Text)
	}
}

func TestSendList(t *testing.T) {
	var received SendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.out2"}]}`))
	}))
	defer server.Close()

	client := NewClient("token", "PHONE_ID")
	client.SetGraphAPIBase(server.URL)

	rows := []Row{{ID: "1", Title: "Limpeza"}, {ID: "2", Title: "Clareamento"}}
	if _, err := client.SendList(context.Background(), "5511999990000", "Escolha", "Ver opções", rows); err != nil {
		t.Fatal(err)
	}
	if received.Interactive == nil {
		t.Fatal("expected interactive payload")
	}
	if received.Interactive.Type != "list" || received.Interactive.Action.Button != "Ver opções" {
		t.Errorf("unexpected interactive %+v", received.Interactive)
	}
	if got := len(received.Interactive.Action.Sections[0].Rows); got != 2 {
		t.Fatalf("expected 2 rows, got %d", got)
	}
}

func TestSendTextAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token","type":"OAuthException","code":190}}`))
	}))
	defer server.Close()

	client := NewClient("bad_token", "PHONE_ID")
	client.SetGraphAPIBase(server.URL)

	if _, err := client.SendText(context.Background(), "5511999990000", "test"); err == nil {
		t.Fatal("expected error for API error response")
	}
}

func TestSendTextUnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient("token", "PHONE_ID")
	client.SetGraphAPIBase(server.URL)

	if _, err := client.SendText(context.Background(), "5511999990000", "test"); err == nil {
		t.Fatal("expected error for 502")
	}
}
