// Package main runs end-to-end scenarios of the booking conversation against a
// running API. Inbound messages go through /webhooks/messages and replies are
// read back from the admin transcript endpoint.
//
// Scenarios:
//   - greeting shows the menu
//   - hours and services info replies
//   - full booking (service, period, date, time, confirmation)
//   - cancelling an in-progress booking
//   - attendant handoff
//
// Usage:
//
//	ADMIN_JWT_SECRET=... API_BASE_URL=... go run ./scripts/e2e              # runs all
//	ADMIN_JWT_SECRET=... API_BASE_URL=... go run ./scripts/e2e full-booking # runs one
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
)

const (
	testPhone    = "5500000000042"
	contactName  = "E2E"
	maxWait      = 20 * time.Second
	pollInterval = 500 * time.Millisecond
)

var (
	apiBase string
	token   string
	client  = &http.Client{Timeout: 10 * time.Second}
)

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed int
	failed int
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...any) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

type transcriptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func adminRequest(method, path string) (*http.Response, error) {
	req, err := http.NewRequest(method, apiBase+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}

// reset clears the caller's transcript and any in-progress session.
func reset() error {
	for _, path := range []string{"/api/whatsapp/conversation/" + testPhone, "/api/sessions/" + testPhone} {
		resp, err := adminRequest(http.MethodDelete, path)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("reset %s returned %d", path, resp.StatusCode)
		}
	}
	return nil
}

func send(text string) error {
	body, _ := json.Marshal(map[string]string{
		"phoneNumber": testPhone,
		"contactName": contactName,
		"message":     text,
		"messageId":   fmt.Sprintf("e2e-%d", time.Now().UnixNano()),
	})
	resp, err := client.Post(apiBase+"/webhooks/messages", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(data))
	}
	return nil
}

func transcript() ([]transcriptMessage, error) {
	resp, err := adminRequest(http.MethodGet, "/api/whatsapp/conversation/"+testPhone+"?limit=0")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out struct {
		Conversation []transcriptMessage `json:"conversation"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Conversation, nil
}

// exchange sends text and waits for the next bot reply.
func exchange(text string) (string, error) {
	before, err := transcript()
	if err != nil {
		return "", err
	}
	if err := send(text); err != nil {
		return "", err
	}
	deadline := time.Now().Add(maxWait)
	for time.Now().Before(deadline) {
		time.Sleep(pollInterval)
		msgs, err := transcript()
		if err != nil {
			continue
		}
		for i := len(before); i < len(msgs); i++ {
			if msgs[i].Role == "bot" {
				return msgs[i].Content, nil
			}
		}
	}
	return "", fmt.Errorf("no reply to %q after %s", text, maxWait)
}

func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

func scenarios() []scenario {
	return []scenario{
		{Name: "greeting", Fn: func(t *T) {
			reply, err := exchange("oi")
			if err != nil {
				t.fatalf("%v", err)
				return
			}
			t.check("greets by name", strings.Contains(reply, contactName))
			t.check("shows menu", containsAny(reply, "Menu de opções"))
		}},
		{Name: "info-replies", Fn: func(t *T) {
			reply, err := exchange("2")
			if err != nil {
				t.fatalf("%v", err)
				return
			}
			t.check("hours reply", containsAny(reply, "Horários"))

			reply, err = exchange("3")
			if err != nil {
				t.fatalf("%v", err)
				return
			}
			t.check("services reply", containsAny(reply, "Serviços", "serviços"))
		}},
		{Name: "full-booking", Fn: func(t *T) {
			steps := []struct {
				input  string
				expect []string
			}{
				{"agendar", []string{"Serviços Disponíveis", "serviço"}},
				{"1", []string{"Serviço selecionado"}},
				{"1", []string{"Período selecionado"}},
				{time.Now().AddDate(0, 0, 7).Format("02/01/2006"), []string{"Data selecionada", "não há horários"}},
			}
			for _, step := range steps {
				reply, err := exchange(step.input)
				if err != nil {
					t.fatalf("%v", err)
					return
				}
				t.check(fmt.Sprintf("reply to %q", step.input), containsAny(reply, step.expect...))
				if containsAny(reply, "não há horários") {
					fmt.Println("    SKIP: no free morning slots a week from now")
					return
				}
			}
			reply, err := exchange("1")
			if err != nil {
				t.fatalf("%v", err)
				return
			}
			t.check("summary shown", containsAny(reply, "Resumo do Agendamento"))
			reply, err = exchange("sim")
			if err != nil {
				t.fatalf("%v", err)
				return
			}
			t.check("booking confirmed", containsAny(reply, "Agendamento Confirmado"))
		}},
		{Name: "cancel-in-progress", Fn: func(t *T) {
			if _, err := exchange("agendar"); err != nil {
				t.fatalf("%v", err)
				return
			}
			reply, err := exchange("cancelar")
			if err != nil {
				t.fatalf("%v", err)
				return
			}
			t.check("cancel acknowledged", containsAny(reply, "cancelado"))
		}},
		{Name: "attendant", Fn: func(t *T) {
			reply, err := exchange("4")
			if err != nil {
				t.fatalf("%v", err)
				return
			}
			t.check("handoff reply", containsAny(reply, "atendente"))
		}},
	}
}

func adminToken(secret string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   "e2e",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func main() {
	_ = godotenv.Load()

	apiBase = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	if apiBase == "" {
		apiBase = "http://localhost:3001"
	}
	secret := os.Getenv("ADMIN_JWT_SECRET")
	if secret == "" {
		fmt.Println("ADMIN_JWT_SECRET is required")
		os.Exit(2)
	}
	var err error
	if token, err = adminToken(secret); err != nil {
		fmt.Printf("sign admin token: %v\n", err)
		os.Exit(2)
	}

	only := ""
	if len(os.Args) > 1 {
		only = os.Args[1]
	}

	var passed, failed int
	for _, sc := range scenarios() {
		if only != "" && sc.Name != only {
			continue
		}
		fmt.Printf("=== %s\n", sc.Name)
		if err := reset(); err != nil {
			fmt.Printf("    FATAL: reset: %v\n", err)
			failed++
			continue
		}
		t := &T{}
		sc.Fn(t)
		passed += t.passed
		failed += t.failed
	}

	fmt.Printf("\n%d passed, %d failed\n", passed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
