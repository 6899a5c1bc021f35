package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"math-problem-service/internal/app"
	"math-problem-service/internal/infra/memory"
	"math-problem-service/internal/llm"
	"math-problem-service/internal/problem"
)

const validProblem = `{"problem_text":"Mia reads 15 pages a day for 4 days. How many pages?","final_answer":60,"hint":"Multiply","solution_steps":"15 x 4 = 60"}`

func TestWebSocketScoreFlow(t *testing.T) {
	server, _ := newTestServer(llm.MockResponse{Text: validProblem}, llm.MockResponse{Text: "Brilliant!"})
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws/score?account_id=u1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Expect the current snapshot first.
	payload := readNext(conn, t, "score")
	if payload["accountId"] != "u1" || payload["total"] != float64(0) {
		t.Fatalf("unexpected initial snapshot %v", payload)
	}

	sessionID := createProblem(t, server, `{"difficulty":"hard","problem_type":"multiplication","account_id":"u1"}`)
	resp := postJSON(t, server, "/api/math-problem/submit", `{"session_id":"`+sessionID+`","user_answer":60}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d", resp.StatusCode)
	}

	payload = readNext(conn, t, "score")
	if payload["total"] != float64(3) || payload["attempts"] != float64(1) {
		t.Fatalf("unexpected update %v", payload)
	}
}

func TestWebSocketRequiresAccount(t *testing.T) {
	server, _ := newTestServer()
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws/score"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail without account_id")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 handshake response, got %v", resp)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) map[string]any {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Payload
}

func newTestServer(responses ...llm.MockResponse) (*httptest.Server, *llm.MockProvider) {
	mock := llm.NewMockProvider(responses...)
	service := app.NewProblemService(memory.NewSessionStore(), problem.NewGenerator(llm.WithTimeout(mock, 100*time.Millisecond)), nil).
		WithLogger(log.New(io.Discard, "", 0))
	return httptest.NewServer(Routes(service)), mock
}

func createProblem(t *testing.T, server *httptest.Server, body string) string {
	t.Helper()
	resp := postJSON(t, server, "/api/math-problem", body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create status %d", resp.StatusCode)
	}
	var out struct {
		Success   bool   `json:"success"`
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	if !out.Success || out.SessionID == "" {
		t.Fatalf("unexpected create response %+v", out)
	}
	return out.SessionID
}

func postJSON(t *testing.T, server *httptest.Server, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(server.URL+path, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	return resp
}
