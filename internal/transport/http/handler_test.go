package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"math-problem-service/internal/domain"
	"math-problem-service/internal/llm"
)

func TestCreateProblemDefaultsAndHidesAnswer(t *testing.T) {
	server, mock := newTestServer(llm.MockResponse{Text: validProblem})
	defer server.Close()

	resp := postJSON(t, server, "/api/math-problem", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	p, _ := body["problem"].(map[string]any)
	if p["difficulty"] != "medium" || p["problem_type"] != "mixed" {
		t.Fatalf("expected medium/mixed defaults, got %v", p)
	}
	if _, leaked := p["final_answer"]; leaked {
		t.Fatalf("answer must not be sent with the problem")
	}
	if _, leaked := p["hint"]; leaked || p["has_hint"] != true {
		t.Fatalf("hint must be withheld until revealed, got %v", p)
	}
	if acct, _ := body["account_id"].(string); !domain.IsAnonymous(acct) {
		t.Fatalf("expected minted anonymous account, got %v", body["account_id"])
	}
	if !strings.Contains(mock.Calls[0].Prompt, "PROBLEM TYPE: MIXED") {
		t.Fatalf("expected topic in prompt")
	}
}

func TestSubmitFlowStatuses(t *testing.T) {
	server, _ := newTestServer(
		llm.MockResponse{Text: validProblem},
		llm.MockResponse{Text: `{"feedback":"Great multiplying!"}`},
	)
	defer server.Close()
	sessionID := createProblem(t, server, `{"difficulty":"easy"}`)

	resp := postJSON(t, server, "/api/math-problem/submit", `{"session_id":"`+sessionID+`","user_answer":"60"}`)
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || out["is_correct"] != true || out["feedback"] != "Great multiplying!" {
		t.Fatalf("unexpected submit response %d %v", resp.StatusCode, out)
	}
	if out["correct_answer"] != float64(60) || out["total_score"] != float64(1) {
		t.Fatalf("unexpected score fields %v", out)
	}

	resp = postJSON(t, server, "/api/math-problem/submit", `{"session_id":"`+sessionID+`","user_answer":1}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on second submit, got %d", resp.StatusCode)
	}

	resp = postJSON(t, server, "/api/math-problem/submit", `{"session_id":"nope","user_answer":1}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", resp.StatusCode)
	}
}

func TestBadRequests(t *testing.T) {
	server, mock := newTestServer()
	defer server.Close()

	cases := []struct {
		path string
		body string
	}{
		{"/api/math-problem", `{"difficulty":"expert"}`},
		{"/api/math-problem", `{"problem_type":"geometry"}`},
		{"/api/math-problem", `{not json`},
		{"/api/math-problem/submit", `{"user_answer":5}`},
		{"/api/math-problem/submit", `{"session_id":"x"}`},
		{"/api/math-problem/submit", `{"session_id":"x","user_answer":"five"}`},
		{"/api/math-problem/submit", `{"session_id":"x","user_answer":true}`},
	}
	for _, tc := range cases {
		resp := postJSON(t, server, tc.path, tc.body)
		var out map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest || out["success"] != false {
			t.Fatalf("%s %s: expected 400 envelope, got %d %v", tc.path, tc.body, resp.StatusCode, out)
		}
	}
	if mock.CallCount() != 0 {
		t.Fatalf("provider must not be called for bad input")
	}
}

func TestProviderFailureIsBadGateway(t *testing.T) {
	server, _ := newTestServer(llm.MockResponse{Text: `{"problem_text":"x","final_answer":"5"}`})
	defer server.Close()

	resp := postJSON(t, server, "/api/math-problem", `{}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}

	resp, err := http.Get(server.URL + "/api/history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var out struct {
		History []domain.HistoryEntry `json:"history"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	resp.Body.Close()
	if len(out.History) != 0 {
		t.Fatalf("failed generation must not be persisted, got %d", len(out.History))
	}
}

func TestHistoryScoreAndLeaderboard(t *testing.T) {
	server, _ := newTestServer(
		llm.MockResponse{Text: validProblem}, llm.MockResponse{Text: "ok"},
		llm.MockResponse{Text: validProblem},
	)
	defer server.Close()
	first := createProblem(t, server, `{"difficulty":"medium","account_id":"kid"}`)
	second := createProblem(t, server, `{}`)
	resp := postJSON(t, server, "/api/math-problem/"+first+"/hint", "")
	resp.Body.Close()
	resp = postJSON(t, server, "/api/math-problem/submit", `{"session_id":"`+first+`","user_answer":60}`)
	resp.Body.Close()

	resp, err := http.Get(server.URL + "/api/history?limit=5")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var history struct {
		Success bool                  `json:"success"`
		History []domain.HistoryEntry `json:"history"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&history)
	resp.Body.Close()
	if len(history.History) != 2 || history.History[0].Session.ID != second || history.History[1].Submission == nil {
		t.Fatalf("unexpected history %+v", history)
	}

	resp, _ = http.Get(server.URL + "/api/score?account_id=kid")
	var score struct {
		Score domain.ScoreAccount `json:"score"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&score)
	resp.Body.Close()
	if score.Score.Total != 1 || score.Score.Attempts != 1 {
		t.Fatalf("unexpected score %+v", score.Score)
	}

	resp, _ = http.Get(server.URL + "/api/leaderboard")
	var board struct {
		Leaderboard []domain.ScoreAccount `json:"leaderboard"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&board)
	resp.Body.Close()
	if len(board.Leaderboard) != 1 || board.Leaderboard[0].AccountID != "kid" {
		t.Fatalf("unexpected leaderboard %+v", board.Leaderboard)
	}

	resp, _ = http.Get(server.URL + "/api/score")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing account_id, got %d", resp.StatusCode)
	}

	resp, _ = http.Get(server.URL + "/api/history?limit=abc")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", resp.StatusCode)
	}
}

func TestRevealHintEndpoint(t *testing.T) {
	server, _ := newTestServer(
		llm.MockResponse{Text: validProblem}, llm.MockResponse{Text: "ok"},
		llm.MockResponse{Text: validProblem}, llm.MockResponse{Text: "ok"},
	)
	defer server.Close()
	hinted := createProblem(t, server, `{"difficulty":"hard"}`)
	plain := createProblem(t, server, `{"difficulty":"hard"}`)

	resp := postJSON(t, server, "/api/math-problem/"+hinted+"/hint", "")
	var reveal map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&reveal)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || reveal["hint"] != "Multiply" {
		t.Fatalf("unexpected reveal response %d %v", resp.StatusCode, reveal)
	}

	// A client claiming no hint use is ignored; the recorded reveal decides.
	resp = postJSON(t, server, "/api/math-problem/submit", `{"session_id":"`+hinted+`","user_answer":60,"hint_used":false}`)
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	resp.Body.Close()
	if out["hint_used"] != true || out["score_delta"] != float64(2) {
		t.Fatalf("expected hint-assisted hard score, got %v", out)
	}

	// A client claiming hint use without a reveal is ignored too.
	resp = postJSON(t, server, "/api/math-problem/submit", `{"session_id":"`+plain+`","user_answer":60,"hint_used":true}`)
	out = nil
	_ = json.NewDecoder(resp.Body).Decode(&out)
	resp.Body.Close()
	if out["hint_used"] != false || out["score_delta"] != float64(3) {
		t.Fatalf("expected full hard score, got %v", out)
	}

	resp = postJSON(t, server, "/api/math-problem/missing/hint", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", resp.StatusCode)
	}
}

func TestAnonymousVisitorsGetSeparateScores(t *testing.T) {
	server, _ := newTestServer(
		llm.MockResponse{Text: validProblem}, llm.MockResponse{Text: "ok"},
		llm.MockResponse{Text: validProblem}, llm.MockResponse{Text: "ok"},
	)
	defer server.Close()

	var accounts []string
	for _, difficulty := range []string{"easy", "hard"} {
		id := createProblem(t, server, `{"difficulty":"`+difficulty+`"}`)
		resp := postJSON(t, server, "/api/math-problem/submit", `{"session_id":"`+id+`","user_answer":60}`)
		var out map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		acct, _ := out["account_id"].(string)
		accounts = append(accounts, acct)
	}
	if accounts[0] == accounts[1] || !domain.IsAnonymous(accounts[0]) {
		t.Fatalf("expected two distinct anonymous accounts, got %v", accounts)
	}

	for i, want := range []int{1, 3} {
		resp, err := http.Get(server.URL + "/api/score?account_id=" + accounts[i])
		if err != nil {
			t.Fatalf("score: %v", err)
		}
		var score struct {
			Score domain.ScoreAccount `json:"score"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&score)
		resp.Body.Close()
		if score.Score.Total != want {
			t.Fatalf("account %s: expected total %d, got %+v", accounts[i], want, score.Score)
		}
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("%w: x", domain.ErrInvalidInput):                                             http.StatusBadRequest,
		fmt.Errorf("%w: x", domain.ErrSessionNotFound):                                          http.StatusNotFound,
		fmt.Errorf("%w: x", domain.ErrAlreadySubmitted):                                         http.StatusConflict,
		fmt.Errorf("%w: %w", domain.ErrProblemGenerationFailed, domain.ErrInvalidProblemFormat): http.StatusBadGateway,
		fmt.Errorf("%w: x", domain.ErrProviderTimeout):                                          http.StatusBadGateway,
		fmt.Errorf("%w: x", domain.ErrPersistence):                                              http.StatusInternalServerError,
		errors.New("boom"): http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := StatusFor(err); got != want {
			t.Fatalf("StatusFor(%v) = %d, want %d", err, got, want)
		}
	}
}
