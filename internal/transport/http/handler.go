package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"

	"math-problem-service/internal/app"
	"math-problem-service/internal/domain"
)

const maxBodyBytes = 1 << 16

// APIHandler exposes the problem session lifecycle as JSON endpoints.
type APIHandler struct {
	service *app.ProblemService
}

func NewAPIHandler(service *app.ProblemService) *APIHandler {
	return &APIHandler{service: service}
}

// Routes registers every endpoint, including the score WebSocket, on a new mux.
func Routes(service *app.ProblemService) *http.ServeMux {
	api := NewAPIHandler(service)
	ws := NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /api/math-problem", api.CreateProblem)
	mux.HandleFunc("POST /api/math-problem/submit", api.SubmitAnswer)
	mux.HandleFunc("POST /api/math-problem/{id}/hint", api.RevealHint)
	mux.HandleFunc("GET /api/history", api.History)
	mux.HandleFunc("GET /api/score", api.Score)
	mux.HandleFunc("GET /api/leaderboard", api.Leaderboard)
	mux.HandleFunc("GET /ws/score", ws.ServeWS)
	return mux
}

type createRequest struct {
	Difficulty  string `json:"difficulty"`
	ProblemType string `json:"problem_type"`
	AccountID   string `json:"account_id"`
}

// problemView never carries the answer or the hint; the hint is fetched
// through RevealHint so its use is recorded server-side.
type problemView struct {
	ProblemText string            `json:"problem_text"`
	Difficulty  domain.Difficulty `json:"difficulty"`
	ProblemType domain.Topic      `json:"problem_type"`
	HasHint     bool              `json:"has_hint"`
}

// CreateProblem generates a new session. Absent fields default to medium/mixed;
// without account_id the session gets a fresh anonymous account.
func (h *APIHandler) CreateProblem(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, err)
		return
	}

	difficulty := domain.DifficultyMedium
	if req.Difficulty != "" {
		d, err := domain.ParseDifficulty(req.Difficulty)
		if err != nil {
			writeError(w, err)
			return
		}
		difficulty = d
	}
	topic := domain.TopicMixed
	if req.ProblemType != "" {
		t, err := domain.ParseTopic(req.ProblemType)
		if err != nil {
			writeError(w, err)
			return
		}
		topic = t
	}

	session, err := h.service.CreateSessionFor(r.Context(), req.AccountID, difficulty, topic)
	if err != nil {
		log.Printf("create problem difficulty=%s topic=%s: %v", difficulty, topic, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"session_id": session.ID,
		"account_id": session.AccountID,
		"problem": problemView{
			ProblemText: session.ProblemText,
			Difficulty:  session.Difficulty,
			ProblemType: session.Topic,
			HasHint:     session.Hint != "",
		},
	})
}

// RevealHint returns the session's hint and marks the session as hint-assisted.
func (h *APIHandler) RevealHint(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	hint, err := h.service.RevealHint(r.Context(), id)
	if err != nil {
		log.Printf("reveal hint session=%s: %v", id, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "session_id": id, "hint": hint})
}

type submitRequest struct {
	SessionID  string       `json:"session_id"`
	UserAnswer *answerValue `json:"user_answer"`
}

// answerValue accepts a JSON number or a numeric string.
type answerValue float64

func (a *answerValue) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("user_answer must be a number")
		}
		n = json.Number(strings.TrimSpace(s))
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("user_answer must be a finite number")
	}
	*a = answerValue(f)
	return nil
}

func (h *APIHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.SessionID) == "" || req.UserAnswer == nil {
		writeError(w, fmt.Errorf("%w: missing session_id or user_answer", domain.ErrInvalidInput))
		return
	}

	result, err := h.service.SubmitAnswer(r.Context(), app.SubmitRequest{
		SessionID: req.SessionID,
		Answer:    float64(*req.UserAnswer),
	})
	if err != nil {
		log.Printf("submit answer session=%s: %v", req.SessionID, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"account_id":        result.AccountID,
		"is_correct":        result.IsCorrect,
		"hint_used":         result.HintUsed,
		"feedback":          result.Feedback,
		"feedback_fallback": result.FeedbackFallback,
		"correct_answer":    result.CorrectAnswer,
		"score_delta":       result.ScoreDelta,
		"total_score":       result.TotalScore,
		"solution_steps":    result.SolutionSteps,
	})
}

func (h *APIHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := h.service.ListRecentSessions(r.Context(), limit)
	if err != nil {
		log.Printf("list history: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "history": entries})
}

func (h *APIHandler) Score(w http.ResponseWriter, r *http.Request) {
	acct, err := h.service.ScoreAccount(r.Context(), r.URL.Query().Get("account_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "score": acct})
}

func (h *APIHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	board, err := h.service.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if board == nil {
		board = []domain.ScoreAccount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "leaderboard": board})
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: limit must be an integer", domain.ErrInvalidInput)
	}
	return n, nil
}

// decodeBody reads a JSON object. With allowEmpty an empty body decodes as {}.
func decodeBody(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return fmt.Errorf("%w: malformed JSON body: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// StatusFor maps domain error kinds onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadySubmitted), errors.Is(err, domain.ErrDuplicateSubmission):
		return http.StatusConflict
	case errors.Is(err, domain.ErrProblemGenerationFailed),
		errors.Is(err, domain.ErrProviderUnavailable),
		errors.Is(err, domain.ErrProviderTimeout):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusBadGateway:
		msg = "Failed to generate problem"
	case http.StatusInternalServerError:
		msg = "Internal server error"
	}
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}
