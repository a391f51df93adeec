package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/codequiz/internal/assignment"
	"github.com/abhisek/codequiz/internal/evaluator"
	"github.com/abhisek/codequiz/internal/progress"
	"github.com/abhisek/codequiz/internal/question"
	"github.com/abhisek/codequiz/internal/questiongen"
	"github.com/abhisek/codequiz/internal/quiz"
	"github.com/abhisek/codequiz/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router http.Handler
	auth   *Authenticator
	store  *store.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s, err := store.Open(store.DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	auth, err := NewAuthenticator("test-secret")
	require.NoError(t, err)

	eval := evaluator.New(nil, nil, s.QuestionRepo(), evaluator.DefaultConfig(), nil)
	gen := questiongen.New(nil, s.QuestionRepo(), nil, questiongen.DefaultConfig(), nil)
	tracker := progress.New(s.ProgressRepo(), s.QuizRepo(), s.LeaderboardRepo())

	router := NewRouter(Deps{
		Quizzes: quiz.New(quiz.Deps{
			Catalog:   s.CatalogRepo(),
			Questions: s.QuestionRepo(),
			Quizzes:   s.QuizRepo(),
			Evaluator: eval,
			Generator: gen,
			Progress:  tracker,
		}, quiz.DefaultConfig()),
		Assignments: assignment.New(assignment.Deps{
			Catalog:     s.CatalogRepo(),
			Questions:   s.QuestionRepo(),
			Quizzes:     s.QuizRepo(),
			Assignments: s.AssignmentRepo(),
			Evaluator:   eval,
			Generator:   gen,
			Progress:    tracker,
		}, assignment.DefaultConfig()),
		Progress:  tracker,
		Generator: gen,
		Catalog:   s.CatalogRepo(),
		Auth:      auth,
	})
	return &testServer{router: router, auth: auth, store: s}
}

func (ts *testServer) seedMCQ(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		q := &question.MCQ{
			Meta:    question.Meta{Language: "python", Level: "beginner", Text: fmt.Sprintf("Question %d?", i)},
			Options: [4]string{"yes", "no", "maybe", "never"},
			Correct: question.OptionA,
		}
		require.NoError(t, ts.store.QuestionRepo().CreateQuestion(context.Background(), q))
	}
}

func (ts *testServer) do(t *testing.T, user, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		token, err := ts.auth.Issue(user, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	w, body := ts.do(t, "", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])

	w, _ = ts.do(t, "", http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "codequiz_")
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	w, body := ts.do(t, "", http.MethodGet, "/api/v1/quizzes", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", body["reason"])

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quizzes", nil)
	req.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other, _ := NewAuthenticator("other-secret")
	forged, err := other.Issue("mallory", time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/quizzes", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticator(t *testing.T) {
	a, err := NewAuthenticator("s3cret")
	require.NoError(t, err)

	token, err := a.Issue("ada", time.Minute)
	require.NoError(t, err)
	user, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "ada", user)

	a.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = a.Verify(token)
	assert.Error(t, err, "expired")

	_, err = a.Issue("", time.Minute)
	assert.Error(t, err)
	_, err = NewAuthenticator("")
	assert.Error(t, err)
}

func TestQuizFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.seedMCQ(t, 2)

	w, body := ts.do(t, "ada", http.MethodPost, "/api/v1/quizzes", gin.H{"language": "python", "level": "beginner", "num_questions": 5})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	quizID := int64(body["quiz"].(map[string]any)["id"].(float64))
	assert.Contains(t, body["note"], "Only 2 questions available")

	for i := 0; i < 2; i++ {
		w, body = ts.do(t, "ada", http.MethodGet, fmt.Sprintf("/api/v1/quizzes/%d/next", quizID), nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		q := body["question"].(map[string]any)
		assert.Equal(t, "mcq", q["question_type"])
		assert.NotContains(t, q, "Correct")

		answer := gin.H{"question_type": "mcq", "question_id": q["id"], "answer": "A", "time_taken": 4.5}
		w, body = ts.do(t, "ada", http.MethodPost, fmt.Sprintf("/api/v1/quizzes/%d/answers", quizID), answer)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, true, body["is_correct"])
		assert.Equal(t, "Correct Answer", body["feedback"])
		assert.Equal(t, i == 1, body["completed"])

		if i == 0 {
			w, body = ts.do(t, "ada", http.MethodPost, fmt.Sprintf("/api/v1/quizzes/%d/answers", quizID), answer)
			assert.Equal(t, http.StatusConflict, w.Code)
			assert.Equal(t, "already_answered", body["reason"])
		}
	}

	w, body = ts.do(t, "ada", http.MethodPost, fmt.Sprintf("/api/v1/quizzes/%d/complete", quizID), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "quiz_completed", body["reason"])

	w, body = ts.do(t, "ada", http.MethodGet, fmt.Sprintf("/api/v1/quizzes/%d", quizID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["responses"], 2)
	assert.Equal(t, 100.0, body["score_percentage"])

	w, body = ts.do(t, "bob", http.MethodGet, fmt.Sprintf("/api/v1/quizzes/%d", quizID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "quiz_not_found", body["reason"])

	w, body = ts.do(t, "ada", http.MethodGet, "/api/v1/progress", nil)
	require.Equal(t, http.StatusOK, w.Code)
	prog := body["progress"].(map[string]any)
	assert.Equal(t, 2.0, prog["total_attempts"])
	assert.Equal(t, 4.5, prog["average_time"])

	w, body = ts.do(t, "ada", http.MethodGet, "/api/v1/leaderboard?period=week", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["quiz_leaderboard"], 1)
}

func TestRequestErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		reason string
	}{
		{"unknown language", http.MethodPost, "/api/v1/quizzes", gin.H{"language": "cobol", "level": "beginner"}, http.StatusNotFound, "language_not_found"},
		{"missing fields", http.MethodPost, "/api/v1/quizzes", gin.H{"language": "python"}, http.StatusBadRequest, "validation"},
		{"empty bank", http.MethodPost, "/api/v1/quizzes", gin.H{"language": "python", "level": "beginner"}, http.StatusNotFound, "no_questions_available"},
		{"bad id", http.MethodGet, "/api/v1/quizzes/abc/next", nil, http.StatusBadRequest, "invalid_id"},
		{"bad question type", http.MethodPost, "/api/v1/quizzes/1/answers", gin.H{"question_type": "essay", "question_id": 1}, http.StatusBadRequest, "invalid_question_type"},
		{"bad period", http.MethodGet, "/api/v1/leaderboard?period=decade", nil, http.StatusBadRequest, "invalid_period"},
		{"bad limit", http.MethodGet, "/api/v1/leaderboard?limit=0", nil, http.StatusBadRequest, "invalid_limit"},
		{"missing friend", http.MethodGet, "/api/v1/progress/compare/ghost", nil, http.StatusNotFound, "friend_not_found"},
		{"generation for unknown level", http.MethodPost, "/api/v1/questions/generate", gin.H{"question_type": "theory", "language": "python", "level": "wizard"}, http.StatusNotFound, "level_not_found"},
		{"generation unavailable", http.MethodPost, "/api/v1/questions/generate", gin.H{"question_type": "theory", "language": "python", "level": "beginner"}, http.StatusServiceUnavailable, "generation_failed"},
		{"assignment unavailable", http.MethodPost, "/api/v1/assignments", gin.H{"language": "python", "level": "beginner"}, http.StatusServiceUnavailable, "assignment_generation_failed"},
		{"missing assignment", http.MethodGet, "/api/v1/assignments/42", nil, http.StatusNotFound, "assignment_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := ts.do(t, "ada", tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.reason, body["reason"])
		})
	}
}

func TestGenerateFallsBackToBank(t *testing.T) {
	ts := newTestServer(t)
	ts.seedMCQ(t, 1)

	w, body := ts.do(t, "ada", http.MethodPost, "/api/v1/questions/generate", gin.H{"question_type": "multiple_choice", "language": "Python", "level": "beginner"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	qs := body["questions"].([]any)
	require.Len(t, qs, 1)
	g := qs[0].(map[string]any)
	assert.Equal(t, "random", g["source"])
	assert.NotEmpty(t, g["warnings"])
}

func TestAssignmentList(t *testing.T) {
	ts := newTestServer(t)
	w, body := ts.do(t, "ada", http.MethodGet, "/api/v1/assignments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, body["assignments"])
}
