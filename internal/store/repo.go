package store

import (
	"context"
	"time"

	"github.com/abhisek/codequiz/internal/question"
)

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit   int       // max results (0 = unlimited)
	Purpose string    // exact purpose match
	From    time.Time // timestamp >= From
	To      time.Time // timestamp <= To
}

// CatalogRepo manages the supported languages and expertise levels.
type CatalogRepo interface {
	Languages(ctx context.Context) ([]string, error)
	Levels(ctx context.Context) ([]string, error)
	HasLanguage(ctx context.Context, name string) (bool, error)
	HasLevel(ctx context.Context, name string) (bool, error)
	AddLanguage(ctx context.Context, name string) error
	AddLevel(ctx context.Context, name string) error
}

// QuestionRepo is the question bank over the three pools.
type QuestionRepo interface {
	// CreateQuestion inserts q and sets its ID and CreatedAt. Test cases
	// on a *question.Coding are not written; use AddTestCase.
	CreateQuestion(ctx context.Context, q question.Question) error

	// GetQuestion loads one question. Coding questions include their
	// test cases.
	GetQuestion(ctx context.Context, ref question.Ref) (question.Question, error)

	// CountAvailable counts questions per type for (language, level),
	// ignoring the excluded refs.
	CountAvailable(ctx context.Context, language, level string, exclude []question.Ref) (question.Counts, error)

	// SampleQuestions returns up to n distinct random questions of type t,
	// ignoring the excluded refs.
	SampleQuestions(ctx context.Context, t question.Type, language, level string, exclude []question.Ref, n int) ([]question.Question, error)

	AddTestCase(ctx context.Context, questionID int64, tc question.TestCase) (question.TestCase, error)

	// BackfillTestCase stores tc for a coding question unless a backfill
	// already happened. It reports whether tc was written.
	BackfillTestCase(ctx context.Context, questionID int64, tc question.TestCase) (bool, error)
}

// StoredEmbedding is one indexed question vector.
type StoredEmbedding struct {
	QuestionID int64
	Vector     []float32
}

// SimilarMatch is a nearest-neighbour hit.
type SimilarMatch struct {
	QuestionID int64
	Similarity float64
}

// EmbeddingRepo stores question vectors for duplicate detection.
type EmbeddingRepo interface {
	UpsertEmbedding(ctx context.Context, ref question.Ref, vec []float32) error
	Embeddings(ctx context.Context, t question.Type) ([]StoredEmbedding, error)

	// NearestEmbeddings returns up to limit matches with similarity above
	// threshold, best first. It returns ErrVectorUnsupported when the
	// database has no vector index.
	NearestEmbeddings(ctx context.Context, t question.Type, vec []float32, threshold float64, limit int) ([]SimilarMatch, error)
}

// Quiz is one quiz session.
type Quiz struct {
	ID             int64      `json:"id"`
	UserID         string     `json:"user_id"`
	Language       string     `json:"language"`
	Level          string     `json:"level"`
	TotalQuestions int        `json:"total_questions"`
	Score          int        `json:"score"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at"`
}

// Completed reports whether the quiz is in its terminal state.
func (q *Quiz) Completed() bool {
	return q.CompletedAt != nil
}

// QuizResponse is one answered question of a quiz.
type QuizResponse struct {
	ID        int64        `json:"id"`
	QuizID    int64        `json:"quiz_id"`
	Ref       question.Ref `json:"question"`
	Answer    string       `json:"user_answer"`
	Correct   bool         `json:"is_correct"`
	Feedback  string       `json:"feedback,omitempty"`
	TimeTaken float64      `json:"time_taken"`
	CreatedAt time.Time    `json:"created_at"`
}

// QuizStats is a quiz with its response aggregates.
type QuizStats struct {
	Quiz
	Answered      int        `json:"answered"`
	Correct       int        `json:"correct"`
	FirstAnswerAt *time.Time `json:"first_answer_at,omitempty"`
	LastAnswerAt  *time.Time `json:"last_answer_at,omitempty"`
}

// QuizRepo persists quizzes and their responses.
type QuizRepo interface {
	CreateQuiz(ctx context.Context, q *Quiz) error
	GetQuiz(ctx context.Context, id int64) (*Quiz, error)

	// QuizResponses returns responses in insertion order.
	QuizResponses(ctx context.Context, quizID int64) ([]QuizResponse, error)

	// SubmitQuizResponse inserts r and, when the quiz is now full,
	// completes it, all in one transaction. It returns ErrCompleted for a
	// completed quiz and ErrDuplicate when r's question was already
	// answered.
	SubmitQuizResponse(ctx context.Context, r *QuizResponse) (*Quiz, error)

	// CompleteQuiz scores and completes the quiz. It returns ErrCompleted
	// if it already was.
	CompleteQuiz(ctx context.Context, id int64) (*Quiz, error)

	// SeenRefs returns every question the user answered in any quiz for
	// (language, level).
	SeenRefs(ctx context.Context, userID, language, level string) ([]question.Ref, error)

	// ListQuizzes returns the user's quizzes, newest first.
	ListQuizzes(ctx context.Context, userID string) ([]QuizStats, error)
}

// Assignment is a fixed set of questions scored in one submission.
type Assignment struct {
	ID             int64          `json:"id"`
	UserID         string         `json:"user_id"`
	Language       string         `json:"language"`
	Level          string         `json:"level"`
	TotalQuestions int            `json:"total_questions"`
	Score          int            `json:"score"`
	CreatedAt      time.Time      `json:"created_at"`
	CompletedAt    *time.Time     `json:"completed_at"`
	Questions      []question.Ref `json:"questions,omitempty"`
}

// Completed reports whether the assignment has been scored.
func (a *Assignment) Completed() bool {
	return a.CompletedAt != nil
}

// AssignmentResponse is one graded answer of an assignment.
type AssignmentResponse struct {
	ID           int64        `json:"id"`
	AssignmentID int64        `json:"assignment_id"`
	Ref          question.Ref `json:"question"`
	Answer       string       `json:"answer"`
	Correct      bool         `json:"is_correct"`
	Feedback     string       `json:"feedback,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// AssignmentRepo persists assignments and their responses.
type AssignmentRepo interface {
	// CreateAssignment inserts a and its question list.
	CreateAssignment(ctx context.Context, a *Assignment) error
	GetAssignment(ctx context.Context, id int64) (*Assignment, error)
	ListAssignments(ctx context.Context, userID string) ([]Assignment, error)
	AssignmentResponses(ctx context.Context, id int64) ([]AssignmentResponse, error)

	// SubmitAssignment inserts all responses, then scores and completes
	// the assignment in the same transaction.
	SubmitAssignment(ctx context.Context, id int64, responses []AssignmentResponse) (*Assignment, error)
}

// Progress is a user's cumulative statistics.
type Progress struct {
	UserID         string    `json:"user_id"`
	CorrectAnswers int       `json:"correct_answers"`
	TotalAttempts  int       `json:"total_attempts"`
	Accuracy       float64   `json:"accuracy"`
	AverageTime    float64   `json:"average_time"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ProgressRepo maintains UserProgress rows.
type ProgressRepo interface {
	GetProgress(ctx context.Context, userID string) (*Progress, error)

	// RecordAttempts adds attempts and correct answers in place and
	// recomputes accuracy.
	RecordAttempts(ctx context.Context, userID string, attempts, correct int) error

	// RecordTime folds seconds into the running average time.
	RecordTime(ctx context.Context, userID string, seconds float64) error
}

// LeaderboardEntry is one user's average score over completed entities.
type LeaderboardEntry struct {
	UserID       string  `json:"user_id"`
	AverageScore float64 `json:"average_score"`
	Count        int     `json:"count"`
}

// QuizRanking is one completed quiz on the quiz leaderboard.
type QuizRanking struct {
	QuizID         int64     `json:"quiz_id"`
	UserID         string    `json:"user_id"`
	Language       string    `json:"language"`
	Level          string    `json:"level"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	CompletedAt    time.Time `json:"completed_at"`
}

// LanguageProficiency is correct/total over a user's quiz responses.
type LanguageProficiency struct {
	Language string `json:"language"`
	Correct  int    `json:"correct"`
	Total    int    `json:"total"`
}

// LeaderboardRepo answers ranking queries.
type LeaderboardRepo interface {
	// QuizAverages ranks users by average completed-quiz score since
	// the given time (zero means all time).
	QuizAverages(ctx context.Context, since time.Time, limit int) ([]LeaderboardEntry, error)
	AssignmentAverages(ctx context.Context, since time.Time, limit int) ([]LeaderboardEntry, error)

	// TopQuizzes ranks completed quizzes by score. Empty filters match
	// everything.
	TopQuizzes(ctx context.Context, language, level string, limit int) ([]QuizRanking, error)

	LanguageProficiency(ctx context.Context, userID string) ([]LanguageProficiency, error)
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// EventRepo provides append access to oracle call events.
type EventRepo interface {
	// AppendLLMRequest records an LLM API call event.
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error
}
