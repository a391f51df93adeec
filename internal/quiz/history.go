package quiz

import (
	"context"
	"math"

	"github.com/abhisek/codequiz/internal/store"
)

// Summary is a quiz with derived completion figures.
type Summary struct {
	store.QuizStats
	ScorePercentage float64 `json:"score_percentage"`
	Progress        float64 `json:"progress"`
	Remaining       int     `json:"remaining"`
}

// Details is a quiz with its responses. Duration is the seconds between
// the first and last response.
type Details struct {
	Summary
	Responses []store.QuizResponse `json:"responses"`
	Duration  float64              `json:"duration"`
}

// History lists the user's quizzes, newest first.
func (e *Engine) History(ctx context.Context, userID string) ([]Summary, error) {
	stats, err := e.Quizzes.ListQuizzes(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(stats))
	for _, s := range stats {
		out = append(out, summarize(s))
	}
	return out, nil
}

// Details returns one of the user's quizzes with its responses in the
// order they were given.
func (e *Engine) Details(ctx context.Context, userID string, quizID int64) (*Details, error) {
	q, err := e.load(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	responses, err := e.Quizzes.QuizResponses(ctx, q.ID)
	if err != nil {
		return nil, err
	}

	st := store.QuizStats{Quiz: *q, Answered: len(responses)}
	for _, r := range responses {
		if r.Correct {
			st.Correct++
		}
	}
	d := &Details{Responses: responses}
	if n := len(responses); n > 0 {
		first, last := responses[0].CreatedAt, responses[n-1].CreatedAt
		st.FirstAnswerAt, st.LastAnswerAt = &first, &last
		d.Duration = last.Sub(first).Seconds()
	}
	if d.Responses == nil {
		d.Responses = []store.QuizResponse{}
	}
	d.Summary = summarize(st)
	return d, nil
}

func summarize(s store.QuizStats) Summary {
	sum := Summary{QuizStats: s, Remaining: max(s.TotalQuestions-s.Answered, 0)}
	if s.TotalQuestions > 0 {
		sum.Progress = round2(float64(s.Answered) * 100 / float64(s.TotalQuestions))
	}
	if s.Answered > 0 {
		sum.ScorePercentage = round2(float64(s.Correct) * 100 / float64(s.Answered))
	}
	return sum
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
