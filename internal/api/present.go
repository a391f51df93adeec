package api

import (
	"github.com/abhisek/codequiz/internal/question"
)

// questionJSON adds the discriminator to a question's public fields.
// Answers and model solutions are never serialized.
func questionJSON(q question.Question) any {
	switch q := q.(type) {
	case *question.Coding:
		return struct {
			Type question.Type `json:"question_type"`
			*question.Coding
		}{q.Kind(), q}
	case *question.Theory:
		return struct {
			Type question.Type `json:"question_type"`
			*question.Theory
		}{q.Kind(), q}
	case *question.MCQ:
		return struct {
			Type question.Type `json:"question_type"`
			*question.MCQ
		}{q.Kind(), q}
	}
	return nil
}

func questionsJSON(qs []question.Question) []any {
	out := make([]any, len(qs))
	for i, q := range qs {
		out[i] = questionJSON(q)
	}
	return out
}
