package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/codequiz/internal/apperr"
	"github.com/abhisek/codequiz/internal/question"
	"github.com/abhisek/codequiz/internal/quiz"
)

type quizHandler struct {
	engine *quiz.Engine
	logger *slog.Logger
}

type createQuizRequest struct {
	Language     string `json:"language" binding:"required"`
	Level        string `json:"level" binding:"required"`
	NumQuestions int    `json:"num_questions"`
}

type submitAnswerRequest struct {
	QuestionType string  `json:"question_type" binding:"required"`
	QuestionID   int64   `json:"question_id" binding:"required"`
	Answer       string  `json:"answer"`
	TimeTaken    float64 `json:"time_taken"`
}

func (h *quizHandler) create(c *gin.Context) {
	var req createQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	created, err := h.engine.Create(c.Request.Context(), currentUser(c), req.Language, req.Level, req.NumQuestions)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *quizHandler) history(c *gin.Context) {
	list, err := h.engine.History(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quizzes": list})
}

func (h *quizHandler) details(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	d, err := h.engine.Details(c.Request.Context(), currentUser(c), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *quizHandler) next(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	next, err := h.engine.NextQuestion(c.Request.Context(), currentUser(c), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	body := gin.H{"quiz": next.Quiz, "answered": next.Answered, "question": nil}
	if next.Question != nil {
		body["question"] = questionJSON(next.Question)
	} else {
		body["message"] = next.Message
	}
	c.JSON(http.StatusOK, body)
}

func (h *quizHandler) answer(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req submitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	t, err := question.ParseType(req.QuestionType)
	if err != nil {
		writeError(c, h.logger, apperr.Validation("invalid_question_type", err.Error()))
		return
	}

	res, err := h.engine.SubmitAnswer(c.Request.Context(), currentUser(c), id, quiz.Answer{
		Ref:       question.Ref{Type: t, ID: req.QuestionID},
		Answer:    req.Answer,
		TimeTaken: req.TimeTaken,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"is_correct": res.Evaluation.Correct,
		"feedback":   res.Evaluation.Feedback,
		"evaluation": res.Evaluation,
		"quiz":       res.Quiz,
		"completed":  res.Completed,
	})
}

func (h *quizHandler) complete(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	q, err := h.engine.Complete(c.Request.Context(), currentUser(c), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quiz": q})
}
