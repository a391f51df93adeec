package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/codequiz/internal/apperr"
	"github.com/abhisek/codequiz/internal/question"
	"github.com/abhisek/codequiz/internal/questiongen"
	"github.com/abhisek/codequiz/internal/store"
)

// maxGenerateCount bounds one generation request.
const maxGenerateCount = 10

type questionHandler struct {
	generator *questiongen.Generator
	catalog   store.CatalogRepo
	logger    *slog.Logger
}

type generateQuestionsRequest struct {
	QuestionType string `json:"question_type" binding:"required"`
	Language     string `json:"language" binding:"required"`
	Level        string `json:"level" binding:"required"`
	Count        int    `json:"count"`
}

type generatedQuestion struct {
	Question   any      `json:"question"`
	Source     string   `json:"source"`
	Similarity float64  `json:"similarity,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

func (h *questionHandler) generate(c *gin.Context) {
	var req generateQuestionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	t, err := question.ParseType(req.QuestionType)
	if err != nil {
		writeError(c, h.logger, apperr.Validation("invalid_question_type", err.Error()))
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}
	if req.Count < 0 || req.Count > maxGenerateCount {
		writeError(c, h.logger, apperr.Validation("invalid_count", "count must be between 1 and 10"))
		return
	}

	gen := questiongen.Request{
		Type:     t,
		Language: store.NormalizeName(req.Language),
		Level:    store.NormalizeName(req.Level),
	}
	if h.catalog != nil {
		if err := store.CheckCatalog(c.Request.Context(), h.catalog, gen.Language, gen.Level); err != nil {
			writeError(c, h.logger, err)
			return
		}
	}
	out := make([]generatedQuestion, 0, req.Count)
	for range req.Count {
		res, err := h.generator.Generate(c.Request.Context(), gen)
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		g := generatedQuestion{Question: questionJSON(res.Question), Source: string(res.Source), Similarity: res.Similarity}
		for _, w := range res.Warnings {
			g.Warnings = append(g.Warnings, w.Error())
		}
		out = append(out, g)
		gen.Exclude = append(gen.Exclude, question.RefOf(res.Question))
	}
	c.JSON(http.StatusCreated, gin.H{"questions": out})
}
