package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/codequiz/internal/assignment"
)

type assignmentHandler struct {
	engine *assignment.Engine
	logger *slog.Logger
}

type generateAssignmentRequest struct {
	Language string `json:"language" binding:"required"`
	Level    string `json:"level" binding:"required"`
}

type submitAssignmentRequest struct {
	Answers []string `json:"answers" binding:"required"`
}

func (h *assignmentHandler) generate(c *gin.Context) {
	var req generateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	g, err := h.engine.Generate(c.Request.Context(), currentUser(c), req.Language, req.Level)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"assignment": g.Assignment,
		"questions":  questionsJSON(g.Questions),
		"generated":  g.Generated,
		"warnings":   g.Warnings,
	})
}

func (h *assignmentHandler) list(c *gin.Context) {
	list, err := h.engine.List(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignments": list})
}

func (h *assignmentHandler) get(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	d, err := h.engine.Get(c.Request.Context(), currentUser(c), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"assignment": d.Assignment,
		"questions":  questionsJSON(d.Questions),
		"responses":  d.Responses,
	})
}

func (h *assignmentHandler) submit(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req submitAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	scored, err := h.engine.Submit(c.Request.Context(), currentUser(c), id, req.Answers)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, scored)
}
