package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/codequiz/internal/apperr"
	"github.com/abhisek/codequiz/internal/progress"
	"github.com/abhisek/codequiz/internal/store"
)

type progressHandler struct {
	tracker *progress.Tracker
	logger  *slog.Logger
}

func (h *progressHandler) summary(c *gin.Context) {
	s, err := h.tracker.Summary(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *progressHandler) compare(c *gin.Context) {
	cmp, err := h.tracker.Compare(c.Request.Context(), currentUser(c), c.Param("friend"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

func (h *progressHandler) leaderboard(c *gin.Context) {
	period, err := progress.ParsePeriod(c.Query("period"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	limit := progress.DefaultLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeError(c, h.logger, apperr.Validation("invalid_limit", "limit must be an integer between 1 and 100"))
			return
		}
		limit = n
	}
	lb, err := h.tracker.Leaderboard(c.Request.Context(), period, limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, lb)
}

func (h *progressHandler) quizLeaderboard(c *gin.Context) {
	language := store.NormalizeName(c.Query("language"))
	level := store.NormalizeName(c.Query("level"))
	ranks, err := h.tracker.QuizLeaderboard(c.Request.Context(), language, level)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"language": language, "level": level, "quizzes": ranks})
}
