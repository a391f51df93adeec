package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/codequiz/internal/apperr"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// writeError maps err onto its status. Unclassified errors are logged
// and hidden from the client.
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	status := apperr.Status(kind)
	if kind == apperr.KindInternal {
		logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.AbortWithStatusJSON(status, ErrorResponse{Error: "internal server error", Reason: string(apperr.KindInternal)})
		return
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error(), Reason: apperr.ReasonOf(err)})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Reason: string(apperr.KindValidation)})
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id", Reason: "invalid_id"})
		return 0, false
	}
	return id, true
}
