// Package api exposes the quiz, assignment, progress and generation
// engines over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/abhisek/codequiz/internal/assignment"
	"github.com/abhisek/codequiz/internal/metrics"
	"github.com/abhisek/codequiz/internal/progress"
	"github.com/abhisek/codequiz/internal/questiongen"
	"github.com/abhisek/codequiz/internal/quiz"
	"github.com/abhisek/codequiz/internal/store"
)

// Deps are the engines behind the routes.
type Deps struct {
	Quizzes     *quiz.Engine
	Assignments *assignment.Engine
	Progress    *progress.Tracker
	Generator   *questiongen.Generator
	Catalog     store.CatalogRepo
	Auth        *Authenticator
	CORSOrigins []string
	Logger      *slog.Logger
}

// NewRouter builds the gin engine. Everything under /api/v1 requires a
// bearer token.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(d.Logger))
	r.Use(cors.New(corsConfig(d.CORSOrigins)))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	qh := &quizHandler{engine: d.Quizzes, logger: d.Logger}
	ah := &assignmentHandler{engine: d.Assignments, logger: d.Logger}
	ph := &progressHandler{tracker: d.Progress, logger: d.Logger}
	gh := &questionHandler{generator: d.Generator, catalog: d.Catalog, logger: d.Logger}

	api := r.Group("/api/v1")
	api.Use(JWTAuth(d.Auth))
	{
		quizzes := api.Group("/quizzes")
		quizzes.POST("", qh.create)
		quizzes.GET("", qh.history)
		quizzes.GET("/:id", qh.details)
		quizzes.GET("/:id/next", qh.next)
		quizzes.POST("/:id/answers", qh.answer)
		quizzes.POST("/:id/complete", qh.complete)

		assignments := api.Group("/assignments")
		assignments.POST("", ah.generate)
		assignments.GET("", ah.list)
		assignments.GET("/:id", ah.get)
		assignments.POST("/:id/submit", ah.submit)

		api.GET("/progress", ph.summary)
		api.GET("/progress/compare/:friend", ph.compare)
		api.GET("/leaderboard", ph.leaderboard)
		api.GET("/leaderboard/quizzes", ph.quizLeaderboard)

		api.POST("/questions/generate", gh.generate)
	}
	return r
}

// corsConfig allows every origin when origins is empty or contains "*".
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// requestLogger tags each request with an id and logs its outcome.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)

		start := time.Now()
		c.Next()

		logger.Info("request",
			"id", id,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"user", currentUser(c),
		)
	}
}
