package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/acetosyn/Emis-student-exam2025/internal/config"
	"github.com/acetosyn/Emis-student-exam2025/internal/handler"
	"github.com/acetosyn/Emis-student-exam2025/internal/middleware"
	"github.com/acetosyn/Emis-student-exam2025/internal/response"
	"github.com/acetosyn/Emis-student-exam2025/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Exam *handler.ExamHandler
	WS   *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	tokens *service.TokenService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for attempt creation (10 starts per minute per IP).
	startLimiter := middleware.NewRateLimiter(10, time.Minute)
	// Signals arrive on every focus change; allow a much higher burst.
	signalLimiter := middleware.NewRateLimiter(120, time.Minute)

	// ─── 1. Attempt Creation (Public, Rate Limited) ────────────────────
	api := router.Group("/api/v1")
	{
		api.POST("/attempts", startLimiter.Middleware(), handlers.Exam.StartAttempt)
	}

	// ─── 2. Attempt Group (Attempt JWT) ────────────────────────────────
	attemptAPI := router.Group("/api/v1/attempts/:attempt_id")
	attemptAPI.Use(middleware.RequireAttemptJWT(tokens))
	{
		attemptAPI.GET("/state", handlers.Exam.GetState)
		attemptAPI.POST("/answer", handlers.Exam.Answer)
		attemptAPI.POST("/navigate", handlers.Exam.Navigate)
		attemptAPI.POST("/flag", handlers.Exam.Flag)
		attemptAPI.POST("/signals", signalLimiter.Middleware(), handlers.Exam.Signal)
		attemptAPI.POST("/submit", handlers.Exam.Submit)
		attemptAPI.GET("/result", handlers.Exam.GetResult)
	}

	// ─── 3. Student Group (Attempt JWT) ────────────────────────────────
	studentAPI := router.Group("/api/v1/students/:student_id")
	studentAPI.Use(middleware.RequireAttemptJWT(tokens))
	{
		studentAPI.GET("/active-attempt", handlers.Exam.GetActiveAttempt)
		studentAPI.GET("/results", handlers.Exam.ListResults)
	}

	// ─── 4. WebSocket Group (WS Auth via query token) ──────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireAttemptWSAuth(tokens))
	{
		ws.GET("/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	return router
}
