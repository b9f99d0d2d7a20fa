package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/pinpung/pinpung-ai/internal/http/handlers"
	httpMW "github.com/pinpung/pinpung-ai/internal/http/middleware"
	"github.com/pinpung/pinpung-ai/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	TaggingHandler        *httpH.TaggingHandler
	RecommendationHandler *httpH.RecommendationHandler
	HealthHandler         *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Review tagging
		if cfg.TaggingHandler != nil {
			api.POST("/gen-tags", cfg.TaggingHandler.GenerateTags)
		}

		// Recommendations
		if cfg.RecommendationHandler != nil {
			api.POST("/recs/personal", cfg.RecommendationHandler.Personal)
			api.POST("/recs/popular", cfg.RecommendationHandler.Popular)
		}
	}

	return r
}
