// Package api serves studies, effects and imports over HTTP with gin.
package api

import (
	"net/http"
	"time"

	"github.com/plew99/cytokines-metaanalysis/app"
	"github.com/plew99/cytokines-metaanalysis/internal"
	"github.com/plew99/cytokines-metaanalysis/internal/metrics"

	"github.com/gin-gonic/gin"
)

// DisplayPlaces is the rounding applied to effect presentations
const DisplayPlaces = 3

// Services are the application services the API exposes
type Services struct {
	Studies *app.StudyService
	Effects *app.EffectService
	Imports *app.ImportService
	// Metrics is optional; /metrics is only routed when set
	Metrics *metrics.Metrics
}

// Server represents the HTTP API
type Server struct {
	router  *gin.Engine
	studies *app.StudyService
	effects *app.EffectService
	imports *app.ImportService
	metrics *metrics.Metrics
	logger  *internal.Logger
}

// NewServer creates the API server and registers all routes
func NewServer(svc Services, logger *internal.Logger) *Server {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	s := &Server{
		router:  gin.New(),
		studies: svc.Studies,
		effects: svc.Effects,
		imports: svc.Imports,
		metrics: svc.Metrics,
		logger:  logger.Component("api"),
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s
}

// Handler exposes the router, e.g. for http.Server or httptest
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	studies := s.router.Group("/studies")
	{
		studies.GET("", s.listStudies)
		studies.POST("", s.createStudy)
		studies.GET("/:id", s.getStudy)
		studies.DELETE("/:id", s.deleteStudy)
		studies.POST("/:id/arms", s.addArm)
		studies.POST("/:id/outcomes", s.addOutcome)
		studies.POST("/:id/covariates", s.addCovariate)
		studies.POST("/:id/tags", s.tagStudy)
		studies.GET("/:id/effects", s.listEffects)
		studies.POST("/:id/effects", s.createEffect)
		studies.POST("/:id/effects/preview", s.previewEffect)
	}

	effects := s.router.Group("/effects")
	{
		effects.GET("/:id", s.getEffect)
		effects.PUT("/:id", s.updateEffect)
		effects.DELETE("/:id", s.deleteEffect)
	}

	s.router.POST("/import", s.importWorkbook)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("%s %s -> %d in %.2fms", c.Request.Method, c.Request.URL.Path, c.Writer.Status(),
			float64(time.Since(start).Microseconds())/1000)
	}
}
