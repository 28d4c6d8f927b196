// Package api is the HTTP boundary of the photo-nutrition pipeline:
// method and CORS handling, admission control, payload validation, and
// the single place where taxonomy codes become status lines.
package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/mealsnap/mealsnap-api/internal/apperrors"
	"github.com/mealsnap/mealsnap-api/internal/config"
	"github.com/mealsnap/mealsnap-api/internal/estimate"
	"github.com/mealsnap/mealsnap-api/internal/nutrition"
	"github.com/mealsnap/mealsnap-api/internal/pipeline"
	"github.com/mealsnap/mealsnap-api/internal/ratelimit"
	"github.com/mealsnap/mealsnap-api/internal/vision"
)

type visionIdentifier interface {
	Identify(ctx context.Context, imageB64 string) ([]vision.IdentifiedFood, string, error)
}

// Server wires the pipeline behind a gin engine. Configuration can be
// swapped at runtime; the limiter keeps its windows across swaps.
type Server struct {
	engine  *gin.Engine
	limiter *ratelimit.Limiter

	mu       sync.RWMutex
	cfg      *config.Config
	vision   visionIdentifier
	pipeline *pipeline.Pipeline
}

// NewServer builds a Server from cfg.
func NewServer(cfg *config.Config) *Server {
	s := &Server{
		limiter: ratelimit.New(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window.Std()),
	}
	s.applyConfigLocked(cfg)

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(s.requestID, s.cors, gin.CustomRecovery(s.recovered))

	engine.POST("/identify-food-photo", s.identifyFoodPhoto)
	engine.GET("/healthz", s.healthz)
	engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error": "method not allowed",
			"code":  "METHOD_NOT_ALLOWED",
		})
	})

	s.engine = engine
	return s
}

// Handler exposes the engine for an http.Server or test harness.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Limiter exposes the admission limiter so the caller can start its
// janitor.
func (s *Server) Limiter() *ratelimit.Limiter {
	return s.limiter
}

// ApplyConfig swaps in a freshly loaded configuration.
func (s *Server) ApplyConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyConfigLocked(cfg)
	s.limiter.Reconfigure(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window.Std())
}

func (s *Server) applyConfigLocked(cfg *config.Config) {
	s.cfg = cfg
	s.vision = vision.New(vision.Config{
		BaseURL: cfg.Upstream.OpenRouterBaseURL,
		APIKey:  cfg.OpenRouterKey,
		Model:   cfg.Upstream.VisionModel,
		Referer: cfg.Upstream.Referer,
		Title:   cfg.Upstream.Title,
		Timeout: cfg.Upstream.VisionTimeout.Std(),
	})
	resolver := nutrition.NewResolver(nutrition.ResolverConfig{
		BaseURL: cfg.Upstream.FDCBaseURL,
		APIKey:  cfg.FDCKey,
	})
	estimator := estimate.New(estimate.Config{
		BaseURL: cfg.Upstream.OpenRouterBaseURL,
		APIKey:  cfg.OpenRouterKey,
		Model:   cfg.Upstream.EstimatorModel,
		Referer: cfg.Upstream.Referer,
		Title:   cfg.Upstream.Title,
	})
	s.pipeline = pipeline.New(resolver, estimator)
}

func (s *Server) snapshot() (*config.Config, visionIdentifier, *pipeline.Pipeline) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, s.vision, s.pipeline
}

func (s *Server) requestID(c *gin.Context) {
	id := uuid.NewString()
	c.Set("request_id", id)
	c.Header("X-Request-Id", id)
	c.Next()
}

func (s *Server) cors(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type")
	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}

func (s *Server) recovered(c *gin.Context, recovered any) {
	log.Errorf("panic serving %s: %v", c.FullPath(), recovered)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error": "internal server error",
		"code":  apperrors.CodeUnexpected,
	})
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
