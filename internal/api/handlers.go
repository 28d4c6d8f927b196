package api

import (
	"encoding/base64"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/mealsnap/mealsnap-api/internal/apperrors"
	"github.com/mealsnap/mealsnap-api/internal/pipeline"
)

// maxEncodedImageBytes bounds the base64 payload, data-URI header
// excluded. Roughly a 3 MB decoded image.
const maxEncodedImageBytes = 4 << 20

var dataURIPattern = regexp.MustCompile(`^data:[^;]+;base64,`)

type identifyRequest struct {
	Image string `json:"image"`
}

func (s *Server) identifyFoodPhoto(c *gin.Context) {
	start := time.Now()
	cfg, visionClient, pipe := s.snapshot()
	requestID, _ := c.Get("request_id")
	logger := log.WithFields(log.Fields{
		"request_id": requestID,
		"client":     c.ClientIP(),
	})

	decision := s.limiter.Admit(c.ClientIP())
	c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	if !decision.Allowed {
		c.Header("Retry-After", strconv.Itoa(decision.RetryAfterSeconds))
		c.JSON(apperrors.HTTPStatus(apperrors.CodeRateLimited), gin.H{
			"error":      "too many requests, slow down",
			"code":       apperrors.CodeRateLimited,
			"retryAfter": decision.RetryAfterSeconds,
		})
		return
	}

	if secret := cfg.MissingSecret(); secret != "" {
		logger.Errorf("missing required secret %s", secret)
		c.JSON(apperrors.HTTPStatus(apperrors.CodeServerConfig), gin.H{
			"error": "server is not configured",
			"code":  apperrors.CodeServerConfig,
		})
		return
	}

	var req identifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Image == "" {
		s.respondError(c, apperrors.New(apperrors.CodeInvalidImage, "request body must carry a base64 image"))
		return
	}
	imageB64 := dataURIPattern.ReplaceAllString(req.Image, "")
	if len(imageB64) > maxEncodedImageBytes {
		s.respondError(c, apperrors.New(apperrors.CodeInvalidImage, "image is too large (4 MB max)"))
		return
	}
	if _, err := base64.StdEncoding.DecodeString(imageB64); err != nil {
		s.respondError(c, apperrors.Wrap(apperrors.CodeInvalidImage, "image is not valid base64", err))
		return
	}

	foods, noFoodMsg, err := visionClient.Identify(c.Request.Context(), imageB64)
	if err != nil {
		logger.WithError(err).Warn("vision identification failed")
		s.respondError(c, err)
		return
	}
	if len(foods) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"foods":        []pipeline.FoodResult{},
			"message":      noFoodMsg,
			"responseTime": time.Since(start).Milliseconds(),
		})
		return
	}

	batch := pipe.Resolve(c.Request.Context(), foods)
	logger.WithFields(log.Fields{
		"identified": batch.TotalIdentified,
		"resolved":   batch.SuccessCount,
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Info("photo resolved")

	c.JSON(http.StatusOK, gin.H{
		"foods":           batch.Foods,
		"totalIdentified": batch.TotalIdentified,
		"responseTime":    time.Since(start).Milliseconds(),
	})
}

func (s *Server) respondError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	c.AbortWithStatusJSON(apperrors.HTTPStatus(code), gin.H{
		"error": apperrors.MessageOf(err),
		"code":  code,
	})
}
