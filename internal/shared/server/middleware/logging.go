package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"simulator-backend/internal/shared/telemetry"
)

// Context keys handlers set so the request log line can carry them.
const (
	AssessmentIDKey = "assessmentId"
	SegmentIDKey    = "segmentId"
	ActionKey       = "sessionAction"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		userID, _ := c.Get(userIDKey)
		isGuest, _ := c.Get(isGuestKey)

		telemetry.Info("request.complete", map[string]any{
			"request_id":    RequestIDFromContext(c),
			"method":        c.Request.Method,
			"path":          c.Request.URL.Path,
			"status":        c.Writer.Status(),
			"duration_ms":   float64(latency.Microseconds()) / 1000.0,
			"user_id":       userID,
			"is_guest":      isGuest,
			"assessment_id": c.GetString(AssessmentIDKey),
			"segment_id":    c.GetString(SegmentIDKey),
			"action":        c.GetString(ActionKey),
			"client_ip":     c.ClientIP(),
			"user_agent":    c.Request.UserAgent(),
		})
	}
}
