package recordings

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"simulator-backend/internal/shared/server/middleware"
	"simulator-backend/internal/shared/server/respond"
	"simulator-backend/internal/shared/util"
)

// Session actions.
const (
	ActionStart         = "start"
	ActionAddChunk      = "addChunk"
	ActionAddScreenshot = "addScreenshot"
	ActionComplete      = "complete"
	ActionInterrupt     = "interrupt"
)

// Handler wires the session action endpoint to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches the mutating session route.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/recording/session", h.sessionAction)
}

// RegisterPollingRoutes attaches the session status route.
func (h *Handler) RegisterPollingRoutes(rg *gin.RouterGroup) {
	rg.GET("/recording/session", h.sessionStatus)
}

type sessionRequest struct {
	AssessmentID   string `json:"assessmentId"`
	Action         string `json:"action"`
	SegmentID      string `json:"segmentId"`
	ChunkPath      string `json:"chunkPath"`
	ScreenshotPath string `json:"screenshotPath"`
	TestMode       bool   `json:"testMode"`
}

func (h *Handler) sessionAction(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}

	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	req.AssessmentID = strings.TrimSpace(req.AssessmentID)
	req.SegmentID = strings.TrimSpace(req.SegmentID)
	c.Set(middleware.AssessmentIDKey, req.AssessmentID)
	c.Set(middleware.SegmentIDKey, req.SegmentID)
	c.Set(middleware.ActionKey, req.Action)

	if req.AssessmentID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "assessmentId is required", []map[string]string{
			{"field": "assessmentId", "issue": "required"},
		})
		return
	}
	if req.Action != ActionStart && req.SegmentID == "" {
		if !validAction(req.Action) {
			writeError(c, ErrInvalidAction, "invalid action")
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "segmentId is required", []map[string]string{
			{"field": "segmentId", "issue": "required"},
		})
		return
	}

	ctx := requestContext(c)
	switch req.Action {
	case ActionStart:
		seg, err := h.Svc.Start(ctx, userID, req.AssessmentID, req.TestMode)
		if err != nil {
			writeError(c, err, "failed to start segment")
			return
		}
		c.Set(middleware.SegmentIDKey, seg.ID)
		respond.OK(c, gin.H{
			"success":      true,
			"segmentId":    seg.ID,
			"segmentIndex": seg.Index,
			"status":       seg.Status,
		})

	case ActionAddChunk:
		path, ok := requiredPath(c, "chunkPath", req.ChunkPath)
		if !ok {
			return
		}
		if err := h.Svc.AddChunk(ctx, userID, req.AssessmentID, req.SegmentID, path); err != nil {
			writeError(c, err, "failed to add chunk")
			return
		}
		respond.OK(c, gin.H{"success": true, "segmentId": req.SegmentID})

	case ActionAddScreenshot:
		path, ok := requiredPath(c, "screenshotPath", req.ScreenshotPath)
		if !ok {
			return
		}
		if err := h.Svc.AddScreenshot(ctx, userID, req.AssessmentID, req.SegmentID, path); err != nil {
			writeError(c, err, "failed to add screenshot")
			return
		}
		respond.OK(c, gin.H{"success": true, "segmentId": req.SegmentID})

	case ActionComplete:
		seg, triggered, err := h.Svc.Complete(ctx, userID, req.AssessmentID, req.SegmentID)
		if err != nil {
			writeError(c, err, "failed to complete segment")
			return
		}
		respond.OK(c, gin.H{
			"success":           true,
			"segmentId":         seg.ID,
			"status":            seg.Status,
			"analysisTriggered": triggered,
		})

	case ActionInterrupt:
		seg, err := h.Svc.Interrupt(ctx, userID, req.AssessmentID, req.SegmentID)
		if err != nil {
			writeError(c, err, "failed to interrupt segment")
			return
		}
		respond.OK(c, gin.H{"success": true, "segmentId": seg.ID, "status": seg.Status})

	default:
		writeError(c, ErrInvalidAction, "invalid action")
	}
}

func (h *Handler) sessionStatus(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}
	assessmentID := strings.TrimSpace(c.Query("assessmentId"))
	if assessmentID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "assessmentId is required", []map[string]string{
			{"field": "assessmentId", "issue": "required"},
		})
		return
	}
	c.Set(middleware.AssessmentIDKey, assessmentID)

	status, err := h.Svc.Status(requestContext(c), userID, assessmentID)
	if err != nil {
		writeError(c, err, "failed to load session status")
		return
	}
	respond.OK(c, status)
}

func validAction(action string) bool {
	switch action {
	case ActionStart, ActionAddChunk, ActionAddScreenshot, ActionComplete, ActionInterrupt:
		return true
	}
	return false
}

func requiredPath(c *gin.Context, field, value string) (string, bool) {
	if strings.TrimSpace(value) == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", field+" is required", []map[string]string{
			{"field": field, "issue": "required"},
		})
		return "", false
	}
	path, err := util.SanitizeStoragePath(value)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", field+" is invalid", []map[string]string{
			{"field": field, "issue": "invalid"},
		})
		return "", false
	}
	return path, true
}

// requestContext carries the request ID into service calls and detached work.
func requestContext(c *gin.Context) context.Context {
	return util.WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "not found", nil)
	case errors.Is(err, ErrSegmentNotRecording):
		respond.Error(c, http.StatusConflict, "conflict", "segment is no longer recording", nil)
	case errors.Is(err, ErrTestModeDisabled):
		respond.Error(c, http.StatusForbidden, "test_mode_disabled", "test mode is only available in development", nil)
	case errors.Is(err, ErrInvalidAction):
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid action", []map[string]string{
			{"field": "action", "issue": "invalid"},
		})
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}
