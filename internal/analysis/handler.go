package analysis

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"simulator-backend/internal/recordings"
	"simulator-backend/internal/shared/server/middleware"
	"simulator-backend/internal/shared/server/respond"
	"simulator-backend/internal/shared/util"
)

// RecordingLookup resolves the caller's screen recording for an assessment.
type RecordingLookup interface {
	ScreenRecording(ctx context.Context, userID, assessmentID string) (recordings.Recording, error)
}

// Handler exposes batch analysis and the stored analysis state.
type Handler struct {
	Svc        *Service
	Recordings RecordingLookup
}

func NewHandler(svc *Service, lookup RecordingLookup) *Handler {
	return &Handler{Svc: svc, Recordings: lookup}
}

// RegisterRoutes attaches the batch analysis route.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/recording/analysis", h.analyze)
}

// RegisterPollingRoutes attaches the read-only analysis route.
func (h *Handler) RegisterPollingRoutes(rg *gin.RouterGroup) {
	rg.GET("/recording/analysis", h.overview)
}

type analyzeRequest struct {
	AssessmentID   string `json:"assessmentId"`
	SegmentID      string `json:"segmentId"`
	ForceReanalyze bool   `json:"forceReanalyze"`
}

func (h *Handler) analyze(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	req.AssessmentID = strings.TrimSpace(req.AssessmentID)
	req.SegmentID = strings.TrimSpace(req.SegmentID)
	if req.AssessmentID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "assessmentId is required", []map[string]string{
			{"field": "assessmentId", "issue": "required"},
		})
		return
	}
	c.Set(middleware.AssessmentIDKey, req.AssessmentID)
	c.Set(middleware.SegmentIDKey, req.SegmentID)

	ctx := util.WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	rec, err := h.Recordings.ScreenRecording(ctx, userID, req.AssessmentID)
	if err != nil {
		writeError(c, err, "failed to load recording")
		return
	}
	res, err := h.Svc.AnalyzeRecording(ctx, rec, BatchOptions{SegmentID: req.SegmentID, Force: req.ForceReanalyze})
	if err != nil {
		writeError(c, err, "failed to analyze recording")
		return
	}

	body := gin.H{
		"success":          true,
		"analyzed":         res.Analyzed,
		"segmentsAnalyzed": res.SegmentsAnalyzed,
		"segmentsTotal":    res.SegmentsTotal,
		"aggregated":       res.Aggregate,
	}
	if res.Analyzed {
		body["segmentsFailed"] = res.SegmentsFailed
		body["totalAnalyzed"] = res.TotalAnalyzed
	}
	if res.AnalyzedAt != nil {
		body["analyzedAt"] = res.AnalyzedAt
	}
	if res.Message != "" {
		body["message"] = res.Message
	}
	respond.OK(c, body)
}

func (h *Handler) overview(c *gin.Context) {
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
	segmentID := strings.TrimSpace(c.Query("segmentId"))
	c.Set(middleware.AssessmentIDKey, assessmentID)

	ctx := util.WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	rec, err := h.Recordings.ScreenRecording(ctx, userID, assessmentID)
	if err != nil {
		writeError(c, err, "failed to load recording")
		return
	}
	out, err := h.Svc.Overview(ctx, rec, segmentID)
	if err != nil {
		writeError(c, err, "failed to load analysis")
		return
	}
	respond.OK(c, out)
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, recordings.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "not found", nil)
	case errors.Is(err, ErrAllSegmentsFailed):
		respond.Error(c, http.StatusInternalServerError, "analysis_failed", "analysis failed for every segment", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}
