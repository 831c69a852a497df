package metrics

import (
	"database/sql"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector exported on /metrics.
var Registry = prometheus.NewRegistry()

var (
	segmentsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recording_segments_started_total",
		Help: "Recording segments opened by start.",
	})
	segmentsClosed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recording_segments_completed_total",
		Help: "Recording segments closed, by outcome.",
	}, []string{"outcome"})
	segmentAnalyses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "segment_analysis_total",
		Help: "Segment analysis runs, by result.",
	}, []string{"result"})
	segmentAnalysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "segment_analysis_duration_seconds",
		Help:    "Wall time of one segment analysis including URL signing and the analyzer call.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 180},
	})
	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "analysis_queue_depth",
		Help: "Jobs waiting in the in-process analysis queue.",
	})
	queueJobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_queue_jobs_total",
		Help: "Analysis queue job events.",
	}, []string{"event"})
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests handled.",
	}, []string{"method", "route", "status"})
	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		segmentsStarted,
		segmentsClosed,
		segmentAnalyses,
		segmentAnalysisDuration,
		queueDepth,
		queueJobs,
		httpRequests,
		httpDuration,
	)
}

// IncSegmentStarted counts a new segment.
func IncSegmentStarted() {
	segmentsStarted.Inc()
}

// IncSegmentClosed counts a segment leaving the recording state.
func IncSegmentClosed(outcome string) {
	segmentsClosed.WithLabelValues(outcome).Inc()
}

// IncSegmentAnalysis counts an analysis run. result is completed, failed or skipped.
func IncSegmentAnalysis(result string) {
	segmentAnalyses.WithLabelValues(result).Inc()
}

// ObserveSegmentAnalysis records how long one analysis took.
func ObserveSegmentAnalysis(d time.Duration) {
	if d < 0 {
		d = 0
	}
	segmentAnalysisDuration.Observe(d.Seconds())
}

// SetQueueDepth publishes the in-process queue length.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// IncQueueJob counts a queue event such as enqueued, dropped or processed.
func IncQueueJob(event string) {
	queueJobs.WithLabelValues(event).Inc()
}

// RegisterDBStats exports connection pool statistics for db. Repeated calls
// are ignored.
func RegisterDBStats(db *sql.DB) {
	_ = Registry.Register(collectors.NewDBStatsCollector(db, "simulator"))
}

// Middleware records request counts and latency per matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}
