package telemetry

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "techquiz",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Handled HTTP requests by route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "techquiz",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	quizzesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "techquiz",
		Name:      "quizzes_finished_total",
		Help:      "Finished quiz attempts by category.",
	}, []string{"category"})

	bestScores = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "techquiz",
		Name:      "best_scores_updated_total",
		Help:      "Best score improvements by category.",
	}, []string{"category"})
)

// HTTPMiddleware logs every request through slog and records its latency.
func HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		took := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(took.Seconds())

		lvl := slog.LevelInfo
		if status >= 500 {
			lvl = slog.LevelError
		}
		slog.Log(c.Request.Context(), lvl, "http: request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"took", took,
			"ip", c.ClientIP(),
		)
	}
}

func CountQuizFinished(category string) {
	quizzesFinished.WithLabelValues(category).Inc()
}

func CountBestScoreUpdated(category string) {
	bestScores.WithLabelValues(category).Inc()
}
