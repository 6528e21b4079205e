package main

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"webtoonquiz"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	requestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 5, 30, 120},
		},
		[]string{"method", "endpoint"},
	)
)

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		requestCounter.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		requestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

func prometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		webtoonquiz.Log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// recovery logs a panic and answers with the error page instead of a
// dropped connection. The visitor's session is left as it was.
func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		webtoonquiz.Log.Error("panic while handling request",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.Stack("stack"),
		)
		c.Data(http.StatusInternalServerError, "text/html; charset=utf-8",
			[]byte(`<!DOCTYPE html><html><body><p>Something went wrong. <a href="/">Back to the quiz</a></p></body></html>`))
		c.Abort()
	})
}

// visitor pairs a limiter with the last time it was used so idle entries
// can be dropped.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter allows burst requests per client IP, refilled one per
// every. Rejected requests are handed to onLimit.
func rateLimiter(burst int, every time.Duration, onLimit gin.HandlerFunc) gin.HandlerFunc {
	if burst <= 0 {
		burst = 1
	}
	visitors := make(map[string]*visitor)
	var mu sync.Mutex

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			mu.Lock()
			for ip, v := range visitors {
				if time.Since(v.lastSeen) > 10*time.Minute {
					delete(visitors, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		key := c.ClientIP()

		mu.Lock()
		v, ok := visitors[key]
		if !ok {
			v = &visitor{limiter: rate.NewLimiter(rate.Every(every), burst)}
			visitors[key] = v
		}
		v.lastSeen = time.Now()
		mu.Unlock()

		if !v.limiter.Allow() {
			webtoonquiz.Log.Warn("rate limit hit", zap.String("client_ip", key), zap.String("path", c.Request.URL.Path))
			onLimit(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
