// Package api exposes the analytics core over HTTP JSON: what-if
// heatmap predictions, ranked effect lists, baseline lookups and the
// shareable session representation.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/whistle-data/refzone.report/internal/model"
	"github.com/whistle-data/refzone.report/internal/monitoring"
	"github.com/whistle-data/refzone.report/internal/predict"
	"github.com/whistle-data/refzone.report/internal/session"
	"github.com/whistle-data/refzone.report/internal/zones"
)

// CoefficientSource is the coefficient surface the API serves from: the
// prediction Store plus the catalog lookups. Both the sqlite store and
// the remote fitting-service client satisfy it.
type CoefficientSource interface {
	predict.Store
	FeatureSlopes(ctx context.Context, feature, season string, grid zones.Grid) ([]model.Slope, error)
	Seasons(ctx context.Context) ([]string, error)
	Officials(ctx context.Context, season string) ([]string, error)
}

// Server handles the analytics API routes.
type Server struct {
	engine   *predict.Engine
	source   CoefficientSource
	sessions *session.Store
}

// NewServer creates a Server reading coefficients from source and
// session state from sessions.
func NewServer(engine *predict.Engine, source CoefficientSource, sessions *session.Store) *Server {
	return &Server{engine: engine, source: source, sessions: sessions}
}

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/predict-heatmap", s.predictHeatmap)
	mux.HandleFunc("/api/effects/ranked", s.rankedEffects)
	mux.HandleFunc("/api/features", s.listFeatures)
	mux.HandleFunc("/api/seasons", s.listSeasons)
	mux.HandleFunc("/api/officials", s.listOfficials)
	mux.HandleFunc("/api/officials/", s.officialBaseline)
	mux.HandleFunc("/api/teams/", s.teamBaseline)
	mux.HandleFunc("/api/session", s.sessionState)
	mux.HandleFunc("/api/version", s.buildInfo)
	mux.HandleFunc("/charts/heatmap", s.chartHeatmap)
	mux.HandleFunc("/charts/forest", s.chartForest)
	return mux
}

// ANSI escape codes for request logging.
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware tags each request with a request ID and logs
// method, path, status and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms req=%s",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
			reqID,
		)
	})
}
