package observability

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const traceHeader = "X-Trace-ID"

// unmatchedPath replaces the path label of 404s so scanners cannot grow the
// label set.
const unmatchedPath = "unmatched"

type exchangeKey struct{}

// exchange carries what inner handlers learn about a request back out to
// Instrument. Handlers run on the request goroutine, so no locking.
type exchange struct {
	principal string
	outcome   string
}

// NotePrincipal records the authenticated caller on the request log line.
func NotePrincipal(ctx context.Context, principal string) {
	if ex, ok := ctx.Value(exchangeKey{}).(*exchange); ok {
		ex.principal = principal
	}
}

// NoteOutcome records the assistant outcome a request produced. It becomes
// the outcome label of askolist_http_requests_total.
func NoteOutcome(ctx context.Context, outcome string) {
	if ex, ok := ctx.Value(exchangeKey{}).(*exchange); ok {
		ex.outcome = outcome
	}
}

// Instrument propagates or assigns the trace id, then counts and logs the
// request once it completes. logger may be nil.
func Instrument(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			traceID := r.Header.Get(traceHeader)
			if traceID == "" {
				traceID = newTraceID()
			}
			ex := &exchange{}
			ctx := context.WithValue(ContextWithTraceID(r.Context(), traceID), exchangeKey{}, ex)
			w.Header().Set(traceHeader, traceID)

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(ctx))
			elapsed := time.Since(start)

			path := r.URL.Path
			if recorder.status == http.StatusNotFound {
				path = unmatchedPath
			}
			outcome := ex.outcome
			if outcome == "" {
				outcome = "none"
			}
			status := strconv.Itoa(recorder.status)
			httpRequestsTotal.WithLabelValues(r.Method, path, status, outcome).Inc()
			httpRequestDurationSeconds.WithLabelValues(r.Method, path).Observe(elapsed.Seconds())

			if logger == nil {
				return
			}
			attrs := []slog.Attr{
				slog.String("trace_id", traceID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", recorder.status),
				slog.Int64("duration_ms", elapsed.Milliseconds()),
				slog.Int("bytes", recorder.bytes),
			}
			if ex.principal != "" {
				attrs = append(attrs, slog.String("principal", ex.principal))
			}
			if ex.outcome != "" {
				attrs = append(attrs, slog.String("outcome", ex.outcome))
			}
			level := slog.LevelInfo
			if recorder.status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.LogAttrs(ctx, level, "http_request", attrs...)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(body []byte) (int, error) {
	n, err := r.ResponseWriter.Write(body)
	r.bytes += n
	return n, err
}

func newTraceID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(buf)
}
