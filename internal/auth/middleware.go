package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/askolist/askolist/internal/observability"
)

type identityKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}

// credential is an API key and the header it came from.
type credential struct {
	key    string
	source string
}

// Middleware admits requests carrying a known API key in X-API-Key or an
// Authorization bearer token. The principal is noted on the request log.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			cred, ok := credentialFromRequest(r)
			if !ok {
				reject(ctx, w, logger, r.URL.Path, "missing", "missing API key")
				return
			}
			identity, ok := validator.Validate(ctx, cred.key)
			if !ok {
				reject(ctx, w, logger, r.URL.Path, "invalid", "invalid API key")
				return
			}

			observability.NotePrincipal(ctx, identity.Principal)
			logger.DebugContext(ctx, "authenticated",
				slog.String("trace_id", observability.TraceIDFromContext(ctx)),
				slog.String("principal", identity.Principal),
				slog.Any("roles", identity.Roles),
				slog.String("source", cred.source),
			)
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

func credentialFromRequest(r *http.Request) (credential, bool) {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return credential{key: key, source: "x-api-key"}, true
	}
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return credential{}, false
	}
	if token = strings.TrimSpace(token); token == "" {
		return credential{}, false
	}
	return credential{key: token, source: "bearer"}, true
}

// reject answers 401 in the API error envelope.
func reject(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, path, reason, message string) {
	logger.WarnContext(ctx, "authentication_failed",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("path", path),
		slog.String("reason", reason),
	)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="askolist"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": "UNAUTHORIZED",
		"message":    message,
		"retryable":  false,
		"context":    map[string]any{"reason": reason},
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
