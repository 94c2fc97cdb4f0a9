package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"serialrent-backend/internal/config"
	"serialrent-backend/internal/logger"
	"serialrent-backend/internal/security"
)

type contextKey string

const actorKey contextKey = "actor"

// ActorFromContext returns the authenticated actor recorded in status history.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey).(string)
	return actor
}

func withActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// Authenticator enforces the security level of each named route.
type Authenticator struct {
	tokens        security.TokenManager
	scannerKeys   security.APIKeyVerifier
	scannerPrefix string
}

func NewAuthenticator(tokens security.TokenManager, scannerKeys security.APIKeyVerifier, scannerPrefix string) *Authenticator {
	if scannerPrefix == "" {
		scannerPrefix = "scanner"
	}
	return &Authenticator{tokens: tokens, scannerKeys: scannerKeys, scannerPrefix: scannerPrefix}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := ""
		if route := mux.CurrentRoute(r); route != nil {
			name = route.GetName()
		}
		level := config.GetSecurityLevel(name)
		if level == config.SecurityPublic {
			next.ServeHTTP(w, r)
			return
		}

		if token := bearerToken(r); token != "" {
			claims, err := a.tokens.ValidateToken(token)
			if err != nil {
				writeMessage(w, http.StatusUnauthorized, "invalid token: "+err.Error())
				return
			}
			if claims.Type != security.TokenTypeAccess {
				writeMessage(w, http.StatusForbidden, "access token required")
				return
			}
			next.ServeHTTP(w, r.WithContext(withActor(r.Context(), claims.Actor)))
			return
		}

		if key := r.Header.Get("X-Api-Key"); key != "" {
			if level != config.SecurityScanner {
				writeMessage(w, http.StatusForbidden, "access token required")
				return
			}
			if a.scannerKeys == nil || !a.scannerKeys.Verify(key) {
				writeMessage(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			actor := a.scannerPrefix
			if device := strings.TrimSpace(r.Header.Get("X-Scanner-Id")); device != "" {
				actor += ":" + device
			}
			next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
			return
		}

		writeMessage(w, http.StatusUnauthorized, "authorization is not provided")
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.code = code
	sw.ResponseWriter.WriteHeader(code)
}

// requestLogger logs one line per request at debug level, or warn for server errors.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		args := []any{"method", r.Method, "path", r.URL.Path, "status", sw.code, "duration", time.Since(start)}
		if sw.code >= http.StatusInternalServerError {
			logger.Warn("HTTP request", args...)
			return
		}
		logger.Debug("HTTP request", args...)
	})
}
