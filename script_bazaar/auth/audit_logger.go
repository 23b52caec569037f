package auth

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func clientIp(r *http.Request) string {
	if ip := r.Header.Get("X-Real-Ip"); len(ip) > 0 {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); len(ip) > 0 {
		return ip
	}
	if len(r.RemoteAddr) > 0 {
		return r.RemoteAddr
	}
	return "Unknown"
}

func pathParams(r *http.Request) []interface{} {
	params := make([]interface{}, 0)

	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return params
	}

	for i := range rctx.URLParams.Keys {
		if rctx.URLParams.Keys[i] != "*" {
			params = append(params, slog.String(rctx.URLParams.Keys[i], rctx.URLParams.Values[i]))
		}
	}

	return params
}

func queryParams(r *http.Request) []interface{} {
	params := make([]interface{}, 0)
	for k, v := range r.URL.Query() {
		params = append(params, slog.String(k, strings.Join(v, ";")))
	}
	return params
}

// AuditLogger writes one json line per mutating request made with a session.
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(stream io.Writer) *AuditLogger {
	logger := slog.New(slog.NewJSONHandler(stream, nil))
	return &AuditLogger{logger: logger}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func (log *AuditLogger) Middleware(next http.Handler) http.Handler {
	handler := func(w http.ResponseWriter, r *http.Request) {
		user, err := UserFromContext(r)
		if err != nil || !isMutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.logger.Info("",
			"username", user.Username,
			"user_id", user.Id,
			"client_ip", clientIp(r),
			"method", r.Method,
			"url", r.URL.Path,
			"status", ww.Status(),
			slog.Group("path_params", pathParams(r)...),
			slog.Group("query_params", queryParams(r)...),
		)
	}
	return http.HandlerFunc(handler)
}
