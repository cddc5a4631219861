package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"forge-market/internal/apperr"
	"forge-market/internal/auth"
	"forge-market/internal/model"
)

// authed 校验 Bearer 令牌并将身份写入请求上下文。
func (s *server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			s.writeError(w, apperr.Unauthorized("authorization header missing"))
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.writeError(w, apperr.Unauthorized("token missing"))
			return
		}

		identity, err := s.tokens.Verify(token)
		if err != nil {
			s.writeError(w, err)
			return
		}
		next(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
	}
}

// requireRole 要求调用者具备指定角色之一。
func (s *server) requireRole(next http.HandlerFunc, roles ...model.UserRole) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.FromContext(r.Context())
		if !ok {
			s.writeError(w, apperr.Unauthorized("authentication required"))
			return
		}
		for _, role := range roles {
			if identity.Role == role {
				next(w, r)
				return
			}
		}
		s.writeError(w, apperr.Forbidden("insufficient permissions"))
	}
}

// logRequests 记录每个请求的方法、路径与耗时。
func logRequests(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

// withCORS 为桌面客户端放开跨域访问。
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoverPanics 拦截处理器 panic，返回通用 500。
func recoverPanics(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic", slog.Any("err", err))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
