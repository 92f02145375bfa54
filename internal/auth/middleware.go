package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	loggerpkg "WalletChat/pkg/logger"
)

// HeaderWebhookSecret 是聊天通道携带共享密钥的请求头。
const HeaderWebhookSecret = "X-Webhook-Secret"

// MiddlewareConfig 配置共享密钥中间件的行为。
type MiddlewareConfig struct {
	// Secret 为空时不做校验，仅记录访问审计。
	Secret string
	// AuditEvent 指定记录审计日志时使用的事件名称。
	AuditEvent string
	// Audit 为空时使用全局审计日志。
	Audit *slog.Logger
}

// Middleware 返回一个 HTTP 中间件，校验聊天通道的共享密钥并记录审计日志。
func Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	secret := []byte(cfg.Secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			audit := cfg.Audit
			if audit == nil {
				audit = loggerpkg.Audit()
			}
			if len(secret) > 0 && !validSecret(secret, r.Header.Get(HeaderWebhookSecret)) {
				status := http.StatusUnauthorized
				http.Error(w, http.StatusText(status), status)
				audit.Warn("access_denied",
					"path", r.URL.Path,
					"method", r.Method,
					"status", status,
					"remote", r.RemoteAddr,
				)
				return
			}

			start := time.Now()
			aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(aw, r)
			event := cfg.AuditEvent
			if event == "" {
				event = r.URL.Path
			}
			audit.Info("api_request",
				"event", event,
				"method", r.Method,
				"path", r.URL.Path,
				"status", aw.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// validSecret 以常数时间比较，长度不同直接失败。
func validSecret(want []byte, got string) bool {
	return subtle.ConstantTimeCompare(want, []byte(got)) == 1
}

// auditWriter 捕获响应状态码。
type auditWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader 捕获响应状态码并调用底层的 WriteHeader 方法。
func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
