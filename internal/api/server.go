package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"WalletChat/internal/agent"
	"WalletChat/internal/auth"
	xerrors "WalletChat/internal/errors"
	"WalletChat/internal/observability/metrics"
	"WalletChat/internal/web3"
	"WalletChat/pkg/logger"

	"github.com/google/uuid"
)

// maxBodyBytes 限制单条消息请求体的大小。
const maxBodyBytes = 64 << 10

// HeaderRequestID 是响应中回传的请求标识。
const HeaderRequestID = "X-Request-ID"

// MessageHandler 处理一条聊天消息，由 agent.Agent 实现。
type MessageHandler interface {
	Handle(ctx context.Context, msg agent.Message) (*agent.Reply, error)
}

// ChainReporter 汇报各链 RPC 节点的状态，由 provider.Registry 实现。
type ChainReporter interface {
	Snapshots(ctx context.Context) ([]web3.ChainSnapshot, map[string]error)
}

// Server 负责暴露聊天通道使用的 HTTP 接口。
type Server struct {
	addr        string
	handler     MessageHandler
	secret      string
	chains      ChainReporter
	readTimeout time.Duration
	log         *slog.Logger
}

// Option 定义可选的 Server 配置。
type Option func(*Server)

// WithWebhookSecret 要求 /api/v1/* 携带共享密钥。
func WithWebhookSecret(secret string) Option {
	return func(s *Server) { s.secret = secret }
}

// WithChainReporter 在 /healthz/chains 暴露链节点状态。
func WithChainReporter(r ChainReporter) Option {
	return func(s *Server) { s.chains = r }
}

// WithReadTimeout 设置读取请求的超时时间。
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, handler MessageHandler, opts ...Option) *Server {
	s := &Server{
		addr:        addr,
		handler:     handler,
		readTimeout: 10 * time.Second,
		log:         logger.Named("api"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回完整的路由。
func (s *Server) Handler() http.Handler {
	guard := func(event string, h http.HandlerFunc) http.Handler {
		return auth.Middleware(auth.MiddlewareConfig{Secret: s.secret, AuditEvent: event})(h)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/messages", instrument("messages", guard("messages", s.handleMessage)))
	mux.Handle("/api/v1/commands", instrument("commands", guard("commands", s.handleCommands)))
	mux.Handle("/healthz", instrument("healthz", http.HandlerFunc(s.handleHealth)))
	mux.Handle("/healthz/chains", instrument("chains", http.HandlerFunc(s.handleChains)))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.readTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("HTTP 服务已启动", slog.String("address", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.handler == nil {
		http.Error(w, "Agent 未初始化", http.StatusServiceUnavailable)
		return
	}

	var msg agent.Message
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(&msg); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	reply, err := s.handler.Handle(r.Context(), msg)
	if err != nil {
		status := http.StatusInternalServerError
		if xerrors.HasCode(err, xerrors.CodeInvalidArgument) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	if reply.Messages == nil {
		reply.Messages = []string{}
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, agent.Commands())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

type chainStatus struct {
	Chains []web3.ChainSnapshot `json:"chains"`
	Errors map[string]string    `json:"errors,omitempty"`
}

// handleChains 只要有一条链不可用就返回 503，便于探活系统识别降级。
func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	if s.chains == nil {
		writeJSON(w, http.StatusOK, chainStatus{Chains: []web3.ChainSnapshot{}})
		return
	}
	snapshots, failures := s.chains.Snapshots(r.Context())
	out := chainStatus{Chains: snapshots}
	if out.Chains == nil {
		out.Chains = []web3.ChainSnapshot{}
	}
	status := http.StatusOK
	if len(failures) > 0 {
		status = http.StatusServiceUnavailable
		out.Errors = make(map[string]string, len(failures))
		for name, err := range failures {
			out.Errors[name] = err.Error()
		}
	}
	writeJSON(w, status, out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// instrument 记录请求指标并为每个请求分配请求 ID。
func instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		metrics.ObserveHTTPRequest(name, r.Method, sw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
