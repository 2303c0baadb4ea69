package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"AgentKit/internal/bot"
	"AgentKit/internal/observability/metrics"
	"AgentKit/internal/storage/mysql"
	"AgentKit/pkg/logger"
)

const (
	defaultReplyLimit = 20
	maxReplyLimit     = 500
)

// StatusSource 提供监听循环状态与最近的回复记录，*bot.Bot 实现了该接口。
type StatusSource interface {
	Status() bot.Status
	Replies(ctx context.Context, limit int) ([]mysql.ReplyRecord, error)
}

// Server 负责暴露状态查询接口。
type Server struct {
	addr   string
	source StatusSource
	token  string
}

// Option 定义服务的可选配置。
type Option func(*Server)

// WithAuthToken 要求 /api/v1/ 下的请求携带 "Authorization: Bearer <token>"。
func WithAuthToken(token string) Option {
	return func(s *Server) { s.token = strings.TrimSpace(token) }
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, source StatusSource, opts ...Option) *Server {
	s := &Server{addr: addr, source: source}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回挂载了全部路由的处理器。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/healthz", instrument("/healthz", http.HandlerFunc(s.handleHealth)))
	mux.Handle("/api/v1/replies", instrument("/api/v1/replies", s.requireToken(http.HandlerFunc(s.handleReplies))))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Named("api").Info("状态接口已启动", slog.String("addr", s.addr))

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

type healthResponse struct {
	Status string     `json:"status"`
	Bot    bot.Status `json:"bot"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.source == nil {
		http.Error(w, "机器人未初始化", http.StatusServiceUnavailable)
		return
	}
	st := s.source.Status()
	resp := healthResponse{Status: "ok", Bot: st}
	code := http.StatusOK
	if st.State == bot.StateFailed {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleReplies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	limit := defaultReplyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit 必须为正整数", http.StatusBadRequest)
			return
		}
		limit = min(parsed, maxReplyLimit)
	}
	if s.source == nil {
		http.Error(w, "机器人未初始化", http.StatusServiceUnavailable)
		return
	}
	records, err := s.source.Replies(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []mysql.ReplyRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument 记录每个请求的耗时与状态码。
func instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(rec, r)
		metrics.ObserveHTTPRequest(name, r.Method, rec.status, time.Since(started))
	})
}

// requireToken 校验 Bearer Token，拒绝的请求写入审计日志。未配置 token 时直接放行。
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(presented)), []byte(s.token)) != 1 {
			status := http.StatusUnauthorized
			if ok {
				status = http.StatusForbidden
			}
			http.Error(w, http.StatusText(status), status)
			logger.Audit().Warn("access_denied",
				slog.String("path", r.URL.Path),
				slog.String("method", r.Method),
				slog.Int("status", status))
			return
		}
		next.ServeHTTP(w, r)
	})
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
