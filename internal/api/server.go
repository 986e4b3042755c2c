package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	xerrors "IntentX/internal/errors"
	"IntentX/internal/intent"
	"IntentX/internal/ledger"
	"IntentX/internal/observability/metrics"
	"IntentX/internal/vault"
	"IntentX/pkg/logger"
)

const maxBodyBytes = 1 << 20

// LedgerReader 是查询交易记录所需的能力。
type LedgerReader interface {
	Recent(n int) []ledger.Record
	All() []ledger.Record
	Summary() ledger.Summary
}

// Server 负责暴露 REST 接口。
type Server struct {
	addr    string
	intents *intent.Service
	store   intent.Store
	batch   *intent.BatchCoordinator
	ledger  LedgerReader
	vaults  *vault.Service
	router  *mux.Router
}

// Option 定义可选配置。
type Option func(*Server)

// WithBatchCoordinator 配置批量处理器。未配置时批量接口返回 503。
func WithBatchCoordinator(batch *intent.BatchCoordinator) Option {
	return func(s *Server) {
		s.batch = batch
	}
}

// WithIntentStore 配置意图列表与统计查询所用的存储。
func WithIntentStore(store intent.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithLedger 配置交易记录查询。
func WithLedger(reader LedgerReader) Option {
	return func(s *Server) {
		s.ledger = reader
	}
}

// WithVaults 配置金库服务。
func WithVaults(vaults *vault.Service) Option {
	return func(s *Server) {
		s.vaults = vaults
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, intents *intent.Service, opts ...Option) *Server {
	s := &Server{addr: addr, intents: intents}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.router = s.routes()
	return s
}

// Handler 返回完整的路由，便于测试或嵌入其他服务。
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, xerrors.New(xerrors.CodeNotFound, "route not found"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Code: xerrors.CodeInvalidArgument})
	})

	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/intent/parse", s.handleParse).Methods(http.MethodPost)
	api.HandleFunc("/intent/execute", s.handleExecute).Methods(http.MethodPost)
	api.HandleFunc("/intent/batch", s.handleBatch).Methods(http.MethodPost)
	api.HandleFunc("/intent/aa-gasless", s.handleGasless).Methods(http.MethodPost)
	api.HandleFunc("/intent/{id}", s.handleGetIntent).Methods(http.MethodGet)
	api.HandleFunc("/intent/{id}/logs", s.handleIntentLogs).Methods(http.MethodGet)
	api.HandleFunc("/intents", s.handleListIntents).Methods(http.MethodGet)
	api.HandleFunc("/intents/stats", s.handleIntentStats).Methods(http.MethodGet)
	api.HandleFunc("/transactions/recent", s.handleRecentTransactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions", s.handleAllTransactions).Methods(http.MethodGet)
	api.HandleFunc("/analytics/summary", s.handleAnalyticsSummary).Methods(http.MethodGet)
	api.HandleFunc("/vaults", s.handleListVaults).Methods(http.MethodGet)
	api.HandleFunc("/vaults/action", s.handleVaultAction).Methods(http.MethodPost)
	api.HandleFunc("/vaults/{id}", s.handleGetVault).Methods(http.MethodGet)

	r.Use(instrument)
	return r
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.router),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Named("api").Info("HTTP 服务已启动", slog.String("address", s.addr))

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

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeError(w, xerrors.New(xerrors.CodeUnavailable, "服务已关闭"))
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument 按路由模板记录请求量与耗时，避免路径参数撑爆指标基数。
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		elapsed := time.Since(start)
		metrics.ObserveHTTPRequest(route, r.Method, rec.status, elapsed)
		logger.Named("api").Debug("请求完成",
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", rec.status),
			slog.Duration("elapsed", elapsed),
		)
	})
}

type errorResponse struct {
	Error string       `json:"error"`
	Code  xerrors.Code `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError 按错误码映射状态码。5xx 只返回通用信息，细节写入日志。
func writeError(w http.ResponseWriter, err error) {
	status := xerrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.L().Error("请求处理失败",
			slog.Any("error", err),
			slog.String("error_code", string(xerrors.CodeOf(err))),
			slog.String("severity", string(xerrors.SeverityOf(err))),
		)
	}
	if xerrors.RetryableError(err) {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, errorResponse{Error: xerrors.Exposed(err), Code: xerrors.CodeOf(err)})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败")
	}
	return nil
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
