package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/inventory/internal/manager"
	"github.com/hitoshi/inventory/internal/middleware"
	"github.com/hitoshi/inventory/internal/model"
)

// HealthChecker はヘルスチェック用のインターフェース。
// *sql.DBがこのインターフェースを満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// Metrics はHTTPリクエストと書き込み結果を記録するインターフェース。
type Metrics interface {
	middleware.RequestObserver
	SaveResultRecorder
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// リソース
	DomainManager   *manager.Manager
	HostManager     *manager.HostManager
	DomainValidator Validator
	HostValidator   Validator
	PublicURL       string
	DefaultPageSize int

	// 本番モード以外では500レスポンスに詳細を含める
	Detailed bool

	// ミドルウェア依存
	CORSAllowedOrigin string
	Metrics           Metrics

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → SecurityHeaders → CORS → StripSlashes
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	var (
		observer middleware.RequestObserver
		recorder SaveResultRecorder
	)
	if deps.Metrics != nil {
		observer = deps.Metrics
		recorder = deps.Metrics
	}

	domainController := NewDomainController(deps.DomainManager, ControllerOptions{
		Validator: deps.DomainValidator,
		PublicURL: deps.PublicURL,
		Recorder:  recorder,
		Logger:    logger,
		Detailed:  deps.Detailed,
	})
	hostController := NewHostController(deps.HostManager, ControllerOptions{
		Validator: deps.HostValidator,
		PublicURL: deps.PublicURL,
		Recorder:  recorder,
		Logger:    logger,
		Detailed:  deps.Detailed,
	})
	dispatcher := NewDispatcher(deps.DomainManager, domainController, hostController,
		deps.DefaultPageSize, logger, deps.Detailed)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(logger, deps.Detailed))
	r.Use(middleware.NewLoggingMiddleware(logger, observer))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewStripSlashesMiddleware())

	// パスの形に合わないリクエストはすべて400として扱う
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewBadRequestError(model.MessageInvalidURI))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewUnsupportedMethodError(r.Method))
	})

	// 運用エンドポイント
	r.Get("/health", healthHandler(deps.HealthChecker, logger))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// ドメイン・ホスト
	r.Handle(routeDomains, dispatcher)
	r.Handle(routeDomain, dispatcher)
	r.Handle(routeHosts, dispatcher)
	r.Handle(routeHost, dispatcher)

	return r
}

// healthHandler はヘルスチェックのハンドラーを返す。
// checkerがnilの場合は常に200を返す。
func healthHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				logger.Error("health check failed", slog.String("error", err.Error()))
				middleware.WriteEnvelope(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}, false)
				return
			}
		}
		middleware.WriteEnvelope(w, http.StatusOK, map[string]string{"status": "ok"}, false)
	}
}
