package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/inventory/internal/config"
	"github.com/hitoshi/inventory/internal/database"
	"github.com/hitoshi/inventory/internal/handler"
	"github.com/hitoshi/inventory/internal/listen"
	"github.com/hitoshi/inventory/internal/logger"
	"github.com/hitoshi/inventory/internal/manager"
	"github.com/hitoshi/inventory/internal/metrics"
	"github.com/hitoshi/inventory/internal/repository"
	"github.com/hitoshi/inventory/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、設定されたレベルでJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.Setup(w, cfg.LogLevel)
	slog.SetDefault(log)

	return cfg, log, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	// healthcheck は軽量サブコマンドのため、バックエンドを開かない
	if cmd == CommandHealthcheck {
		return runHealthcheck(cfg)
	}

	log.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("listen", cfg.Listen),
		slog.String("public_url", cfg.PublicURL),
		slog.String("repository", cfg.Repository),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg, log)
	case CommandMigrate:
		return runMigrate(cfg, log)
	default:
		return runServe(ctx, cfg, log)
	}
}

// backend は選択されたリポジトリ実装とその付随リソースをまとめたもの。
type backend struct {
	domains repository.DomainRepository
	hosts   repository.HostRepository
	targets []cleanup.Target
	health  handler.HealthChecker
	db      *sql.DB
}

// Close はDB接続を閉じる。メモリバックエンドでは何もしない。
func (b *backend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// openBackend はIB_REPOSITORYに応じてリポジトリを初期化する。
func openBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) (*backend, error) {
	switch cfg.Repository {
	case config.RepositoryMemory:
		domains := repository.NewMemoryDomainRepo()
		hosts := repository.NewMemoryHostRepo()
		log.Info("using in-memory repository")
		return &backend{
			domains: domains,
			hosts:   hosts,
			targets: purgeTargets(domains, hosts),
		}, nil
	default:
		db, err := database.Connect(ctx, cfg.DatabaseURL())
		if err != nil {
			return nil, err
		}
		log.Info("database connection established",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL())),
		)
		domains := repository.NewPostgresDomainRepo(db)
		hosts := repository.NewPostgresHostRepo(db)
		return &backend{
			domains: domains,
			hosts:   hosts,
			targets: purgeTargets(domains, hosts),
			health:  db,
			db:      db,
		}, nil
	}
}

// purgeTargets はクリーンアップ対象をホスト、ドメインの順で返す。
func purgeTargets(domains, hosts repository.Purger) []cleanup.Target {
	return []cleanup.Target{
		{Name: "hosts", Purger: hosts},
		{Name: "domains", Purger: domains},
	}
}

// newEventLogger はリポジトリの変更をDEBUGレベルで記録するリスナーを返す。
func newEventLogger(log *slog.Logger) repository.EventListener {
	return repository.EventListenerFunc(func(ctx context.Context, ev repository.Event) {
		log.DebugContext(ctx, "repository event",
			slog.String("resource", string(ev.Resource)),
			slog.String("event", string(ev.Type)),
			slog.String("id", ev.Entity.ID),
			slog.String("name", ev.Entity.Name),
		)
	})
}

// newHandler はバックエンドからマネージャーとルーターを組み立てる。
func newHandler(cfg *config.Config, log *slog.Logger, be *backend, collector *metrics.Collector, gatherer prometheus.Gatherer) http.Handler {
	listeners := []repository.EventListener{newEventLogger(log), collector}
	domains := repository.NewObservableDomainRepo(be.domains, log, listeners...)
	hosts := repository.NewObservableHostRepo(be.hosts, log, listeners...)

	return handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		DomainManager:     manager.NewDomainManager(domains, hosts),
		HostManager:       manager.NewHostManager(hosts),
		PublicURL:         cfg.PublicURL,
		DefaultPageSize:   cfg.DefaultPageSize,
		Detailed:          !cfg.IsProduction(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Metrics:           collector,
		HealthChecker:     be.health,
		MetricsHandler:    metrics.Handler(gatherer),
	})
}

// newRegistry はアプリケーションのメトリクスとGoランタイムのメトリクスを登録したレジストリを返す。
func newRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	return reg, metrics.NewCollector(reg)
}

// runServe はAPIサーバーモードで起動する。
// バックエンドを開き、クリーンアップジョブをバックグラウンドで起動してHTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// 1. バックエンド
	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}
	defer be.Close()

	// 2. メトリクスとルーター
	reg, collector := newRegistry()
	router := newHandler(cfg, log, be, collector, reg)

	// 3. リッスン
	addr, err := listen.Parse(cfg.Listen)
	if err != nil {
		return fmt.Errorf("invalid IB_LISTEN: %w", err)
	}
	ln, err := listen.Listen(addr, cfg.MaxConnections)
	if err != nil {
		return err
	}

	// 4. クリーンアップジョブ
	jobCtx, cancelJob := context.WithCancel(ctx)
	defer cancelJob()
	job := cleanup.NewCleanupJob(be.targets, log, collector)
	job.Retention = cfg.PurgeRetention
	go job.Start(jobCtx, cfg.PurgeInterval)

	// 5. HTTPサーバー
	server := &http.Server{
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("API server starting",
			slog.String("addr", addr.String()),
			slog.Int("max_connections", cfg.MaxConnections),
		)
		serveErr <- server.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// PostgreSQLに接続し、論理削除済みレコードのクリーンアップを定期実行する。
// ctxがキャンセルされるまでブロックする。
func runWorker(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	if cfg.Repository != config.RepositoryPostgres {
		return fmt.Errorf("worker requires IB_REPOSITORY=%s, got %q", config.RepositoryPostgres, cfg.Repository)
	}

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}
	defer be.Close()

	job := cleanup.NewCleanupJob(be.targets, log, nil)
	job.Retention = cfg.PurgeRetention

	log.Info("worker starting",
		slog.Duration("purge_interval", cfg.PurgeInterval),
		slog.Duration("purge_retention", cfg.PurgeRetention),
	)

	job.Start(ctx, cfg.PurgeInterval)

	log.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config, log *slog.Logger) error {
	log.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL())),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL())
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// IB_LISTENのアドレス（TCPまたはUNIXソケット）の/healthにリクエストを送り、結果を返す。
func runHealthcheck(cfg *config.Config) error {
	addr, err := listen.Parse(cfg.Listen)
	if err != nil {
		return fmt.Errorf("invalid IB_LISTEN: %w", err)
	}

	client, baseURL := listen.HTTPClient(addr, 5*time.Second)
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
