// Package app はアプリケーションの初期化とモード別の起動を提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/milkrun/internal/clock"
	"github.com/hitoshi/milkrun/internal/config"
	"github.com/hitoshi/milkrun/internal/database"
	"github.com/hitoshi/milkrun/internal/handler"
	"github.com/hitoshi/milkrun/internal/logger"
	"github.com/hitoshi/milkrun/internal/metrics"
	"github.com/hitoshi/milkrun/internal/middleware"
	"github.com/hitoshi/milkrun/internal/repository"
	"github.com/hitoshi/milkrun/internal/subscription"
	"github.com/hitoshi/milkrun/internal/worker/concession"
	"github.com/hitoshi/milkrun/internal/worker/expiry"
	"github.com/hitoshi/milkrun/internal/worker/nightly"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("business_timezone", cfg.BusinessTimezone),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. 営業日クロック
	businessClock, err := clock.NewBusinessClock(cfg.BusinessTimezone)
	if err != nil {
		return err
	}

	// 3. リポジトリとサービスの初期化
	subRepo := repository.NewPostgresSubscriptionRepo(db)
	subService := subscription.NewService(subRepo, businessClock)

	// 4. メトリクスとバッチプロセッサの初期化
	// 管理APIからのオンデマンド実行用に夜間パイプラインもワイヤリングする
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	concessionProc := concession.NewProcessor(subRepo, businessClock, slog.Default())
	expiryProc := expiry.NewProcessor(subRepo, businessClock, slog.Default())
	pipeline := nightly.NewScheduler(
		concessionProc, expiryProc, businessClock, slog.Default(), collector,
		cfg.BatchRunHour, cfg.BatchRunMinute,
	)

	// 5. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		HealthChecker: db,
		Logger:        slog.Default(),
		RateLimiter:   rateLimiter,
		AdminAPIKey:   cfg.AdminAPIKey,
		Gatherer:      registry,

		SubscriptionService: subService,
		NightlyRunner:       pipeline,
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker は夜間バッチワーカーモードで起動する。
// DB接続を開き、夜間バッチスケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. 営業日クロック
	businessClock, err := clock.NewBusinessClock(cfg.BusinessTimezone)
	if err != nil {
		return err
	}

	// 3. リポジトリとバッチプロセッサの初期化
	subRepo := repository.NewPostgresSubscriptionRepo(db)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	concessionProc := concession.NewProcessor(subRepo, businessClock, slog.Default())
	expiryProc := expiry.NewProcessor(subRepo, businessClock, slog.Default())

	// 4. 夜間スケジューラの起動
	scheduler := nightly.NewScheduler(
		concessionProc, expiryProc, businessClock, slog.Default(), collector,
		cfg.BatchRunHour, cfg.BatchRunMinute,
	)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.String("business_timezone", cfg.BusinessTimezone),
		slog.Int("batch_run_hour", cfg.BatchRunHour),
		slog.Int("batch_run_minute", cfg.BatchRunMinute),
	)

	// Prometheusスクレイプ用のメトリクスエンドポイントをバックグラウンドで提供
	metricsServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: metricsMux(registry),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()
	defer metricsServer.Close()

	// 夜間スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// metricsMux は/metricsのみを提供するワーカー用のHTTPハンドラーを返す。
func metricsMux(registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(registry))
	return mux
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
