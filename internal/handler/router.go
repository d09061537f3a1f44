package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/milkrun/internal/metrics"
	"github.com/hitoshi/milkrun/internal/middleware"
)

// HealthChecker はヘルスチェックでの依存先疎通確認インターフェース。
// *sql.DB がそのまま満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	HealthChecker HealthChecker
	Logger        *slog.Logger
	RateLimiter   *middleware.RateLimiter
	AdminAPIKey   string
	Gatherer      prometheus.Gatherer

	SubscriptionService SubscriptionServiceInterface
	NightlyRunner       NightlyRunner
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → RateLimit(General)
//
// /health と /metrics はレート制限の外に配置する。
// /api/admin/* はさらにAPIキー認証と管理用レート制限を通す。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	subHandler := NewSubscriptionHandler(deps.SubscriptionService)
	jobHandler := NewJobHandler(deps.NightlyRunner)

	// --- 監視用ルート（レート制限なし） ---

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := deps.HealthChecker.PingContext(req.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	// --- 契約照会・配達変更ルート ---

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/subscriptions", func(r chi.Router) {
			r.Get("/", subHandler.ListSubscriptions)
			r.Get("/{id}", subHandler.GetSubscription)
			r.Get("/{id}/progress", subHandler.GetProgress)
			r.Post("/{id}/deliveries/{deliveryID}/cancel", subHandler.CancelDelivery)
			r.Post("/{id}/deliveries/{deliveryID}/pause", subHandler.PauseDelivery)
		})
	})

	// --- 管理ルート（APIキー認証 + 管理用レート制限） ---

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAPIKeyMiddleware(deps.AdminAPIKey))
		r.Use(deps.RateLimiter.AdminMiddleware())

		r.Post("/api/admin/jobs/nightly", jobHandler.RunNightly)
	})

	return r
}
