// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// バッチジョブ名のラベル値。
const (
	JobConcession = "concession"
	JobExpiry     = "expiry"
)

// BatchRecorder は夜間バッチのメトリクス記録インターフェース。
// スケジューラから利用する。
type BatchRecorder interface {
	RecordRunDuration(job string, duration time.Duration)
	RecordRunFailure(job string)
	RecordSubscriptionsProcessed(job string, count int)
	RecordSubscriptionFailures(job string, count int)
	RecordConcessionsApplied(count int)
	RecordSubscriptionsExpired(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	runDuration          *prometheus.HistogramVec
	runFailures          *prometheus.CounterVec
	subsProcessed        *prometheus.CounterVec
	subFailures          *prometheus.CounterVec
	concessionsApplied   prometheus.Counter
	subscriptionsExpired prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "milkrun_batch_run_duration_seconds",
			Help:    "バッチ実行時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		runFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "milkrun_batch_run_failures_total",
			Help: "バッチ実行失敗の合計数",
		}, []string{"job"}),
		subsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "milkrun_batch_subscriptions_processed_total",
			Help: "バッチが処理した契約の合計数",
		}, []string{"job"}),
		subFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "milkrun_batch_subscription_failures_total",
			Help: "バッチ内で失敗しスキップされた契約の合計数",
		}, []string{"job"}),
		concessionsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "milkrun_concessions_applied_total",
			Help: "補填された未配達の合計数",
		}),
		subscriptionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "milkrun_subscriptions_expired_total",
			Help: "満了に遷移した契約の合計数",
		}),
	}

	reg.MustRegister(
		c.runDuration,
		c.runFailures,
		c.subsProcessed,
		c.subFailures,
		c.concessionsApplied,
		c.subscriptionsExpired,
	)

	return c
}

// RecordRunDuration はバッチ実行時間を記録する。
func (c *Collector) RecordRunDuration(job string, duration time.Duration) {
	c.runDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordRunFailure はバッチ実行失敗を記録する。
func (c *Collector) RecordRunFailure(job string) {
	c.runFailures.WithLabelValues(job).Inc()
}

// RecordSubscriptionsProcessed はバッチが処理した契約数を記録する。
func (c *Collector) RecordSubscriptionsProcessed(job string, count int) {
	c.subsProcessed.WithLabelValues(job).Add(float64(count))
}

// RecordSubscriptionFailures はバッチ内でスキップされた契約数を記録する。
func (c *Collector) RecordSubscriptionFailures(job string, count int) {
	c.subFailures.WithLabelValues(job).Add(float64(count))
}

// RecordConcessionsApplied は補填された未配達数を記録する。
func (c *Collector) RecordConcessionsApplied(count int) {
	c.concessionsApplied.Add(float64(count))
}

// RecordSubscriptionsExpired は満了に遷移した契約数を記録する。
func (c *Collector) RecordSubscriptionsExpired(count int) {
	c.subscriptionsExpired.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ BatchRecorder = (*Collector)(nil)
