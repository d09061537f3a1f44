// Package concession は未配達の検出と補填を行う日次バッチを提供する。
// 営業日の終端評価時点でまだscheduledのままの当日配達をconcessionに遷移させ、
// 契約末尾への補填配達の追加とEndDateの延長で顧客に補償する。
package concession

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/milkrun/internal/clock"
	"github.com/hitoshi/milkrun/internal/delivery"
	"github.com/hitoshi/milkrun/internal/model"
	"github.com/hitoshi/milkrun/internal/repository"
)

// Result は補填バッチ1回分の実行サマリ。
type Result struct {
	SubscriptionsProcessed int // 補填を適用し保存した契約数
	ConcessionsApplied     int // 補填した未配達の件数
	SubscriptionsSkipped   int // 整合性警告等でスキップした契約数
	SubscriptionsFailed    int // 永続化エラーでスキップした契約数
}

// Processor は未配達補填の日次バッチプロセッサ。
// 契約ごとに load-mutate-save を1単位として実行し、
// 1契約の失敗が残りの契約の処理を中断させないよう隔離する。
type Processor struct {
	subRepo repository.SubscriptionRepository
	clock   *clock.BusinessClock
	logger  *slog.Logger
}

// NewProcessor はProcessorの新しいインスタンスを生成する。
func NewProcessor(subRepo repository.SubscriptionRepository, businessClock *clock.BusinessClock, logger *slog.Logger) *Processor {
	return &Processor{
		subRepo: subRepo,
		clock:   businessClock,
		logger:  logger,
	}
}

// Run は当日分の未配達を検出して補填を適用する。
// 選択条件: アクティブ契約 かつ 当日窓 [today, today+1日) にscheduled配達が1件以上。
// 同日の再実行は、当日のscheduled配達が既にconcessionへ遷移済みのため安全な
// no-opになる（冪等）。候補一覧の取得自体に失敗した場合のみエラーを返す。
func (p *Processor) Run(ctx context.Context) (Result, error) {
	today := p.clock.Today()
	tomorrow := today.AddDate(0, 0, 1)

	ids, err := p.subRepo.ListActiveIDsWithScheduledDeliveryBetween(ctx, today, tomorrow)
	if err != nil {
		return Result{}, fmt.Errorf("補填候補の取得に失敗しました: %w", err)
	}

	var result Result
	for _, id := range ids {
		applied, err := p.processOne(ctx, id, today)
		if err != nil {
			// 1契約の失敗は記録してスキップし、残りの契約の処理を続行する。
			// 同一実行内での再試行は行わず、翌日の実行での再処理に委ねる。
			p.logger.Error("契約の補填処理に失敗しました",
				slog.String("subscription_id", id),
				slog.String("error", err.Error()),
			)
			result.SubscriptionsFailed++
			continue
		}
		if applied == 0 {
			result.SubscriptionsSkipped++
			continue
		}
		result.SubscriptionsProcessed++
		result.ConcessionsApplied += applied
	}

	p.logger.Info("補填バッチが完了しました",
		slog.Time("business_day", today),
		slog.Int("subscriptions_processed", result.SubscriptionsProcessed),
		slog.Int("concessions_applied", result.ConcessionsApplied),
		slog.Int("subscriptions_skipped", result.SubscriptionsSkipped),
		slog.Int("subscriptions_failed", result.SubscriptionsFailed),
	)

	return result, nil
}

// processOne は1契約分の補填を load-mutate-save の1単位として実行する。
// 適用した補填の件数を返す。
func (p *Processor) processOne(ctx context.Context, id string, today time.Time) (int, error) {
	sub, err := p.subRepo.FindByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if sub == nil {
		p.logger.Warn("補填候補の契約が見つかりませんでした",
			slog.String("subscription_id", id),
		)
		return 0, nil
	}
	if sub.Status != model.SubscriptionStatusActive {
		// 候補選択と読み込みの間にステータスが変わった場合。対象外として扱う。
		return 0, nil
	}
	if len(sub.Deliveries) == 0 {
		// 補償・請求に関わるデータのため自動修正はせず、警告のみ残す。
		p.logger.Warn("アクティブな契約に配達シーケンスがありません",
			slog.String("subscription_id", sub.ID),
		)
		return 0, nil
	}

	missed := sub.ScheduledDeliveriesOn(today)
	if len(missed) == 0 {
		// 既に補填済み（再実行時）または外部で配達完了済み。
		return 0, nil
	}

	now := p.clock.Now()
	applied := 0
	for _, d := range missed {
		makeup, err := delivery.ApplyConcession(sub, d, now)
		if err != nil {
			return 0, err
		}
		applied++
		p.logger.Info("未配達を補填しました",
			slog.String("subscription_id", sub.ID),
			slog.String("delivery_id", d.ID),
			slog.Time("original_date", d.Date),
			slog.Time("rescheduled_to", makeup.Date),
			slog.String("slot", string(makeup.Slot)),
		)
	}

	// 補填配達の追加とEndDate延長は同一の保存単位でなければならない。
	if err := p.subRepo.Save(ctx, sub); err != nil {
		return 0, err
	}

	return applied, nil
}
