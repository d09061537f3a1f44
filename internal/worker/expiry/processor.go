// Package expiry は配達スケジュールを消化し終えた契約を満了に遷移させる
// 日次バッチを提供する。配達レコードは一切変更しない。
package expiry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/milkrun/internal/clock"
	"github.com/hitoshi/milkrun/internal/delivery"
	"github.com/hitoshi/milkrun/internal/repository"
)

// Result は満了バッチ1回分の実行サマリ。
type Result struct {
	CandidatesChecked    int // end_date条件で選択された候補数
	SubscriptionsExpired int // expiredに遷移した契約数
	SubscriptionsSkipped int // 検証により遷移しなかった契約数
	SubscriptionsFailed  int // 永続化エラーでスキップした契約数
}

// Processor は契約満了の日次バッチプロセッサ。
// end_dateによる候補選択のあと、配達シーケンスから実効最終配達日を再計算して
// 検証する（多層防御、省略不可）。同夜の補填でEndDateが延長された契約を
// 古いend_dateに基づいて誤満了させないための仕組み。
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

// Run は営業日の終端（23:59:59.999）を評価境界として満了判定を実行する。
// 選択条件: アクティブ契約 かつ end_date < 当日の終端。
// 満了済みの契約は選択条件に一致しなくなるため、構造的に冪等。
func (p *Processor) Run(ctx context.Context) (Result, error) {
	today := p.clock.Today()
	endOfDay := p.clock.EndOfDay(today)

	ids, err := p.subRepo.ListActiveIDsEndingBefore(ctx, endOfDay)
	if err != nil {
		return Result{}, fmt.Errorf("満了候補の取得に失敗しました: %w", err)
	}

	var result Result
	result.CandidatesChecked = len(ids)

	for _, id := range ids {
		expired, err := p.processOne(ctx, id, today)
		if err != nil {
			p.logger.Error("契約の満了処理に失敗しました",
				slog.String("subscription_id", id),
				slog.String("error", err.Error()),
			)
			result.SubscriptionsFailed++
			continue
		}
		if expired {
			result.SubscriptionsExpired++
		} else {
			result.SubscriptionsSkipped++
		}
	}

	p.logger.Info("満了バッチが完了しました",
		slog.Time("business_day", today),
		slog.Int("candidates_checked", result.CandidatesChecked),
		slog.Int("subscriptions_expired", result.SubscriptionsExpired),
		slog.Int("subscriptions_skipped", result.SubscriptionsSkipped),
		slog.Int("subscriptions_failed", result.SubscriptionsFailed),
	)

	return result, nil
}

// processOne は1契約の満了判定と遷移を load-mutate-save の1単位として実行する。
func (p *Processor) processOne(ctx context.Context, id string, today time.Time) (bool, error) {
	sub, err := p.subRepo.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	if sub == nil {
		p.logger.Warn("満了候補の契約が見つかりませんでした",
			slog.String("subscription_id", id),
		)
		return false, nil
	}

	last, ok := sub.LastActiveDeliveryDate()
	if !ok {
		// 補償・請求に関わるデータのため自動修正はせず、警告のみ残す。
		p.logger.Warn("アクティブな契約に有効な配達がありません",
			slog.String("subscription_id", sub.ID),
			slog.Time("end_date", sub.EndDate),
		)
		return false, nil
	}

	if !sameCalendarDay(last, sub.EndDate) {
		// 保存済みend_dateと再計算した実効最終配達日の不一致は整合性警告。
		// 再計算値が当日以降なら満了対象外なのでそのままスキップ、
		// 過去でも不一致のまま満了させず、調査のため警告に留める。
		p.logger.Warn("end_dateと実効最終配達日が一致していません",
			slog.String("subscription_id", sub.ID),
			slog.Time("end_date", sub.EndDate),
			slog.Time("recomputed_last_active", last),
		)
		return false, nil
	}

	now := p.clock.Now()
	if !delivery.ApplyExpiry(sub, today, now) {
		return false, nil
	}

	if err := p.subRepo.Save(ctx, sub); err != nil {
		return false, err
	}

	p.logger.Info("契約を満了に遷移させました",
		slog.String("subscription_id", sub.ID),
		slog.Time("end_date", sub.EndDate),
		slog.Time("last_active_delivery", last),
	)

	return true, nil
}

// sameCalendarDay は2つの時刻が同一暦日かを判定する。
func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
