// Package subscription は契約管理のドメインロジックを提供する。
// 契約・配達履歴の照会と、サポート向けの配達キャンセル/一時停止を提供する。
package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/milkrun/internal/clock"
	"github.com/hitoshi/milkrun/internal/model"
	"github.com/hitoshi/milkrun/internal/repository"
)

// Progress は契約の配達進捗サマリ。
// 下流の請求・進捗ビューとの契約: concessionはdeliveredにもscheduledにも
// 含めず独立して数える。履歴全体の件数（Total）には含める。
type Progress struct {
	SubscriptionID string
	Total          int // 全配達履歴（concession含む）
	Delivered      int // 配達完了のみ（concessionは含めない）
	Scheduled      int
	Concession     int
	Cancelled      int
	Paused         int
}

// Service は契約管理のサービス層。
type Service struct {
	subRepo repository.SubscriptionRepository
	clock   *clock.BusinessClock
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(subRepo repository.SubscriptionRepository, businessClock *clock.BusinessClock) *Service {
	return &Service{
		subRepo: subRepo,
		clock:   businessClock,
	}
}

// GetSubscription は契約を配達履歴付きで取得する。
func (s *Service) GetSubscription(ctx context.Context, id string) (*model.Subscription, error) {
	sub, err := s.subRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("契約の取得に失敗しました: %w", err)
	}
	if sub == nil {
		return nil, model.NewSubscriptionNotFoundError(id)
	}
	return sub, nil
}

// ListSubscriptions は顧客の契約一覧を返す。
func (s *Service) ListSubscriptions(ctx context.Context, customerID string) ([]*model.Subscription, error) {
	subs, err := s.subRepo.ListByCustomerID(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("契約一覧の取得に失敗しました: %w", err)
	}
	return subs, nil
}

// GetProgress は契約の配達進捗サマリを返す。
func (s *Service) GetProgress(ctx context.Context, id string) (*Progress, error) {
	sub, err := s.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}

	progress := &Progress{SubscriptionID: sub.ID}
	for _, d := range sub.Deliveries {
		progress.Total++
		switch d.Status {
		case model.DeliveryStatusDelivered:
			progress.Delivered++
		case model.DeliveryStatusScheduled:
			progress.Scheduled++
		case model.DeliveryStatusConcession:
			progress.Concession++
		case model.DeliveryStatusCancelled:
			progress.Cancelled++
		case model.DeliveryStatusPaused:
			progress.Paused++
		}
	}
	return progress, nil
}

// CancelDelivery は配達予定の配達をキャンセルする。
// 締め切り前のscheduled配達のみ対象。EndDateは残った有効な配達から再計算し、
// 最終日の配達をキャンセルした場合もend_dateと実効最終配達日の整合を保つ。
func (s *Service) CancelDelivery(ctx context.Context, subscriptionID, deliveryID string) (*model.Delivery, error) {
	return s.settleDelivery(ctx, subscriptionID, deliveryID, model.DeliveryStatusCancelled)
}

// PauseDelivery は配達予定の配達を一時停止する。
// 一時停止された配達は補填・満了両バッチのスキャン対象から外れる。
func (s *Service) PauseDelivery(ctx context.Context, subscriptionID, deliveryID string) (*model.Delivery, error) {
	return s.settleDelivery(ctx, subscriptionID, deliveryID, model.DeliveryStatusPaused)
}

// settleDelivery は scheduled → cancelled | paused 遷移を集約に適用して保存する。
func (s *Service) settleDelivery(ctx context.Context, subscriptionID, deliveryID string, to model.DeliveryStatus) (*model.Delivery, error) {
	sub, err := s.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != model.SubscriptionStatusActive {
		return nil, model.NewSubscriptionInactiveError(sub.Status)
	}

	var target *model.Delivery
	for _, d := range sub.Deliveries {
		if d.ID == deliveryID {
			target = d
			break
		}
	}
	if target == nil {
		return nil, model.NewDeliveryNotFoundError(deliveryID)
	}
	if target.Status != model.DeliveryStatusScheduled {
		return nil, model.NewInvalidTransitionError(target.Status, to)
	}

	now := s.clock.Now()
	if !now.Before(target.CutoffTime) {
		return nil, model.NewCutoffPassedError(deliveryID)
	}

	target.Status = to
	target.UpdatedAt = now
	if to == model.DeliveryStatusCancelled {
		canceledAt := now
		target.CanceledAt = &canceledAt
	}

	// end_date == max(date over 有効配達) の不変条件を保存前に回復する。
	if last, ok := sub.LastActiveDeliveryDate(); ok {
		sub.EndDate = normalizeDate(last)
	}
	sub.UpdatedAt = now

	if err := s.subRepo.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("配達の保存に失敗しました: %w", err)
	}

	return target, nil
}

// normalizeDate は時刻を切り捨てて暦日の0時に正規化する。
func normalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
