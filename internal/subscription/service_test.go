package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/milkrun/internal/clock"
	"github.com/hitoshi/milkrun/internal/model"
)

var jst = time.FixedZone("JST", 9*60*60)

type mockSubRepo struct {
	subs      map[string]*model.Subscription
	byCust    map[string][]*model.Subscription
	saveCalls int
	saveErr   error
	findErr   error
}

func newMockSubRepo(subs ...*model.Subscription) *mockSubRepo {
	m := &mockSubRepo{
		subs:   make(map[string]*model.Subscription),
		byCust: make(map[string][]*model.Subscription),
	}
	for _, s := range subs {
		m.subs[s.ID] = s
		m.byCust[s.CustomerID] = append(m.byCust[s.CustomerID], s)
	}
	return m
}

func (m *mockSubRepo) FindByID(_ context.Context, id string) (*model.Subscription, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.subs[id], nil
}

func (m *mockSubRepo) ListByCustomerID(_ context.Context, customerID string) ([]*model.Subscription, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.byCust[customerID], nil
}

func (m *mockSubRepo) Create(_ context.Context, sub *model.Subscription) error {
	m.subs[sub.ID] = sub
	return nil
}

func (m *mockSubRepo) Save(_ context.Context, sub *model.Subscription) error {
	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.subs[sub.ID] = sub
	return nil
}

func (m *mockSubRepo) ListActiveIDsWithScheduledDeliveryBetween(_ context.Context, _, _ time.Time) ([]string, error) {
	return nil, nil
}

func (m *mockSubRepo) ListActiveIDsEndingBefore(_ context.Context, _ time.Time) ([]string, error) {
	return nil, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, jst)
}

// 配達2件（03-10 delivered、03-11 scheduled）のアクティブ契約。
func newTestSubscription() *model.Subscription {
	return &model.Subscription{
		ID:         "sub-1",
		CustomerID: "cust-1",
		Status:     model.SubscriptionStatusActive,
		Slot:       model.SlotEvening,
		StartDate:  day(2024, 3, 10),
		EndDate:    day(2024, 3, 11),
		Deliveries: []*model.Delivery{
			{
				ID:         "d-1",
				Date:       day(2024, 3, 10),
				Slot:       model.SlotEvening,
				Status:     model.DeliveryStatusDelivered,
				CutoffTime: time.Date(2024, 3, 10, 16, 0, 0, 0, jst),
			},
			{
				ID:         "d-2",
				Date:       day(2024, 3, 11),
				Slot:       model.SlotEvening,
				Status:     model.DeliveryStatusScheduled,
				CutoffTime: time.Date(2024, 3, 11, 16, 0, 0, 0, jst),
			},
		},
	}
}

func newTestService(repo *mockSubRepo, now time.Time) *Service {
	return NewService(repo, clock.NewFixedClock(now))
}

func TestService_GetSubscription_NotFound(t *testing.T) {
	svc := newTestService(newMockSubRepo(), day(2024, 3, 10))

	_, err := svc.GetSubscription(context.Background(), "sub-missing")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIError以外のエラーが返った: %v", err)
	}
	if apiErr.Code != model.ErrCodeSubscriptionNotFound {
		t.Errorf("エラーコード = %q, want %q", apiErr.Code, model.ErrCodeSubscriptionNotFound)
	}
}

// concessionはdeliveredにもscheduledにも含めず独立して数える。
func TestService_GetProgress_ConcessionCountedSeparately(t *testing.T) {
	sub := newTestSubscription()
	sub.Deliveries = append(sub.Deliveries,
		&model.Delivery{ID: "d-3", Date: day(2024, 3, 9), Status: model.DeliveryStatusConcession, Concession: true},
		&model.Delivery{ID: "d-4", Date: day(2024, 3, 12), Status: model.DeliveryStatusCancelled},
		&model.Delivery{ID: "d-5", Date: day(2024, 3, 13), Status: model.DeliveryStatusPaused},
	)
	svc := newTestService(newMockSubRepo(sub), day(2024, 3, 10))

	progress, err := svc.GetProgress(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("GetProgress がエラーを返した: %v", err)
	}

	if progress.Total != 5 {
		t.Errorf("Total = %d, want 5（concessionも履歴に含める）", progress.Total)
	}
	if progress.Delivered != 1 {
		t.Errorf("Delivered = %d, want 1（concessionは配達完了に含めない）", progress.Delivered)
	}
	if progress.Scheduled != 1 {
		t.Errorf("Scheduled = %d, want 1", progress.Scheduled)
	}
	if progress.Concession != 1 {
		t.Errorf("Concession = %d, want 1", progress.Concession)
	}
	if progress.Cancelled != 1 || progress.Paused != 1 {
		t.Errorf("Cancelled = %d, Paused = %d, want 1, 1", progress.Cancelled, progress.Paused)
	}
}

func TestService_CancelDelivery_BeforeCutoff(t *testing.T) {
	sub := newTestSubscription()
	repo := newMockSubRepo(sub)
	now := time.Date(2024, 3, 11, 10, 0, 0, 0, jst) // 締め切り16:00より前
	svc := newTestService(repo, now)

	cancelled, err := svc.CancelDelivery(context.Background(), "sub-1", "d-2")
	if err != nil {
		t.Fatalf("CancelDelivery がエラーを返した: %v", err)
	}

	if cancelled.Status != model.DeliveryStatusCancelled {
		t.Errorf("配達ステータス = %q, want %q", cancelled.Status, model.DeliveryStatusCancelled)
	}
	if cancelled.CanceledAt == nil || !cancelled.CanceledAt.Equal(now) {
		t.Errorf("canceledAt = %v, want %v", cancelled.CanceledAt, now)
	}
	if repo.saveCalls != 1 {
		t.Errorf("保存回数 = %d, want 1", repo.saveCalls)
	}
	// 最終日の配達をキャンセルしたのでEndDateは残った配達の最終日に縮む
	if !sub.EndDate.Equal(day(2024, 3, 10)) {
		t.Errorf("EndDate = %v, want 2024-03-10（実効最終配達日との整合を回復する）", sub.EndDate)
	}
}

func TestService_PauseDelivery_DoesNotSetCanceledAt(t *testing.T) {
	sub := newTestSubscription()
	svc := newTestService(newMockSubRepo(sub), time.Date(2024, 3, 11, 10, 0, 0, 0, jst))

	paused, err := svc.PauseDelivery(context.Background(), "sub-1", "d-2")
	if err != nil {
		t.Fatalf("PauseDelivery がエラーを返した: %v", err)
	}
	if paused.Status != model.DeliveryStatusPaused {
		t.Errorf("配達ステータス = %q, want %q", paused.Status, model.DeliveryStatusPaused)
	}
	if paused.CanceledAt != nil {
		t.Error("一時停止でcanceledAtが設定された")
	}
}

func TestService_CancelDelivery_AfterCutoffIsRejected(t *testing.T) {
	sub := newTestSubscription()
	repo := newMockSubRepo(sub)
	now := time.Date(2024, 3, 11, 16, 0, 0, 0, jst) // 締め切りちょうども不可
	svc := newTestService(repo, now)

	_, err := svc.CancelDelivery(context.Background(), "sub-1", "d-2")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIError以外のエラーが返った: %v", err)
	}
	if apiErr.Code != model.ErrCodeCutoffPassed {
		t.Errorf("エラーコード = %q, want %q", apiErr.Code, model.ErrCodeCutoffPassed)
	}
	if repo.saveCalls != 0 {
		t.Error("拒否された変更が保存された")
	}
}

func TestService_CancelDelivery_NonScheduledIsRejected(t *testing.T) {
	sub := newTestSubscription()
	svc := newTestService(newMockSubRepo(sub), time.Date(2024, 3, 10, 10, 0, 0, 0, jst))

	// d-1 はdelivered
	_, err := svc.CancelDelivery(context.Background(), "sub-1", "d-1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIError以外のエラーが返った: %v", err)
	}
	if apiErr.Code != model.ErrCodeInvalidTransition {
		t.Errorf("エラーコード = %q, want %q", apiErr.Code, model.ErrCodeInvalidTransition)
	}
}

func TestService_CancelDelivery_InactiveSubscriptionIsRejected(t *testing.T) {
	sub := newTestSubscription()
	sub.Status = model.SubscriptionStatusExpired
	svc := newTestService(newMockSubRepo(sub), time.Date(2024, 3, 11, 10, 0, 0, 0, jst))

	_, err := svc.CancelDelivery(context.Background(), "sub-1", "d-2")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIError以外のエラーが返った: %v", err)
	}
	if apiErr.Code != model.ErrCodeSubscriptionInactive {
		t.Errorf("エラーコード = %q, want %q", apiErr.Code, model.ErrCodeSubscriptionInactive)
	}
}

func TestService_CancelDelivery_DeliveryNotFound(t *testing.T) {
	sub := newTestSubscription()
	svc := newTestService(newMockSubRepo(sub), time.Date(2024, 3, 11, 10, 0, 0, 0, jst))

	_, err := svc.CancelDelivery(context.Background(), "sub-1", "d-missing")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIError以外のエラーが返った: %v", err)
	}
	if apiErr.Code != model.ErrCodeDeliveryNotFound {
		t.Errorf("エラーコード = %q, want %q", apiErr.Code, model.ErrCodeDeliveryNotFound)
	}
}

func TestService_ListSubscriptions_ByCustomer(t *testing.T) {
	sub := newTestSubscription()
	svc := newTestService(newMockSubRepo(sub), day(2024, 3, 10))

	subs, err := svc.ListSubscriptions(context.Background(), "cust-1")
	if err != nil {
		t.Fatalf("ListSubscriptions がエラーを返した: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != "sub-1" {
		t.Errorf("契約一覧 = %v, want [sub-1]", subs)
	}
}
