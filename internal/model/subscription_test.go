package model

import (
	"testing"
	"time"
)

var jst = time.FixedZone("JST", 9*60*60)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, jst)
}

func TestSubscription_ScheduledDeliveriesOn_MatchesCalendarDay(t *testing.T) {
	sub := &Subscription{
		Deliveries: []*Delivery{
			{ID: "d-1", Date: day(2024, 3, 9), Status: DeliveryStatusScheduled},
			{ID: "d-2", Date: day(2024, 3, 10), Status: DeliveryStatusScheduled},
			{ID: "d-3", Date: time.Date(2024, 3, 10, 23, 59, 0, 0, jst), Status: DeliveryStatusScheduled},
			{ID: "d-4", Date: day(2024, 3, 11), Status: DeliveryStatusScheduled},
		},
	}

	got := sub.ScheduledDeliveriesOn(day(2024, 3, 10))
	if len(got) != 2 {
		t.Fatalf("該当配達数 = %d, want 2", len(got))
	}
	if got[0].ID != "d-2" || got[1].ID != "d-3" {
		t.Errorf("該当配達 = [%s, %s], want [d-2, d-3]", got[0].ID, got[1].ID)
	}
}

// scheduled以外の配達は当日の配達でも対象にならない（冪等性の要）。
func TestSubscription_ScheduledDeliveriesOn_ExcludesNonScheduled(t *testing.T) {
	sub := &Subscription{
		Deliveries: []*Delivery{
			{ID: "d-1", Date: day(2024, 3, 10), Status: DeliveryStatusDelivered},
			{ID: "d-2", Date: day(2024, 3, 10), Status: DeliveryStatusConcession},
			{ID: "d-3", Date: day(2024, 3, 10), Status: DeliveryStatusCancelled},
			{ID: "d-4", Date: day(2024, 3, 10), Status: DeliveryStatusPaused},
		},
	}

	if got := sub.ScheduledDeliveriesOn(day(2024, 3, 10)); len(got) != 0 {
		t.Errorf("scheduled以外の配達が %d 件対象になった", len(got))
	}
}

// 引数の時刻部分は無視され、属する暦日で判定する。
func TestSubscription_ScheduledDeliveriesOn_TruncatesToDay(t *testing.T) {
	sub := &Subscription{
		Deliveries: []*Delivery{
			{ID: "d-1", Date: day(2024, 3, 10), Status: DeliveryStatusScheduled},
		},
	}

	late := time.Date(2024, 3, 10, 23, 45, 0, 0, jst)
	if got := sub.ScheduledDeliveriesOn(late); len(got) != 1 {
		t.Errorf("23:45時点の判定で当日の配達が対象にならなかった")
	}
}

func TestSubscription_LastActiveDeliveryDate_ReturnsMax(t *testing.T) {
	sub := &Subscription{
		Deliveries: []*Delivery{
			{Date: day(2024, 3, 10), Status: DeliveryStatusDelivered},
			{Date: day(2024, 3, 12), Status: DeliveryStatusScheduled},
			{Date: day(2024, 3, 11), Status: DeliveryStatusConcession},
		},
	}

	last, ok := sub.LastActiveDeliveryDate()
	if !ok {
		t.Fatal("実効最終配達日が見つからなかった")
	}
	if !last.Equal(day(2024, 3, 12)) {
		t.Errorf("実効最終配達日 = %v, want 2024-03-12", last)
	}
}

// cancelled・pausedは最終日として数えない。途中の未キャンセル配達が最終日になる。
func TestSubscription_LastActiveDeliveryDate_ExcludesCancelledAndPaused(t *testing.T) {
	sub := &Subscription{
		Deliveries: []*Delivery{
			{Date: day(2024, 3, 10), Status: DeliveryStatusDelivered},
			{Date: day(2024, 3, 11), Status: DeliveryStatusCancelled},
			{Date: day(2024, 3, 12), Status: DeliveryStatusPaused},
		},
	}

	last, ok := sub.LastActiveDeliveryDate()
	if !ok {
		t.Fatal("実効最終配達日が見つからなかった")
	}
	if !last.Equal(day(2024, 3, 10)) {
		t.Errorf("実効最終配達日 = %v, want 2024-03-10", last)
	}
}

func TestSubscription_LastActiveDeliveryDate_AllExcluded(t *testing.T) {
	sub := &Subscription{
		Deliveries: []*Delivery{
			{Date: day(2024, 3, 10), Status: DeliveryStatusCancelled},
			{Date: day(2024, 3, 11), Status: DeliveryStatusPaused},
		},
	}

	if _, ok := sub.LastActiveDeliveryDate(); ok {
		t.Error("全配達がcancelled/pausedなのにok=trueが返った")
	}
}

func TestCloneProducts_IndependentCopy(t *testing.T) {
	original := []Product{
		{ProductID: "p-1", Name: "牛乳 900ml", QuantityValue: 900, QuantityUnit: "ml", UnitPrice: 250},
	}

	cloned := CloneProducts(original)
	if len(cloned) != 1 || cloned[0] != original[0] {
		t.Fatalf("コピー結果 = %+v, want %+v", cloned, original)
	}

	original[0].UnitPrice = 999
	if cloned[0].UnitPrice == 999 {
		t.Error("コピーが元のスライスと記憶領域を共有している")
	}
}

func TestCloneProducts_Nil(t *testing.T) {
	if got := CloneProducts(nil); got != nil {
		t.Errorf("nilのコピー = %v, want nil", got)
	}
}
