// Package model はドメインモデルを定義する。
package model

import "time"

// Subscription は定期宅配の契約を表す集約ルート。
// 契約期間・商品構成・配達スロットと、日付順の配達シーケンスを保持する。
type Subscription struct {
	ID            string
	CustomerID    string
	Status        SubscriptionStatus
	Slot          Slot
	StartDate     time.Time
	EndDate       time.Time
	Products      []Product
	PaymentMethod string
	TotalAmount   int64
	Deliveries    []*Delivery
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SubscriptionStatus は契約のステータスを表す。
type SubscriptionStatus string

const (
	// SubscriptionStatusPending は決済待ちの契約状態。
	SubscriptionStatusPending SubscriptionStatus = "pending"
	// SubscriptionStatusActive は配達中の契約状態。
	// 補填バッチ・満了バッチの対象になるのはこの状態のみ。
	SubscriptionStatusActive SubscriptionStatus = "active"
	// SubscriptionStatusExpiring は満了間際の契約状態。
	SubscriptionStatusExpiring SubscriptionStatus = "expiring"
	// SubscriptionStatusExpired は配達スケジュールを消化し終えた契約状態。
	// 請求履歴のためレコードは削除せず保持する。
	SubscriptionStatusExpired SubscriptionStatus = "expired"
	// SubscriptionStatusCancelled は解約済みの契約状態。
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// Slot は1日の配達枠を表す。締め切り時刻の計算式を決定する。
type Slot string

const (
	// SlotMorning は朝枠。締め切りは配達日の04:00。
	SlotMorning Slot = "morning"
	// SlotEvening は夕方枠。締め切りは配達日の16:00。
	SlotEvening Slot = "evening"
)

// Product は契約商品のスナップショット。
// 配達作成時点の値をコピーして保持し、カタログの後続変更の影響を受けない。
type Product struct {
	ProductID     string
	Name          string
	QuantityValue float64
	QuantityUnit  string
	UnitPrice     int64
}

// ScheduledDeliveriesOn はdateの属する暦日 [date, date+1日) に配達予定があり、
// かつステータスがまだscheduledの配達を日付順で返す。
func (s *Subscription) ScheduledDeliveriesOn(day time.Time) []*Delivery {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	var matched []*Delivery
	for _, d := range s.Deliveries {
		if d.Status != DeliveryStatusScheduled {
			continue
		}
		if !d.Date.Before(dayStart) && d.Date.Before(dayEnd) {
			matched = append(matched, d)
		}
	}
	return matched
}

// LastActiveDeliveryDate は配達シーケンスから実効的な最終配達日を再計算する。
// cancelled・pausedの配達は最終日として数えない。
// 保存済みのEndDateを信用せず、満了判定など重要な読み取りのたびに再計算する。
// 対象となる配達が1件もない場合はok=falseを返す。
func (s *Subscription) LastActiveDeliveryDate() (time.Time, bool) {
	var last time.Time
	found := false
	for _, d := range s.Deliveries {
		if d.Status == DeliveryStatusCancelled || d.Status == DeliveryStatusPaused {
			continue
		}
		if !found || d.Date.After(last) {
			last = d.Date
			found = true
		}
	}
	return last, found
}

// AppendDelivery は配達シーケンスの末尾に配達を追加する。
// 追加のみで並べ替えは行わない。追加する配達の日付は既存の最終日より後であること。
func (s *Subscription) AppendDelivery(d *Delivery) {
	s.Deliveries = append(s.Deliveries, d)
}
