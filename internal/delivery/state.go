// Package delivery は配達ライフサイクルの状態遷移ルールを提供する。
// 遷移はSubscription集約のメモリ上の状態にのみ作用する純粋なロジックで、
// 永続化は呼び出し側（バッチプロセッサ・サービス層）が担う。
package delivery

import (
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/milkrun/internal/model"
)

// ConcessionReason は補填配達に記録する理由文。
// ダッシュボード等の下流がこの値を表示するため変更しないこと。
const ConcessionReason = "missed by delivery partner — auto-compensated"

const (
	// MorningCutoffHour は朝枠の締め切り時刻（配達日の04:00）。
	MorningCutoffHour = 4
	// EveningCutoffHour は夕方枠の締め切り時刻（配達日の16:00）。
	EveningCutoffHour = 16
)

// CutoffFor は配達日と枠から締め切り時刻を計算する。
// 朝枠は配達日の04:00:00.000、夕方枠は16:00:00.000（いずれもdateのタイムゾーン）。
func CutoffFor(date time.Time, slot model.Slot) time.Time {
	hour := EveningCutoffHour
	if slot == model.SlotMorning {
		hour = MorningCutoffHour
	}
	return time.Date(date.Year(), date.Month(), date.Day(), hour, 0, 0, 0, date.Location())
}

// ApplyConcession は scheduled → concession 遷移を集約に適用する。
// 配達パートナー起因の未配達に対する補填で、以下を1つの単位として行う:
//  1. 未配達の配達をconcessionに遷移させ、補填詳細を記録する
//  2. 現在のEndDateの翌暦日を補填日として算出する
//  3. 補填日・契約と同じ枠・同一の商品スナップショットで新しい配達を末尾に追加する
//  4. EndDateを補填日まで延長する
//
// 対象がscheduled以外の場合は何も変更せずエラーを返す（冪等性の要）。
// 追加された補填配達を返す。
func ApplyConcession(sub *model.Subscription, missed *model.Delivery, now time.Time) (*model.Delivery, error) {
	if missed.Status != model.DeliveryStatusScheduled {
		return nil, model.NewInvalidTransitionError(missed.Status, model.DeliveryStatusConcession)
	}

	newDate := sub.EndDate.AddDate(0, 0, 1)
	canceledAt := now

	details := model.ConcessionDetails{
		OriginalDate:         missed.Date,
		RescheduledTo:        newDate,
		Reason:               ConcessionReason,
		ExtendedSubscription: true,
		ProcessedAt:          now,
	}

	missed.Status = model.DeliveryStatusConcession
	missed.Concession = true
	missed.CanceledAt = &canceledAt
	missed.ConcessionDetails = &details
	missed.UpdatedAt = now

	// 補填詳細は両方の配達に記録するが、レコードごとに独立したコピーを持たせる
	makeupDetails := details

	makeup := &model.Delivery{
		ID:                uuid.NewString(),
		SubscriptionID:    sub.ID,
		Date:              newDate,
		Slot:              sub.Slot,
		Status:            model.DeliveryStatusScheduled,
		CutoffTime:        CutoffFor(newDate, sub.Slot),
		Concession:        true,
		ConcessionDetails: &makeupDetails,
		Products:          model.CloneProducts(missed.Products),
		IsCustom:          false,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	sub.AppendDelivery(makeup)

	sub.EndDate = newDate
	sub.UpdatedAt = now

	return makeup, nil
}

// ApplyExpiry は active → expired 遷移を集約に適用する。
// 保存済みのEndDateは信用せず、配達シーケンスから再計算した実効最終配達日が
// todayより厳密に前である場合のみ遷移させる。遷移したかどうかを返す。
// 同夜の補填でEndDateが延長された契約を誤って満了させないための防御。
func ApplyExpiry(sub *model.Subscription, today time.Time, now time.Time) bool {
	if sub.Status != model.SubscriptionStatusActive {
		return false
	}

	last, ok := sub.LastActiveDeliveryDate()
	if !ok {
		return false
	}
	if !last.Before(today) {
		return false
	}

	sub.Status = model.SubscriptionStatusExpired
	sub.UpdatedAt = now
	return true
}
