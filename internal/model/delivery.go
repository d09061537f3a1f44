package model

import "time"

// Delivery は特定日・特定枠の1回の配達を表す。
// 親のSubscriptionが排他的に所有し、他の集約から参照されることはない。
type Delivery struct {
	ID                string
	SubscriptionID    string
	Date              time.Time
	Slot              Slot
	Status            DeliveryStatus
	CutoffTime        time.Time
	Concession        bool
	ConcessionDetails *ConcessionDetails
	Products          []Product
	IsCustom          bool
	CanceledAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DeliveryStatus は配達のステータスを表す。
// バッチ処理における遷移は一方向のみ:
// scheduled → delivered | concession | cancelled | paused。
// scheduled以外に遷移した配達をscheduledへ戻すバッチ処理は存在しない。
type DeliveryStatus string

const (
	// DeliveryStatusScheduled は配達予定の初期状態。
	DeliveryStatusScheduled DeliveryStatus = "scheduled"
	// DeliveryStatusDelivered は配達完了状態。外部の配達実績連携が設定する。
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	// DeliveryStatusConcession は配達パートナー起因の未配達を補填済みとした状態。
	// このレコードとしては終端で、代わりの配達が末尾に追加される。
	DeliveryStatusConcession DeliveryStatus = "concession"
	// DeliveryStatusCancelled はキャンセル済み状態。顧客またはサポートが設定する。
	DeliveryStatusCancelled DeliveryStatus = "cancelled"
	// DeliveryStatusPaused は一時停止状態。両バッチのスキャン対象から除外される。
	DeliveryStatusPaused DeliveryStatus = "paused"
)

// ConcessionDetails は補填の経緯を表す。
// 元の配達（concession化されたレコード）と補填として追加された配達の両方に付与される。
type ConcessionDetails struct {
	OriginalDate         time.Time
	RescheduledTo        time.Time
	Reason               string
	ExtendedSubscription bool
	ProcessedAt          time.Time
}

// CloneProducts は商品スナップショットのディープコピーを返す。
// 補填配達は元の配達と完全に同一のスナップショットを持たなければならない。
func CloneProducts(products []Product) []Product {
	if products == nil {
		return nil
	}
	cloned := make([]Product, len(products))
	copy(cloned, products)
	return cloned
}
