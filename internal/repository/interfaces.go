// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/milkrun/internal/model"
)

// SubscriptionRepository は契約集約の永続化インターフェース。
// Subscriptionは配達シーケンスを含む集約としてまるごと読み書きする。
// 部分的なフィールド更新は提供しない（途中状態の観測を防ぐ）。
type SubscriptionRepository interface {
	// FindByID は指定IDの契約を配達シーケンス（日付昇順）付きで取得する。
	// 見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Subscription, error)

	// ListByCustomerID は顧客の契約一覧を配達シーケンス付きで返す。
	ListByCustomerID(ctx context.Context, customerID string) ([]*model.Subscription, error)

	// Create は契約と事前生成済みの配達シーケンスを同一トランザクションで作成する。
	Create(ctx context.Context, sub *model.Subscription) error

	// Save は集約全体を同一トランザクションで保存する。
	// 契約行の更新・変更された配達のUPSERT・追加された配達のINSERTを
	// all-or-nothingで行う。失敗時は集約に一切の変更が残らない。
	Save(ctx context.Context, sub *model.Subscription) error

	// ListActiveIDsWithScheduledDeliveryBetween は [from, to) に配達予定日を持つ
	// scheduled配達が1件以上あるアクティブ契約のIDを返す。補填バッチの候補選択。
	ListActiveIDsWithScheduledDeliveryBetween(ctx context.Context, from, to time.Time) ([]string, error)

	// ListActiveIDsEndingBefore はend_dateがcutoffより前のアクティブ契約のIDを返す。
	// 満了バッチの候補選択。実効最終配達日の検証は呼び出し側で行う。
	ListActiveIDsEndingBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}
