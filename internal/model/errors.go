// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, subscription, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeSubscriptionNotFound = "SUBSCRIPTION_NOT_FOUND"
	ErrCodeDeliveryNotFound     = "DELIVERY_NOT_FOUND"
	ErrCodeInvalidTransition    = "INVALID_TRANSITION"
	ErrCodeSubscriptionInactive = "SUBSCRIPTION_INACTIVE"
	ErrCodeCutoffPassed         = "CUTOFF_PASSED"
	ErrCodeInvalidCustomerID    = "INVALID_CUSTOMER_ID"
)

// NewSubscriptionNotFoundError は契約が見つからない場合のエラーを生成する。
func NewSubscriptionNotFoundError(subscriptionID string) *APIError {
	return &APIError{
		Code:     ErrCodeSubscriptionNotFound,
		Message:  fmt.Sprintf("指定された契約が見つかりません: %s", subscriptionID),
		Category: "subscription",
		Action:   "契約IDを確認してください。",
	}
}

// NewDeliveryNotFoundError は配達が見つからない場合のエラーを生成する。
func NewDeliveryNotFoundError(deliveryID string) *APIError {
	return &APIError{
		Code:     ErrCodeDeliveryNotFound,
		Message:  fmt.Sprintf("指定された配達が見つかりません: %s", deliveryID),
		Category: "subscription",
		Action:   "配達IDを確認してください。",
	}
}

// NewInvalidTransitionError は許可されない状態遷移を要求された場合のエラーを生成する。
func NewInvalidTransitionError(from DeliveryStatus, to DeliveryStatus) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTransition,
		Message:  fmt.Sprintf("配達ステータスを %s から %s に変更することはできません。", from, to),
		Category: "subscription",
		Action:   "変更できるのは配達予定（scheduled）の配達のみです。",
	}
}

// NewSubscriptionInactiveError はアクティブでない契約への操作エラーを生成する。
func NewSubscriptionInactiveError(status SubscriptionStatus) *APIError {
	return &APIError{
		Code:     ErrCodeSubscriptionInactive,
		Message:  fmt.Sprintf("契約がアクティブではありません（現在: %s）。", status),
		Category: "subscription",
		Action:   "配達の変更はアクティブな契約に対してのみ実行できます。",
	}
}

// NewCutoffPassedError は締め切り時刻を過ぎた配達への変更エラーを生成する。
func NewCutoffPassedError(deliveryID string) *APIError {
	return &APIError{
		Code:     ErrCodeCutoffPassed,
		Message:  fmt.Sprintf("配達の締め切り時刻を過ぎています: %s", deliveryID),
		Category: "validation",
		Action:   "締め切り前の配達のみ変更できます。次回以降の配達を指定してください。",
	}
}

// NewInvalidCustomerIDError は顧客ID未指定エラーを生成する。
func NewInvalidCustomerIDError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCustomerID,
		Message:  "顧客IDが指定されていません。",
		Category: "validation",
		Action:   "customer_idクエリパラメータを指定してください。",
	}
}
