package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/milkrun/internal/model"
	"github.com/hitoshi/milkrun/internal/subscription"
)

// SubscriptionServiceInterface は契約ハンドラーが必要とするサービスインターフェース。
type SubscriptionServiceInterface interface {
	// GetSubscription は契約を配達履歴付きで取得する。
	GetSubscription(ctx context.Context, id string) (*model.Subscription, error)
	// ListSubscriptions は顧客の契約一覧を返す。
	ListSubscriptions(ctx context.Context, customerID string) ([]*model.Subscription, error)
	// GetProgress は契約の配達進捗サマリを返す。
	GetProgress(ctx context.Context, id string) (*subscription.Progress, error)
	// CancelDelivery は配達予定の配達をキャンセルする。
	CancelDelivery(ctx context.Context, subscriptionID, deliveryID string) (*model.Delivery, error)
	// PauseDelivery は配達予定の配達を一時停止する。
	PauseDelivery(ctx context.Context, subscriptionID, deliveryID string) (*model.Delivery, error)
}

// SubscriptionHandler は契約照会・配達変更のHTTPハンドラー。
type SubscriptionHandler struct {
	service SubscriptionServiceInterface
}

// NewSubscriptionHandler はSubscriptionHandlerを生成する。
func NewSubscriptionHandler(service SubscriptionServiceInterface) *SubscriptionHandler {
	return &SubscriptionHandler{service: service}
}

// productResponse は商品スナップショットのAPIレスポンス。
type productResponse struct {
	ProductID     string  `json:"product_id"`
	Name          string  `json:"name"`
	QuantityValue float64 `json:"quantity_value"`
	QuantityUnit  string  `json:"quantity_unit"`
	UnitPrice     int64   `json:"unit_price"`
}

// concessionDetailsResponse は補填詳細のAPIレスポンス。
type concessionDetailsResponse struct {
	OriginalDate         time.Time `json:"original_date"`
	RescheduledTo        time.Time `json:"rescheduled_to"`
	Reason               string    `json:"reason"`
	ExtendedSubscription bool      `json:"extended_subscription"`
	ProcessedAt          time.Time `json:"processed_at"`
}

// deliveryResponse は配達1件のAPIレスポンス。
type deliveryResponse struct {
	ID                string                     `json:"id"`
	Date              time.Time                  `json:"date"`
	Slot              string                     `json:"slot"`
	Status            string                     `json:"status"`
	CutoffTime        time.Time                  `json:"cutoff_time"`
	Concession        bool                       `json:"concession"`
	ConcessionDetails *concessionDetailsResponse `json:"concession_details,omitempty"`
	Products          []productResponse          `json:"products"`
	IsCustom          bool                       `json:"is_custom"`
	CanceledAt        *time.Time                 `json:"canceled_at,omitempty"`
}

// subscriptionResponse は契約のAPIレスポンス。
type subscriptionResponse struct {
	ID            string             `json:"id"`
	CustomerID    string             `json:"customer_id"`
	Status        string             `json:"status"`
	Slot          string             `json:"slot"`
	StartDate     time.Time          `json:"start_date"`
	EndDate       time.Time          `json:"end_date"`
	Products      []productResponse  `json:"products"`
	PaymentMethod string             `json:"payment_method"`
	TotalAmount   int64              `json:"total_amount"`
	Deliveries    []deliveryResponse `json:"deliveries"`
	CreatedAt     time.Time          `json:"created_at"`
}

// progressResponse は配達進捗サマリのAPIレスポンス。
// concessionはdeliveredに含めず、totalには含める（下流ビューとの契約）。
type progressResponse struct {
	SubscriptionID string `json:"subscription_id"`
	Total          int    `json:"total"`
	Delivered      int    `json:"delivered"`
	Scheduled      int    `json:"scheduled"`
	Concession     int    `json:"concession"`
	Cancelled      int    `json:"cancelled"`
	Paused         int    `json:"paused"`
}

func toProductResponses(products []model.Product) []productResponse {
	responses := make([]productResponse, len(products))
	for i, p := range products {
		responses[i] = productResponse(p)
	}
	return responses
}

func toDeliveryResponse(d *model.Delivery) deliveryResponse {
	resp := deliveryResponse{
		ID:         d.ID,
		Date:       d.Date,
		Slot:       string(d.Slot),
		Status:     string(d.Status),
		CutoffTime: d.CutoffTime,
		Concession: d.Concession,
		Products:   toProductResponses(d.Products),
		IsCustom:   d.IsCustom,
		CanceledAt: d.CanceledAt,
	}
	if d.ConcessionDetails != nil {
		details := concessionDetailsResponse(*d.ConcessionDetails)
		resp.ConcessionDetails = &details
	}
	return resp
}

func toSubscriptionResponse(sub *model.Subscription) subscriptionResponse {
	deliveries := make([]deliveryResponse, len(sub.Deliveries))
	for i, d := range sub.Deliveries {
		deliveries[i] = toDeliveryResponse(d)
	}
	return subscriptionResponse{
		ID:            sub.ID,
		CustomerID:    sub.CustomerID,
		Status:        string(sub.Status),
		Slot:          string(sub.Slot),
		StartDate:     sub.StartDate,
		EndDate:       sub.EndDate,
		Products:      toProductResponses(sub.Products),
		PaymentMethod: sub.PaymentMethod,
		TotalAmount:   sub.TotalAmount,
		Deliveries:    deliveries,
		CreatedAt:     sub.CreatedAt,
	}
}

// ListSubscriptions は顧客の契約一覧を取得する。
// GET /api/subscriptions?customer_id=...
func (h *SubscriptionHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customer_id")
	if customerID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidCustomerIDError())
		return
	}

	subs, err := h.service.ListSubscriptions(r.Context(), customerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]subscriptionResponse, len(subs))
	for i, sub := range subs {
		responses[i] = toSubscriptionResponse(sub)
	}
	writeJSON(w, http.StatusOK, responses)
}

// GetSubscription は契約詳細を配達履歴付きで取得する。
// GET /api/subscriptions/:id
func (h *SubscriptionHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sub, err := h.service.GetSubscription(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

// GetProgress は契約の配達進捗サマリを取得する。
// GET /api/subscriptions/:id/progress
func (h *SubscriptionHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	progress, err := h.service.GetProgress(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, progressResponse(*progress))
}

// CancelDelivery は配達予定の配達をキャンセルする。
// POST /api/subscriptions/:id/deliveries/:deliveryID/cancel
func (h *SubscriptionHandler) CancelDelivery(w http.ResponseWriter, r *http.Request) {
	subscriptionID := chi.URLParam(r, "id")
	deliveryID := chi.URLParam(r, "deliveryID")

	d, err := h.service.CancelDelivery(r.Context(), subscriptionID, deliveryID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toDeliveryResponse(d))
}

// PauseDelivery は配達予定の配達を一時停止する。
// POST /api/subscriptions/:id/deliveries/:deliveryID/pause
func (h *SubscriptionHandler) PauseDelivery(w http.ResponseWriter, r *http.Request) {
	subscriptionID := chi.URLParam(r, "id")
	deliveryID := chi.URLParam(r, "deliveryID")

	d, err := h.service.PauseDelivery(r.Context(), subscriptionID, deliveryID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toDeliveryResponse(d))
}
