package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/milkrun/internal/model"
)

// PostgresSubscriptionRepo はPostgreSQLを使用した契約リポジトリ。
type PostgresSubscriptionRepo struct {
	db *sql.DB
}

// NewPostgresSubscriptionRepo はPostgresSubscriptionRepoを生成する。
func NewPostgresSubscriptionRepo(db *sql.DB) *PostgresSubscriptionRepo {
	return &PostgresSubscriptionRepo{db: db}
}

// productRecord は商品スナップショットのjsonbシリアライズ形式。
type productRecord struct {
	ProductID     string  `json:"product_id"`
	Name          string  `json:"name"`
	QuantityValue float64 `json:"quantity_value"`
	QuantityUnit  string  `json:"quantity_unit"`
	UnitPrice     int64   `json:"unit_price"`
}

// concessionRecord は補填詳細のjsonbシリアライズ形式。
type concessionRecord struct {
	OriginalDate         time.Time `json:"original_date"`
	RescheduledTo        time.Time `json:"rescheduled_to"`
	Reason               string    `json:"reason"`
	ExtendedSubscription bool      `json:"extended_subscription"`
	ProcessedAt          time.Time `json:"processed_at"`
}

func marshalProducts(products []model.Product) ([]byte, error) {
	records := make([]productRecord, len(products))
	for i, p := range products {
		records[i] = productRecord(p)
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("商品スナップショットのシリアライズに失敗しました: %w", err)
	}
	return data, nil
}

func unmarshalProducts(data []byte) ([]model.Product, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var records []productRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("商品スナップショットの読み取りに失敗しました: %w", err)
	}
	products := make([]model.Product, len(records))
	for i, rec := range records {
		products[i] = model.Product(rec)
	}
	return products, nil
}

func marshalConcession(details *model.ConcessionDetails) ([]byte, error) {
	if details == nil {
		return nil, nil
	}
	data, err := json.Marshal(concessionRecord(*details))
	if err != nil {
		return nil, fmt.Errorf("補填詳細のシリアライズに失敗しました: %w", err)
	}
	return data, nil
}

func unmarshalConcession(data []byte) (*model.ConcessionDetails, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var rec concessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("補填詳細の読み取りに失敗しました: %w", err)
	}
	details := model.ConcessionDetails(rec)
	return &details, nil
}

// FindByID は指定IDの契約を配達シーケンス付きで取得する。見つからない場合はnilを返す。
func (r *PostgresSubscriptionRepo) FindByID(ctx context.Context, id string) (*model.Subscription, error) {
	var (
		sub          model.Subscription
		productsJSON []byte
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, customer_id, status, slot, start_date, end_date,
		        products, payment_method, total_amount, created_at, updated_at
		 FROM subscriptions WHERE id = $1`,
		id,
	).Scan(
		&sub.ID, &sub.CustomerID, &sub.Status, &sub.Slot, &sub.StartDate, &sub.EndDate,
		&productsJSON, &sub.PaymentMethod, &sub.TotalAmount, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("契約の取得に失敗しました: %w", err)
	}

	if sub.Products, err = unmarshalProducts(productsJSON); err != nil {
		return nil, err
	}

	if sub.Deliveries, err = r.listDeliveries(ctx, sub.ID); err != nil {
		return nil, err
	}

	return &sub, nil
}

// listDeliveries は契約の配達シーケンスを日付昇順で読み込む。
func (r *PostgresSubscriptionRepo) listDeliveries(ctx context.Context, subscriptionID string) ([]*model.Delivery, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, subscription_id, date, slot, status, cutoff_time,
		        concession, concession_details, products, is_custom, canceled_at,
		        created_at, updated_at
		 FROM deliveries
		 WHERE subscription_id = $1
		 ORDER BY date ASC, created_at ASC`,
		subscriptionID,
	)
	if err != nil {
		return nil, fmt.Errorf("配達シーケンスの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var deliveries []*model.Delivery
	for rows.Next() {
		d := &model.Delivery{}
		var (
			concessionJSON []byte
			productsJSON   []byte
			canceledAt     sql.NullTime
		)
		if err := rows.Scan(
			&d.ID, &d.SubscriptionID, &d.Date, &d.Slot, &d.Status, &d.CutoffTime,
			&d.Concession, &concessionJSON, &productsJSON, &d.IsCustom, &canceledAt,
			&d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("配達行の読み取りに失敗しました: %w", err)
		}
		if d.ConcessionDetails, err = unmarshalConcession(concessionJSON); err != nil {
			return nil, err
		}
		if d.Products, err = unmarshalProducts(productsJSON); err != nil {
			return nil, err
		}
		if canceledAt.Valid {
			t := canceledAt.Time
			d.CanceledAt = &t
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("配達シーケンスの走査に失敗しました: %w", err)
	}
	return deliveries, nil
}

// ListByCustomerID は顧客の契約一覧を配達シーケンス付きで返す。
func (r *PostgresSubscriptionRepo) ListByCustomerID(ctx context.Context, customerID string) ([]*model.Subscription, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM subscriptions WHERE customer_id = $1 ORDER BY created_at ASC`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("契約一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("契約行の読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("契約一覧の走査に失敗しました: %w", err)
	}

	var subs []*model.Subscription
	for _, id := range ids {
		sub, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if sub != nil {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

// Create は契約と配達シーケンスを同一トランザクションで作成する。
func (r *PostgresSubscriptionRepo) Create(ctx context.Context, sub *model.Subscription) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	productsJSON, err := marshalProducts(sub.Products)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO subscriptions
		   (id, customer_id, status, slot, start_date, end_date,
		    products, payment_method, total_amount, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sub.ID, sub.CustomerID, sub.Status, sub.Slot, sub.StartDate, sub.EndDate,
		productsJSON, sub.PaymentMethod, sub.TotalAmount, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("契約の作成に失敗しました: %w", err)
	}

	for _, d := range sub.Deliveries {
		if err := upsertDelivery(ctx, tx, d); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// Save は集約全体をall-or-nothingで保存する。
// 契約行の更新と全配達のUPSERT（追加分はINSERT）を同一トランザクションで行う。
func (r *PostgresSubscriptionRepo) Save(ctx context.Context, sub *model.Subscription) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	productsJSON, err := marshalProducts(sub.Products)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE subscriptions
		 SET customer_id = $2, status = $3, slot = $4, start_date = $5, end_date = $6,
		     products = $7, payment_method = $8, total_amount = $9, updated_at = $10
		 WHERE id = $1`,
		sub.ID, sub.CustomerID, sub.Status, sub.Slot, sub.StartDate, sub.EndDate,
		productsJSON, sub.PaymentMethod, sub.TotalAmount, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("契約の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("契約が見つかりません: %s", sub.ID)
	}

	for _, d := range sub.Deliveries {
		if err := upsertDelivery(ctx, tx, d); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// upsertDelivery は配達1件をINSERT、既存の場合は全フィールドを上書きする。
func upsertDelivery(ctx context.Context, tx *sql.Tx, d *model.Delivery) error {
	concessionJSON, err := marshalConcession(d.ConcessionDetails)
	if err != nil {
		return err
	}
	productsJSON, err := marshalProducts(d.Products)
	if err != nil {
		return err
	}

	var canceledAt sql.NullTime
	if d.CanceledAt != nil {
		canceledAt = sql.NullTime{Time: *d.CanceledAt, Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO deliveries
		   (id, subscription_id, date, slot, status, cutoff_time,
		    concession, concession_details, products, is_custom, canceled_at,
		    created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO UPDATE SET
		   date = EXCLUDED.date,
		   slot = EXCLUDED.slot,
		   status = EXCLUDED.status,
		   cutoff_time = EXCLUDED.cutoff_time,
		   concession = EXCLUDED.concession,
		   concession_details = EXCLUDED.concession_details,
		   products = EXCLUDED.products,
		   is_custom = EXCLUDED.is_custom,
		   canceled_at = EXCLUDED.canceled_at,
		   updated_at = EXCLUDED.updated_at`,
		d.ID, d.SubscriptionID, d.Date, d.Slot, d.Status, d.CutoffTime,
		d.Concession, concessionJSON, productsJSON, d.IsCustom, canceledAt,
		d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("配達の保存に失敗しました: %w", err)
	}
	return nil
}

// ListActiveIDsWithScheduledDeliveryBetween は [from, to) にscheduled配達を持つ
// アクティブ契約のIDを返す。
func (r *PostgresSubscriptionRepo) ListActiveIDsWithScheduledDeliveryBetween(ctx context.Context, from, to time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT s.id
		 FROM subscriptions s
		 JOIN deliveries d ON d.subscription_id = s.id
		 WHERE s.status = $1
		   AND d.status = $2
		   AND d.date >= $3
		   AND d.date < $4
		 ORDER BY s.id`,
		model.SubscriptionStatusActive, model.DeliveryStatusScheduled, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("補填候補の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

// ListActiveIDsEndingBefore はend_dateがcutoffより前のアクティブ契約のIDを返す。
func (r *PostgresSubscriptionRepo) ListActiveIDsEndingBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM subscriptions
		 WHERE status = $1 AND end_date < $2
		 ORDER BY id`,
		model.SubscriptionStatusActive, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("満了候補の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("契約IDの読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("契約IDの走査に失敗しました: %w", err)
	}
	return ids, nil
}

// compile-time interface check
var _ SubscriptionRepository = (*PostgresSubscriptionRepo)(nil)
