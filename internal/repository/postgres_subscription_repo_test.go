package repository

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/milkrun/internal/model"
)

var jst = time.FixedZone("JST", 9*60*60)

// jsonbカラムの列名はDBに保存済みのデータとの互換性があるため固定。
func TestMarshalProducts_WireFormat(t *testing.T) {
	data, err := marshalProducts([]model.Product{
		{ProductID: "p-1", Name: "牛乳 900ml", QuantityValue: 900, QuantityUnit: "ml", UnitPrice: 250},
	})
	if err != nil {
		t.Fatalf("marshalProducts がエラーを返した: %v", err)
	}

	for _, key := range []string{"product_id", "quantity_value", "quantity_unit", "unit_price"} {
		if !strings.Contains(string(data), `"`+key+`"`) {
			t.Errorf("シリアライズ結果にキー %q が含まれていない: %s", key, data)
		}
	}

	restored, err := unmarshalProducts(data)
	if err != nil {
		t.Fatalf("unmarshalProducts がエラーを返した: %v", err)
	}
	if len(restored) != 1 || restored[0].Name != "牛乳 900ml" || restored[0].UnitPrice != 250 {
		t.Errorf("復元結果 = %+v", restored)
	}
}

func TestUnmarshalProducts_EmptyColumn(t *testing.T) {
	products, err := unmarshalProducts(nil)
	if err != nil {
		t.Fatalf("unmarshalProducts がエラーを返した: %v", err)
	}
	if products != nil {
		t.Errorf("空カラムの復元結果 = %v, want nil", products)
	}
}

func TestMarshalConcession_NilProducesNullColumn(t *testing.T) {
	data, err := marshalConcession(nil)
	if err != nil {
		t.Fatalf("marshalConcession がエラーを返した: %v", err)
	}
	if data != nil {
		t.Errorf("補填なしの配達でjsonbデータが生成された: %s", data)
	}
}

func TestMarshalConcession_RoundTrip(t *testing.T) {
	details := &model.ConcessionDetails{
		OriginalDate:         time.Date(2024, 3, 10, 0, 0, 0, 0, jst),
		RescheduledTo:        time.Date(2024, 3, 11, 0, 0, 0, 0, jst),
		Reason:               "missed by delivery partner — auto-compensated",
		ExtendedSubscription: true,
		ProcessedAt:          time.Date(2024, 3, 10, 23, 45, 0, 0, jst),
	}

	data, err := marshalConcession(details)
	if err != nil {
		t.Fatalf("marshalConcession がエラーを返した: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("シリアライズ結果のデコードに失敗した: %v", err)
	}
	if raw["reason"] != details.Reason {
		t.Errorf("reason = %v, want %v", raw["reason"], details.Reason)
	}
	if raw["extended_subscription"] != true {
		t.Error("extended_subscriptionがtrueとして保存されていない")
	}

	restored, err := unmarshalConcession(data)
	if err != nil {
		t.Fatalf("unmarshalConcession がエラーを返した: %v", err)
	}
	if !restored.RescheduledTo.Equal(details.RescheduledTo) {
		t.Errorf("rescheduledTo = %v, want %v", restored.RescheduledTo, details.RescheduledTo)
	}
}
