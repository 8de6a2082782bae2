package analytics

import (
	"reflect"
	"testing"

	apperrors "retail-insights/internal/errors"
	"retail-insights/internal/models"
)

func TestValueCounts(t *testing.T) {
	ds := salesFixture()

	got := valueCounts(ds, models.ColGender, false)
	want := models.Mapping{{Key: "Female", Value: 3}, {Key: "Male", Value: 3}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	pct := valueCounts(ds, models.ColPromoCode, true)
	if pct[0].Key != "No" {
		t.Errorf("Expected most frequent promo value first, got %q", pct[0].Key)
	}
	if v := pct[0].Value.(float64); v < 66.66 || v > 66.67 {
		t.Errorf("Expected 66.67%%, got %v", v)
	}
}

func TestGroupSum(t *testing.T) {
	got, err := groupSum(salesFixture(), models.ColCategory)
	if err != nil {
		t.Fatalf("groupSum() error: %v", err)
	}
	want := models.Mapping{
		{Key: "Accessories", Value: 130.0},
		{Key: "Clothing", Value: 150.0},
		{Key: "Footwear", Value: 70.0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestGroupSum_NumericKeysSortNaturally(t *testing.T) {
	ds := models.NewDataset([]string{models.ColHour, models.ColPurchaseAmount}, []models.Record{
		{models.ColHour: 10, models.ColPurchaseAmount: 1.0},
		{models.ColHour: 9, models.ColPurchaseAmount: 2.0},
		{models.ColHour: 10, models.ColPurchaseAmount: 3.0},
	})
	got, err := groupSum(ds, models.ColHour)
	if err != nil {
		t.Fatalf("groupSum() error: %v", err)
	}
	if keys := got.Keys(); !reflect.DeepEqual(keys, []string{"9", "10"}) {
		t.Errorf("Expected keys [9 10], got %v", keys)
	}
}

func TestGroupSum_TypeCoercion(t *testing.T) {
	ds := models.NewDataset([]string{models.ColCategory, models.ColPurchaseAmount}, []models.Record{
		{models.ColCategory: "A", models.ColPurchaseAmount: "twelve"},
	})
	_, err := groupSum(ds, models.ColCategory)
	if !apperrors.Is(err, apperrors.CodeTypeCoercion) {
		t.Errorf("Expected type coercion error, got %v", err)
	}
}

func TestHistogram(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		bins   int
		want   models.Mapping
	}{
		{
			name:   "spread values",
			values: []float64{1, 2, 3, 4},
			bins:   2,
			want: models.Mapping{
				{Key: "(0.997, 2.5]", Value: 2},
				{Key: "(2.5, 4]", Value: 2},
			},
		},
		{
			name:   "empty bins are kept",
			values: []float64{0, 10},
			bins:   3,
			want: models.Mapping{
				{Key: "(-0.01, 3.33333]", Value: 1},
				{Key: "(3.33333, 6.66667]", Value: 0},
				{Key: "(6.66667, 10]", Value: 1},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := histogram(tt.values, tt.bins)
			if err != nil {
				t.Fatalf("histogram() error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestHistogram_ConstantValues(t *testing.T) {
	got, err := histogram([]float64{5, 5, 5}, 4)
	if err != nil {
		t.Fatalf("histogram() error: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("Expected 4 bins, got %d", len(got))
	}
	total := 0
	for _, e := range got {
		total += e.Value.(int)
	}
	if total != 3 {
		t.Errorf("Expected every value binned, got %d", total)
	}
}

func TestHistogram_Empty(t *testing.T) {
	_, err := histogram(nil, 10)
	if !apperrors.Is(err, apperrors.CodeInsufficientData) {
		t.Errorf("Expected insufficient data, got %v", err)
	}
}
