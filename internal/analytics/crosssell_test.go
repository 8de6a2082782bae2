package analytics

import (
	"reflect"
	"testing"

	"retail-insights/internal/models"
)

func TestCrossSell(t *testing.T) {
	got, err := CrossSell(salesFixture())
	if err != nil {
		t.Fatalf("CrossSell() error: %v", err)
	}
	if keys := got.Keys(); !reflect.DeepEqual(keys, []string{"Clothing & Footwear", "Accessories & Clothing"}) {
		t.Fatalf("unexpected pair order: %v", keys)
	}
	top := got[0].Value.(models.CrossSellPair)
	if top.Total != 120 {
		t.Errorf("Expected total 120, got %v", top.Total)
	}
	want := models.Mapping{{Key: "Clothing", Value: 50.0}, {Key: "Footwear", Value: 70.0}}
	if !reflect.DeepEqual(top.Contributions, want) {
		t.Errorf("Expected contributions %v, got %v", want, top.Contributions)
	}
}

func TestCrossSell_TotalsAccumulateContributionsOverwrite(t *testing.T) {
	cols := []string{models.ColCustomerID, models.ColCategory, models.ColPurchaseAmount}
	ds := models.NewDataset(cols, []models.Record{
		{models.ColCustomerID: "X", models.ColCategory: "B", models.ColPurchaseAmount: 20.0},
		{models.ColCustomerID: "X", models.ColCategory: "A", models.ColPurchaseAmount: 10.0},
		{models.ColCustomerID: "Y", models.ColCategory: "A", models.ColPurchaseAmount: 1.0},
		{models.ColCustomerID: "Y", models.ColCategory: "B", models.ColPurchaseAmount: 2.0},
		{models.ColCustomerID: "Z", models.ColCategory: "A", models.ColPurchaseAmount: 99.0},
	})

	got, err := CrossSell(ds)
	if err != nil {
		t.Fatalf("CrossSell() error: %v", err)
	}
	if len(got) != 1 || got[0].Key != "A & B" {
		t.Fatalf("Expected the single canonical pair \"A & B\", got %v", got.Keys())
	}
	pair := got[0].Value.(models.CrossSellPair)
	if pair.Total != 33 {
		t.Errorf("Expected accumulated total 33, got %v", pair.Total)
	}
	want := models.Mapping{{Key: "A", Value: 1.0}, {Key: "B", Value: 2.0}}
	if !reflect.DeepEqual(pair.Contributions, want) {
		t.Errorf("Expected last customer's contributions %v, got %v", want, pair.Contributions)
	}
}

func TestCrossSell_SingleCategoryCustomers(t *testing.T) {
	cols := []string{models.ColCustomerID, models.ColCategory, models.ColPurchaseAmount}
	ds := models.NewDataset(cols, []models.Record{
		{models.ColCustomerID: "X", models.ColCategory: "A", models.ColPurchaseAmount: 5.0},
		{models.ColCustomerID: "X", models.ColCategory: "A", models.ColPurchaseAmount: 7.0},
	})
	got, err := CrossSell(ds)
	if err != nil {
		t.Fatalf("CrossSell() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no pairs, got %v", got.Keys())
	}
}
