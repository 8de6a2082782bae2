package analytics

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"retail-insights/internal/models"
)

var salesColumns = []string{
	models.ColCustomerID, models.ColDate, models.ColPurchaseAmount, models.ColCategory,
	models.ColLocation, models.ColRegion, models.ColAge, models.ColGender, models.ColRating,
	models.ColDiscount, models.ColPromoCode, models.ColPrevPurchases, models.ColProductID,
}

func sale(customer, date string, amount float64, category, location, region string, age float64,
	gender string, rating, discount float64, promo string, prev float64, product string) models.Record {
	return models.Record{
		models.ColCustomerID:     customer,
		models.ColDate:           date,
		models.ColPurchaseAmount: amount,
		models.ColCategory:       category,
		models.ColLocation:       location,
		models.ColRegion:         region,
		models.ColAge:            age,
		models.ColGender:         gender,
		models.ColRating:         rating,
		models.ColDiscount:       discount,
		models.ColPromoCode:      promo,
		models.ColPrevPurchases:  prev,
		models.ColProductID:      product,
	}
}

// salesFixture is six purchases by four customers over the first half of 2023.
func salesFixture() *models.Dataset {
	return models.NewDataset(salesColumns, []models.Record{
		sale("C1", "2023-01-15", 50, "Clothing", "Kansas", "Central", 25, "Male", 4.0, 0, "Yes", 5, "P1"),
		sale("C1", "2023-02-10", 70, "Footwear", "Kansas", "Central", 25, "Male", 3.5, 10, "No", 5, "P2"),
		sale("C2", "2023-03-05", 20, "Clothing", "Ohio", "East", 40, "Female", 5.0, 0, "No", 2, "P1"),
		sale("C3", "2023-04-20", 100, "Accessories", "Texas", "South", 60, "Female", 2.0, 20, "Yes", 10, "P3"),
		sale("C2", "2023-05-01", 30, "Accessories", "Ohio", "East", 40, "Female", 4.5, 10, "No", 2, "P3"),
		sale("C4", "2023-06-11", 80, "Clothing", "Texas", "South", 33, "Male", 3.0, 0, "No", 1, "P2"),
	})
}

func enrichedFixture(t *testing.T) *models.Dataset {
	t.Helper()
	out := Enrich(salesFixture())
	if out.Data.Len() != 6 {
		t.Fatalf("Expected 6 enriched records, got %d", out.Data.Len())
	}
	return out.Data
}

// testEngine fills the seed and churn threshold from the defaults when they
// are left zero, then applies the engine's own defaults.
func testEngine(opts Options) *Engine {
	if opts.Seed == 0 {
		opts.Seed = DefaultSeed
	}
	if opts.ChurnThresholdDays == 0 {
		opts.ChurnThresholdDays = DefaultChurnThresholdDays
	}
	if opts.ReferenceDate.IsZero() {
		opts.ReferenceDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return NewEngine(opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func viewMapping(t *testing.T, report *models.Report, name string) models.Mapping {
	t.Helper()
	v, ok := report.View(name)
	if !ok {
		t.Fatalf("Expected view %s in %v", name, report.Views.Keys())
	}
	m, ok := v.(models.Mapping)
	if !ok {
		t.Fatalf("Expected models.Mapping, got %T", v)
	}
	return m
}
