package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// Entry is one key/value pair of a mapping-shaped view.
type Entry struct {
	Key   string
	Value any
}

// Mapping is an ordered category → metric result. It serializes as a JSON
// object whose keys keep the slice order.
type Mapping []Entry

func (m Mapping) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the value stored under key.
func (m Mapping) Get(key string) (any, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func (m Mapping) Keys() []string {
	keys := make([]string, len(m))
	for i, e := range m {
		keys[i] = e.Key
	}
	return keys
}

// NamedView is one computed catalog entry.
type NamedView struct {
	Name    string `json:"name"`
	Payload any    `json:"payload"`
}

type DayStat struct {
	Total   float64 `json:"total"`
	Average float64 `json:"average"`
}

type DiscountImpact struct {
	Mean           float64 `json:"mean"`
	Sum            float64 `json:"sum"`
	Count          int     `json:"count"`
	ConversionRate float64 `json:"conversion_rate"`
}

type RecencyFrequency struct {
	Recency   []float64 `json:"Recency"`
	Frequency []float64 `json:"Frequency"`
}

type CrossSellPair struct {
	Total         float64 `json:"total"`
	Contributions Mapping `json:"contributions"`
}

type ChurnedCustomers struct {
	Customers []string    `json:"churned_customers"`
	Locations []string    `json:"churned_locations"`
	Regions   []string    `json:"churned_regions"`
	Zipped    [][3]string `json:"zipped_data"`
}

type ChurnReport struct {
	Counts  Mapping          `json:"churned_counts"`
	Churned ChurnedCustomers `json:"churned_customers"`
}

type AssociationRule struct {
	Antecedents []string `json:"antecedents"`
	Consequents []string `json:"consequents"`
	Support     float64  `json:"support"`
	Confidence  float64  `json:"confidence"`
	Lift        float64  `json:"lift"`
}

type MonthlyPoint struct {
	MonthKey  string  `json:"month_key"`
	Actual    float64 `json:"actual"`
	Predicted float64 `json:"predicted"`
}

type ForecastMetrics struct {
	Trend               float64 `json:"trend"`
	Confidence          float64 `json:"confidence"`
	NextMonthPrediction float64 `json:"next_month_prediction"`
}

type Forecast struct {
	MonthlySales   []MonthlyPoint  `json:"monthly_sales"`
	NextMonthSales float64         `json:"next_month_sales"`
	Metrics        ForecastMetrics `json:"metrics"`
}

// CustomerRFM is the customer-level RFM aggregate produced by enrichment.
type CustomerRFM struct {
	CustomerID string  `json:"customer_id"`
	Recency    float64 `json:"recency"`
	Frequency  float64 `json:"frequency"`
	Monetary   float64 `json:"monetary"`
}

// Diagnostic records a failure that was contained instead of raised.
type Diagnostic struct {
	Stage   string `json:"stage"`
	View    string `json:"view,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Summary holds the headline cards shown above the charts.
type Summary struct {
	TotalSales        float64 `json:"total_sales"`
	TotalTransactions int     `json:"total_transactions"`
	AverageSales      float64 `json:"average_sales"`
	AverageRating     float64 `json:"average_rating"`
}

// Report is the merged output of one orchestration run.
type Report struct {
	Views          Mapping      `json:"graphs"`
	Summary        Summary      `json:"cards"`
	Categories     []string     `json:"categories"`
	Locations      []string     `json:"locations"`
	AvailableDates []string     `json:"available_dates,omitempty"`
	Diagnostics    []Diagnostic `json:"diagnostics"`
	GeneratedAt    time.Time    `json:"generated_at"`
}

// View returns the payload of a named view.
func (r *Report) View(name string) (any, bool) {
	return r.Views.Get(name)
}
