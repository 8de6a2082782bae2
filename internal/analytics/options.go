// Package analytics turns an enriched sales dataset into the catalog of named
// views shown on the dashboard: distributions, grouped sales, customer
// segments, churn, cross-sell pairs, basket rules and a monthly forecast.
//
// Every stage works on a copy of the dataset it is given and keeps no state
// between calls.
package analytics

import "time"

// DefaultSeed drives both k-means initialisation and the forecast holdout
// split so repeated runs over the same input agree.
const DefaultSeed uint64 = 42

const (
	DefaultClusters            = 5
	DefaultChurnThresholdDays  = 90
	DefaultHistogramBins       = 10
	DefaultTopN                = 10
	DefaultForecastConfidence  = 0.95
	DefaultBasketMinSupport    = 0.01
	DefaultBasketMinConfidence = 0.5
	DefaultBasketMaxItems      = 3
)

// Options tunes the engine. Start from DefaultOptions: Seed and
// ChurnThresholdDays are used as given, zero included. Every other zero field
// falls back to its default.
type Options struct {
	Clusters            int
	Seed                uint64
	ChurnThresholdDays  int
	HistogramBins       int
	TopN                int
	ForecastConfidence  float64
	BasketMinSupport    float64
	BasketMinConfidence float64
	BasketMaxItems      int

	// ReferenceDate anchors churn detection. Zero means the time the run
	// starts.
	ReferenceDate time.Time
}

func DefaultOptions() Options {
	return Options{
		Clusters:            DefaultClusters,
		Seed:                DefaultSeed,
		ChurnThresholdDays:  DefaultChurnThresholdDays,
		HistogramBins:       DefaultHistogramBins,
		TopN:                DefaultTopN,
		ForecastConfidence:  DefaultForecastConfidence,
		BasketMinSupport:    DefaultBasketMinSupport,
		BasketMinConfidence: DefaultBasketMinConfidence,
		BasketMaxItems:      DefaultBasketMaxItems,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Clusters <= 0 {
		o.Clusters = d.Clusters
	}
	if o.ChurnThresholdDays < 0 {
		o.ChurnThresholdDays = d.ChurnThresholdDays
	}
	if o.HistogramBins <= 0 {
		o.HistogramBins = d.HistogramBins
	}
	if o.TopN <= 0 {
		o.TopN = d.TopN
	}
	if o.ForecastConfidence <= 0 {
		o.ForecastConfidence = d.ForecastConfidence
	}
	if o.BasketMinSupport <= 0 {
		o.BasketMinSupport = d.BasketMinSupport
	}
	if o.BasketMinConfidence <= 0 {
		o.BasketMinConfidence = d.BasketMinConfidence
	}
	if o.BasketMaxItems < 2 {
		o.BasketMaxItems = d.BasketMaxItems
	}
	return o
}
