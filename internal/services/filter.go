package services

import (
	"fmt"
	"strings"

	"retail-insights/internal/analytics"
	apperrors "retail-insights/internal/errors"
)

// FilterRequest is the wire form of a dashboard filter. Ranges are
// [min, max] pairs; dates are applied only as a pair.
type FilterRequest struct {
	Category    string    `json:"category,omitempty"`
	Location    string    `json:"location,omitempty"`
	AgeRange    []float64 `json:"age_range,omitempty"`
	RatingRange []float64 `json:"rating_range,omitempty"`
	StartDate   string    `json:"start_date,omitempty"`
	EndDate     string    `json:"end_date,omitempty"`
}

// Filter validates r and converts it to an engine filter. The category
// selection is handled separately by the service.
func (r FilterRequest) Filter() (analytics.Filter, error) {
	var f analytics.Filter
	f.Location = strings.TrimSpace(r.Location)

	age, err := toRange("age_range", r.AgeRange)
	if err != nil {
		return f, err
	}
	rating, err := toRange("rating_range", r.RatingRange)
	if err != nil {
		return f, err
	}
	f.AgeRange, f.RatingRange = age, rating

	start, end := strings.TrimSpace(r.StartDate), strings.TrimSpace(r.EndDate)
	if (start == "") != (end == "") {
		return f, apperrors.Validation("start_date and end_date must be given together")
	}
	f.StartDate, f.EndDate = start, end
	return f, nil
}

func toRange(field string, v []float64) (*analytics.Range, error) {
	switch {
	case len(v) == 0:
		return nil, nil
	case len(v) != 2:
		return nil, apperrors.Validation(fmt.Sprintf("%s must have exactly two values", field))
	case v[0] > v[1]:
		return nil, apperrors.Validation(fmt.Sprintf("%s minimum %g exceeds maximum %g", field, v[0], v[1]))
	}
	return &analytics.Range{Min: v[0], Max: v[1]}, nil
}
