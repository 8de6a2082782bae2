package analytics

import (
	"fmt"
	"time"

	apperrors "retail-insights/internal/errors"
	"retail-insights/internal/models"
)

// Range is an inclusive numeric interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r Range) contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Filter narrows a dataset. Every zero field is a no-op. The date bounds only
// apply when both are set.
type Filter struct {
	Location    string
	AgeRange    *Range
	RatingRange *Range
	StartDate   string
	EndDate     string
}

func (f Filter) IsZero() bool {
	return f.Location == "" && f.AgeRange == nil && f.RatingRange == nil &&
		(f.StartDate == "" || f.EndDate == "")
}

type predicate struct {
	column string
	keep   func(models.Record) bool
}

func (f Filter) predicates() ([]predicate, error) {
	var preds []predicate
	if f.Location != "" {
		loc := f.Location
		preds = append(preds, predicate{models.ColLocation, func(r models.Record) bool {
			k, ok := r.Key(models.ColLocation)
			return ok && k == loc
		}})
	}
	if f.AgeRange != nil {
		preds = append(preds, rangePredicate(models.ColAge, *f.AgeRange))
	}
	if f.RatingRange != nil {
		preds = append(preds, rangePredicate(models.ColRating, *f.RatingRange))
	}
	if f.StartDate != "" && f.EndDate != "" {
		start, ok := parseTimestamp(f.StartDate)
		if !ok {
			return nil, apperrors.Validation(fmt.Sprintf("invalid start_date %q", f.StartDate))
		}
		end, ok := parseTimestamp(f.EndDate)
		if !ok {
			return nil, apperrors.Validation(fmt.Sprintf("invalid end_date %q", f.EndDate))
		}
		start, end = wallClock(start), wallClock(end)
		// A bare end date covers the whole day.
		if end.Equal(end.Truncate(24 * time.Hour)) {
			end = end.Add(24*time.Hour - time.Nanosecond)
		}
		preds = append(preds, predicate{models.ColDate, func(r models.Record) bool {
			t, ok := timeCell(r, models.ColDate)
			if !ok {
				return false
			}
			t = wallClock(t)
			return !t.Before(start) && !t.After(end)
		}})
	}
	return preds, nil
}

func rangePredicate(col string, rg Range) predicate {
	return predicate{col, func(r models.Record) bool {
		v, ok, err := r.Float(col)
		return err == nil && ok && rg.contains(v)
	}}
}

// Apply returns the records of ds matching every predicate, ANDed. ds is
// never modified. A predicate naming an absent column is a schema error; an
// empty result is reported as insufficient data alongside the empty dataset.
func (f Filter) Apply(ds *models.Dataset) (*models.Dataset, error) {
	preds, err := f.predicates()
	if err != nil {
		return nil, err
	}
	for _, p := range preds {
		if !ds.Has(p.column) {
			return nil, apperrors.SchemaMissing(fmt.Sprintf("cannot filter on missing column %q", p.column))
		}
	}
	out := ds.Where(func(r models.Record) bool {
		for _, p := range preds {
			if !p.keep(r) {
				return false
			}
		}
		return true
	})
	if out.Len() == 0 {
		return out, apperrors.InsufficientData("no data matches the selected filters")
	}
	return out, nil
}
