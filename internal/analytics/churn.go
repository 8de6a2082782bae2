package analytics

import (
	"cmp"
	"slices"
	"time"

	"retail-insights/internal/models"
)

const unknown = "Unknown"

// IsChurned reports whether a customer whose last purchase was at last is
// inactive for more than threshold whole days before ref. Exactly threshold
// days is still active.
func IsChurned(ref, last time.Time, thresholdDays int) bool {
	return daysBetween(last, ref) > thresholdDays
}

// DetectChurn flags customers whose latest purchase is older than the
// threshold relative to ref (now when zero). Counts are per record, keyed
// "True"/"False". Churned customers are listed in ascending id order with
// their most frequent location and region, "Unknown" when unavailable.
func DetectChurn(ds *models.Dataset, ref time.Time, thresholdDays int) (*models.ChurnReport, error) {
	if ref.IsZero() {
		ref = time.Now().UTC()
	}

	last := make(map[string]time.Time)
	for _, r := range ds.Rows() {
		id, ok := r.Key(models.ColCustomerID)
		if !ok {
			continue
		}
		if _, seen := last[id]; !seen {
			last[id] = time.Time{}
		}
		if t, ok := timeCell(r, models.ColDate); ok && t.After(last[id]) {
			last[id] = t
		}
	}

	churned := make(map[string]bool, len(last))
	for id, t := range last {
		churned[id] = !t.IsZero() && IsChurned(ref, t, thresholdDays)
	}

	tally := make(map[string]int)
	locations := make(map[string]map[string]int)
	regions := make(map[string]map[string]int)
	for _, r := range ds.Rows() {
		id, ok := r.Key(models.ColCustomerID)
		if !ok {
			continue
		}
		flag := churned[id]
		tally[models.FormatKey(flag)]++
		if !flag {
			continue
		}
		tallyMode(locations, id, r, models.ColLocation)
		tallyMode(regions, id, r, models.ColRegion)
	}

	report := &models.ChurnReport{
		Churned: models.ChurnedCustomers{
			Customers: []string{},
			Locations: []string{},
			Regions:   []string{},
			Zipped:    [][3]string{},
		},
	}
	keys := sortedKeys(tally)
	slices.SortStableFunc(keys, func(a, b string) int {
		return cmp.Compare(tally[b], tally[a])
	})
	for _, k := range keys {
		report.Counts = append(report.Counts, models.Entry{Key: k, Value: tally[k]})
	}

	for _, id := range sortedKeys(churned) {
		if !churned[id] {
			continue
		}
		loc := mode(locations[id])
		reg := mode(regions[id])
		c := &report.Churned
		c.Customers = append(c.Customers, id)
		c.Locations = append(c.Locations, loc)
		c.Regions = append(c.Regions, reg)
		c.Zipped = append(c.Zipped, [3]string{id, loc, reg})
	}
	return report, nil
}

func tallyMode(into map[string]map[string]int, id string, r models.Record, col string) {
	v, ok := stringCell(r, col)
	if !ok {
		return
	}
	if into[id] == nil {
		into[id] = make(map[string]int)
	}
	into[id][v]++
}

// mode picks the most frequent value, the smallest on ties.
func mode(counts map[string]int) string {
	best, bestN := unknown, 0
	for _, v := range sortedKeys(counts) {
		if counts[v] > bestN {
			best, bestN = v, counts[v]
		}
	}
	return best
}
