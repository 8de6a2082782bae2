package analytics

import (
	"fmt"
	"strconv"

	apperrors "retail-insights/internal/errors"
	"retail-insights/internal/models"
)

// Segmentation maps customer ids to cluster ids 0..K-1.
type Segmentation struct {
	Assignments map[string]int
	Customers   []string
	K           int
}

// Segment clusters customers on standardized RFM features: minimum Recency,
// summed Frequency and summed Monetary over each customer's records.
// Customers lacking any of the three are left out. Fewer customers than
// clusters is insufficient data.
func Segment(ds *models.Dataset, opts Options) (*Segmentation, error) {
	opts = opts.withDefaults()

	type rfm struct {
		recency, frequency, monetary float64
		hasR, hasF, hasM             bool
	}
	byCustomer := make(map[string]*rfm)
	for _, r := range ds.Rows() {
		id, ok := r.Key(models.ColCustomerID)
		if !ok {
			continue
		}
		c := byCustomer[id]
		if c == nil {
			c = &rfm{}
			byCustomer[id] = c
		}
		rec, ok, err := floatCell(r, models.ColRecency)
		if err != nil {
			return nil, err
		}
		if ok && (!c.hasR || rec < c.recency) {
			c.recency, c.hasR = rec, true
		}
		freq, ok, err := floatCell(r, models.ColFrequency)
		if err != nil {
			return nil, err
		}
		if ok {
			c.frequency += freq
			c.hasF = true
		}
		mon, ok, err := floatCell(r, models.ColMonetary)
		if err != nil {
			return nil, err
		}
		if ok {
			c.monetary += mon
			c.hasM = true
		}
	}

	var customers []string
	var points [][]float64
	for _, id := range sortedKeys(byCustomer) {
		c := byCustomer[id]
		if !c.hasR || !c.hasF || !c.hasM {
			continue
		}
		customers = append(customers, id)
		points = append(points, []float64{c.recency, c.frequency, c.monetary})
	}
	if len(customers) < opts.Clusters {
		return nil, apperrors.InsufficientData(fmt.Sprintf(
			"%d customers with complete RFM metrics, need at least %d for %d segments",
			len(customers), opts.Clusters, opts.Clusters))
	}

	standardize(points)
	res := fitKMeans(points, opts.Clusters, opts.Seed)

	seg := &Segmentation{
		Assignments: make(map[string]int, len(customers)),
		Customers:   customers,
		K:           opts.Clusters,
	}
	for i, id := range customers {
		seg.Assignments[id] = res.labels[i]
	}
	return seg, nil
}

// Counts is customers per segment, ascending segment id, empty segments
// omitted.
func (s *Segmentation) Counts() models.Mapping {
	sizes := make([]int, s.K)
	for _, label := range s.Assignments {
		sizes[label]++
	}
	out := make(models.Mapping, 0, s.K)
	for label, n := range sizes {
		if n > 0 {
			out = append(out, models.Entry{Key: strconv.Itoa(label), Value: n})
		}
	}
	return out
}

// AttachSegments left-joins segment ids onto ds by customer id. Records of
// customers without a segment get no Segment cell.
func AttachSegments(ds *models.Dataset, s *Segmentation) {
	ds.AddColumn(models.ColSegment)
	for _, r := range ds.Rows() {
		id, ok := r.Key(models.ColCustomerID)
		if !ok {
			continue
		}
		if label, ok := s.Assignments[id]; ok {
			r[models.ColSegment] = label
		}
	}
}
