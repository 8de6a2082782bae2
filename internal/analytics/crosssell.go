package analytics

import (
	"cmp"
	"slices"

	"retail-insights/internal/models"
)

type pairTally struct {
	key           string
	total         float64
	contributions models.Mapping
}

// CrossSell ranks category pairs bought by the same customer. For each
// customer with two or more categories, every unordered pair "A & B" (A < B)
// adds that customer's spend in both categories to the pair total. The
// contribution breakdown is replaced by the latest customer processed rather
// than summed; customers are visited in ascending id order.
func CrossSell(ds *models.Dataset) (models.Mapping, error) {
	spend := make(map[string]map[string]float64)
	for _, r := range ds.Rows() {
		id, ok := r.Key(models.ColCustomerID)
		if !ok {
			continue
		}
		cat, ok := stringCell(r, models.ColCategory)
		if !ok {
			continue
		}
		amount, _, err := floatCell(r, models.ColPurchaseAmount)
		if err != nil {
			return nil, err
		}
		if spend[id] == nil {
			spend[id] = make(map[string]float64)
		}
		spend[id][cat] += amount
	}

	var order []*pairTally
	pairs := make(map[string]*pairTally)
	for _, id := range sortedKeys(spend) {
		byCat := spend[id]
		if len(byCat) < 2 {
			continue
		}
		cats := make([]string, 0, len(byCat))
		for c := range byCat {
			cats = append(cats, c)
		}
		slices.Sort(cats)
		for i := 0; i < len(cats); i++ {
			for j := i + 1; j < len(cats); j++ {
				a, b := cats[i], cats[j]
				key := a + " & " + b
				p := pairs[key]
				if p == nil {
					p = &pairTally{key: key}
					pairs[key] = p
					order = append(order, p)
				}
				p.total += byCat[a] + byCat[b]
				p.contributions = models.Mapping{
					{Key: a, Value: models.Round2(byCat[a])},
					{Key: b, Value: models.Round2(byCat[b])},
				}
			}
		}
	}

	slices.SortStableFunc(order, func(x, y *pairTally) int {
		return cmp.Compare(y.total, x.total)
	})
	out := make(models.Mapping, len(order))
	for i, p := range order {
		out[i] = models.Entry{Key: p.key, Value: models.CrossSellPair{
			Total:         models.Round2(p.total),
			Contributions: p.contributions,
		}}
	}
	return out, nil
}
