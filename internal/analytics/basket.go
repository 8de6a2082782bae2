package analytics

import (
	"cmp"
	"slices"
	"strings"

	apperrors "retail-insights/internal/errors"
	"retail-insights/internal/models"
)

type itemset []string

func (s itemset) key() string { return strings.Join(s, "\x1f") }

// baskets builds one product set per customer. When purchase amounts exist a
// product only counts if the customer's total spend on it is positive.
func baskets(ds *models.Dataset) ([]map[string]bool, error) {
	withAmounts := ds.Has(models.ColPurchaseAmount)
	spend := make(map[string]map[string]float64)
	for _, r := range ds.Rows() {
		id, ok := r.Key(models.ColCustomerID)
		if !ok {
			continue
		}
		product, ok := stringCell(r, models.ColProductID)
		if !ok {
			continue
		}
		amount := 1.0
		if withAmounts {
			v, ok, err := floatCell(r, models.ColPurchaseAmount)
			if err != nil {
				return nil, err
			}
			amount = 0
			if ok {
				amount = v
			}
		}
		if spend[id] == nil {
			spend[id] = make(map[string]float64)
		}
		spend[id][product] += amount
	}

	out := make([]map[string]bool, 0, len(spend))
	for _, id := range sortedKeys(spend) {
		b := make(map[string]bool)
		for product, total := range spend[id] {
			if total > 0 {
				b[product] = true
			}
		}
		out = append(out, b)
	}
	return out, nil
}

func support(set itemset, baskets []map[string]bool) float64 {
	hits := 0
	for _, b := range baskets {
		all := true
		for _, item := range set {
			if !b[item] {
				all = false
				break
			}
		}
		if all {
			hits++
		}
	}
	return float64(hits) / float64(len(baskets))
}

// frequentItemsets runs level-wise apriori up to maxItems items per set.
func frequentItemsets(baskets []map[string]bool, minSupport float64, maxItems int) map[string]float64 {
	items := make(map[string]bool)
	for _, b := range baskets {
		for it := range b {
			items[it] = true
		}
	}
	frequent := make(map[string]float64)
	var level []itemset
	for _, it := range sortedKeys(items) {
		s := itemset{it}
		if sup := support(s, baskets); sup >= minSupport {
			frequent[s.key()] = sup
			level = append(level, s)
		}
	}

	for size := 2; size <= maxItems && len(level) > 1; size++ {
		var next []itemset
		for i := 0; i < len(level); i++ {
			for j := i + 1; j < len(level); j++ {
				a, b := level[i], level[j]
				if !slices.Equal(a[:size-2], b[:size-2]) {
					continue
				}
				cand := append(slices.Clone(a), b[size-2])
				slices.Sort(cand)
				if !allSubsetsFrequent(cand, frequent) {
					continue
				}
				if sup := support(cand, baskets); sup >= minSupport {
					frequent[cand.key()] = sup
					next = append(next, cand)
				}
			}
		}
		slices.SortFunc(next, func(x, y itemset) int { return strings.Compare(x.key(), y.key()) })
		level = next
	}
	return frequent
}

func allSubsetsFrequent(cand itemset, frequent map[string]float64) bool {
	for skip := range cand {
		sub := make(itemset, 0, len(cand)-1)
		sub = append(sub, cand[:skip]...)
		sub = append(sub, cand[skip+1:]...)
		if _, ok := frequent[sub.key()]; !ok {
			return false
		}
	}
	return true
}

// BasketRules mines association rules between products bought by the same
// customer. Rules come back strongest first: confidence, then lift.
func BasketRules(ds *models.Dataset, minSupport, minConfidence float64, maxItems int) ([]models.AssociationRule, error) {
	bs, err := baskets(ds)
	if err != nil {
		return nil, err
	}
	if len(bs) == 0 {
		return nil, apperrors.InsufficientData("no customer baskets")
	}
	frequent := frequentItemsets(bs, minSupport, maxItems)

	rules := []models.AssociationRule{}
	for key, sup := range frequent {
		set := itemset(strings.Split(key, "\x1f"))
		if len(set) < 2 {
			continue
		}
		full := 1<<len(set) - 1
		for mask := 1; mask < full; mask++ {
			var ante, cons itemset
			for i, it := range set {
				if mask&(1<<i) != 0 {
					ante = append(ante, it)
				} else {
					cons = append(cons, it)
				}
			}
			conf := sup / frequent[ante.key()]
			if conf < minConfidence {
				continue
			}
			rules = append(rules, models.AssociationRule{
				Antecedents: ante,
				Consequents: cons,
				Support:     sup,
				Confidence:  conf,
				Lift:        conf / frequent[cons.key()],
			})
		}
	}
	slices.SortFunc(rules, func(a, b models.AssociationRule) int {
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Lift, a.Lift); c != 0 {
			return c
		}
		if c := strings.Compare(itemset(a.Antecedents).key(), itemset(b.Antecedents).key()); c != 0 {
			return c
		}
		return strings.Compare(itemset(a.Consequents).key(), itemset(b.Consequents).key())
	})
	return rules, nil
}
