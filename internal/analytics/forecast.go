package analytics

import (
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	apperrors "retail-insights/internal/errors"
	"retail-insights/internal/models"
)

const (
	monthKeyLayout = "2006-01"
	holdoutShare   = 0.2
	rankTolerance  = 1e-10
)

// MonthlySales sums purchases per calendar month, oldest month first.
func MonthlySales(ds *models.Dataset) ([]string, []float64, error) {
	total := make(map[string]float64)
	for _, r := range ds.Rows() {
		t, ok := timeCell(r, models.ColDate)
		if !ok {
			continue
		}
		amount, ok, err := floatCell(r, models.ColPurchaseAmount)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			total[t.Format(monthKeyLayout)] += amount
		}
	}
	keys := make([]string, 0, len(total))
	for k := range total {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	sales := make([]float64, len(keys))
	for i, k := range keys {
		sales[i] = total[k]
	}
	return keys, sales, nil
}

// linearModel is ordinary least squares over standardized features.
type linearModel struct {
	mean, scale []float64
	coef        []float64
	intercept   float64
}

// fitLinear fits y ~ X. Features are standardized with the training mean and
// population deviation; rank-deficient systems get the minimum-norm solution.
func fitLinear(X [][]float64, y []float64) linearModel {
	n, dims := len(X), len(X[0])
	m := linearModel{mean: make([]float64, dims), scale: make([]float64, dims), coef: make([]float64, dims)}

	col := make([]float64, n)
	for j := 0; j < dims; j++ {
		for i := range X {
			col[i] = X[i][j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		m.mean[j], m.scale[j] = mean, std
	}

	m.intercept = stat.Mean(y, nil)
	design := mat.NewDense(n, dims, nil)
	target := mat.NewVecDense(n, nil)
	for i := range X {
		for j := range X[i] {
			design.Set(i, j, (X[i][j]-m.mean[j])/m.scale[j])
		}
		target.SetVec(i, y[i]-m.intercept)
	}

	var svd mat.SVD
	if !svd.Factorize(design, mat.SVDThin) {
		return m
	}
	rank := svd.Rank(rankTolerance)
	if rank == 0 {
		return m
	}
	coef := mat.NewVecDense(dims, nil)
	svd.SolveVecTo(coef, target, rank)
	for j := range m.coef {
		m.coef[j] = coef.AtVec(j)
	}
	return m
}

func (m linearModel) predict(x []float64) float64 {
	out := m.intercept
	for j, v := range x {
		out += m.coef[j] * (v - m.mean[j]) / m.scale[j]
	}
	return out
}

// holdoutSplit shuffles indices 0..n-1 with the seed and returns the training
// part after reserving ceil(20%) for the holdout.
func holdoutSplit(n int, seed uint64) (train, test []int) {
	perm := rand.New(rand.NewPCG(seed, seed)).Perm(n)
	nTest := int(math.Ceil(holdoutShare * float64(n)))
	return perm[nTest:], perm[:nTest]
}

// ForecastSales fits a linear trend over monthly sales using the month's
// sequence index, calendar month and year, and projects the following month.
// The confidence figure is the configured constant, not a statistical
// estimate.
func ForecastSales(ds *models.Dataset, opts Options) (*models.Forecast, error) {
	opts = opts.withDefaults()
	keys, sales, err := MonthlySales(ds)
	if err != nil {
		return nil, err
	}
	if len(keys) < 2 {
		return nil, apperrors.InsufficientData("forecasting needs at least two months of sales")
	}

	months := make([]time.Time, len(keys))
	features := make([][]float64, len(keys))
	for i, k := range keys {
		t, err := time.Parse(monthKeyLayout, k)
		if err != nil {
			return nil, apperrors.Computation(err, "bad month key")
		}
		months[i] = t
		features[i] = monthFeatures(i, t)
	}

	train, _ := holdoutSplit(len(keys), opts.Seed)
	trainX := make([][]float64, len(train))
	trainY := make([]float64, len(train))
	for i, idx := range train {
		trainX[i], trainY[i] = features[idx], sales[idx]
	}
	model := fitLinear(trainX, trainY)

	out := &models.Forecast{MonthlySales: make([]models.MonthlyPoint, len(keys))}
	for i, k := range keys {
		out.MonthlySales[i] = models.MonthlyPoint{
			MonthKey:  k,
			Actual:    models.Round2(sales[i]),
			Predicted: models.Round2(model.predict(features[i])),
		}
	}
	next := months[len(months)-1].AddDate(0, 1, 0)
	out.NextMonthSales = models.Round2(model.predict(monthFeatures(len(keys), next)))
	out.Metrics = models.ForecastMetrics{
		Trend:               models.Round2(Trend(sales)),
		Confidence:          opts.ForecastConfidence,
		NextMonthPrediction: out.NextMonthSales,
	}
	return out, nil
}

func monthFeatures(index int, month time.Time) []float64 {
	return []float64{float64(index), float64(month.Month()), float64(month.Year())}
}

// Trend is (last - first) / number of months, zero below two months.
func Trend(sales []float64) float64 {
	if len(sales) < 2 {
		return 0
	}
	return (sales[len(sales)-1] - sales[0]) / float64(len(sales))
}
