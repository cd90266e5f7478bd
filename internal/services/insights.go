package services

import (
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"sales-insights/internal/errors"
	"sales-insights/internal/models"
)

const defaultAnomalyWindow = 7

// Insights answers analytical questions over an immutable dataset snapshot:
// filtered KPIs, grouped breakdowns, time-bucketed series, rolling z-score
// anomaly detection, heuristic recommendations, and a keyword dispatcher
// turning a free-text question into one of those computations.
//
// Every query is a pure function of (snapshot, spec) and may run fully in
// parallel with others; the only mutation is UpdateDataset, which atomically
// swaps the snapshot reference.
type Insights struct {
	mu     sync.RWMutex
	rows   []models.Row
	logger *slog.Logger
}

func NewInsights(ds *models.Dataset, logger *slog.Logger) *Insights {
	e := &Insights{logger: logger}
	e.UpdateDataset(ds)
	return e
}

// UpdateDataset swaps in a private clone of the given dataset. Queries
// already running keep the snapshot they started with.
func (e *Insights) UpdateDataset(ds *models.Dataset) {
	snap := ds.Clone()
	e.mu.Lock()
	e.rows = snap.Rows
	e.mu.Unlock()
}

func (e *Insights) snapshot() []models.Row {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rows
}

// Filter returns the rows satisfying every constraint of the spec, in their
// original (date-ascending) order.
func (e *Insights) Filter(spec models.FilterSpec) []models.Row {
	rows := e.snapshot()
	var out []models.Row
	for i := range rows {
		if spec.Matches(&rows[i]) {
			out = append(out, rows[i])
		}
	}
	return out
}

// KPIs aggregates the filtered rows into the headline block. Growth compares
// total sales against the window of identical duration immediately before
// spec.Start, with the same non-date filters reapplied; without both date
// bounds the comparison window is empty and growth is 0.
func (e *Insights) KPIs(spec models.FilterSpec) models.KPIBlock {
	filtered := e.Filter(spec)

	totalSales := sumMetric(filtered, "net_sales")
	var totalUnits int64
	for i := range filtered {
		if filtered[i].UnitsSold != nil {
			totalUnits += *filtered[i].UnitsSold
		}
	}

	spend := sumMetric(filtered, "marketing_spend")
	efficiency := 0.0
	if spend > 0 {
		efficiency = totalSales / spend
	}

	growth := 0.0
	if prev, ok := previousPeriod(spec); ok {
		prevSales := sumMetric(e.Filter(prev), "net_sales")
		if prevSales != 0 {
			growth = (totalSales - prevSales) / prevSales
		}
	}

	return models.KPIBlock{
		TotalSales:          round2(totalSales),
		TotalUnits:          totalUnits,
		AvgDiscount:         round4(meanMetric(filtered, "discount_rate")),
		MarketingEfficiency: round4(efficiency),
		GrowthVsPrevPeriod:  round4(growth),
	}
}

// previousPeriod derives the comparison window for growth: the same number
// of calendar days (counted inclusively) ending the day before spec.Start.
func previousPeriod(spec models.FilterSpec) (models.FilterSpec, bool) {
	if spec.Start == nil || spec.End == nil {
		return spec, false
	}
	days := int(spec.End.Sub(*spec.Start).Hours()/24) + 1
	if days <= 0 {
		return spec, false
	}
	prevStart := spec.Start.AddDate(0, 0, -days)
	prevEnd := spec.Start.AddDate(0, 0, -1)
	prev := spec
	prev.Start, prev.End = &prevStart, &prevEnd
	return prev, true
}

// Series buckets the filtered rows by calendar period and sums the metric
// per bucket. Buckets with no matching rows are omitted.
func (e *Insights) Series(metric, freq string, spec models.FilterSpec) ([]models.SeriesPoint, error) {
	bucket, err := bucketFunc(freq)
	if err != nil {
		return nil, err
	}
	if !models.SupportedMetric(metric) {
		return nil, errors.UnsupportedMetric(metric)
	}

	filtered := e.Filter(spec)
	sums := make(map[time.Time]float64)
	var periods []time.Time
	for i := range filtered {
		p := bucket(filtered[i].Date)
		if _, seen := sums[p]; !seen {
			periods = append(periods, p)
			sums[p] = 0
		}
		if v, _ := filtered[i].Metric(metric); v != nil {
			sums[p] += *v
		}
	}
	slices.SortFunc(periods, func(a, b time.Time) int { return a.Compare(b) })

	points := make([]models.SeriesPoint, 0, len(periods))
	for _, p := range periods {
		points = append(points, models.SeriesPoint{
			Period: p.Format(time.DateOnly),
			Value:  round2(sums[p]),
		})
	}
	return points, nil
}

func bucketFunc(freq string) (func(time.Time) time.Time, error) {
	switch strings.ToUpper(strings.TrimSpace(freq)) {
	case "D", "DAILY":
		return func(t time.Time) time.Time { return t }, nil
	case "M", "MONTHLY":
		return func(t time.Time) time.Time {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		}, nil
	case "Q", "QUARTERLY":
		return func(t time.Time) time.Time {
			m := time.Month(((int(t.Month())-1)/3)*3 + 1)
			return time.Date(t.Year(), m, 1, 0, 0, 0, 0, time.UTC)
		}, nil
	default:
		return nil, errors.UnsupportedFrequency(freq)
	}
}

// Breakdown groups the filtered rows by a dimension, sums the metric per
// group and ranks groups descending by value. Share is each group's fraction
// of the grand total; when the total is zero all shares are zero.
func (e *Insights) Breakdown(by, metric string, spec models.FilterSpec) ([]models.BreakdownRow, error) {
	if !models.SupportedDimension(by) {
		return nil, errors.UnsupportedDimension(by)
	}
	if !models.SupportedMetric(metric) {
		return nil, errors.UnsupportedMetric(metric)
	}

	filtered := e.Filter(spec)
	sums := make(map[string]float64)
	var order []string
	for i := range filtered {
		key, _ := filtered[i].Dimension(by)
		if key == "" {
			continue
		}
		if _, seen := sums[key]; !seen {
			order = append(order, key)
			sums[key] = 0
		}
		if v, _ := filtered[i].Metric(metric); v != nil {
			sums[key] += *v
		}
	}

	total := 0.0
	for _, k := range order {
		total += sums[k]
	}
	denom := total
	if denom == 0 {
		denom = 1
	}

	rows := make([]models.BreakdownRow, 0, len(order))
	for _, k := range order {
		rows = append(rows, models.BreakdownRow{
			DimensionValue: k,
			Value:          round2(sums[k]),
			Share:          round4(sums[k] / denom),
		})
	}
	slices.SortStableFunc(rows, func(a, b models.BreakdownRow) int {
		switch {
		case a.Value > b.Value:
			return -1
		case a.Value < b.Value:
			return 1
		default:
			return 0
		}
	})
	return rows, nil
}

// Stats summarizes the current snapshot for monitoring.
func (e *Insights) Stats() map[string]any {
	rows := e.snapshot()
	stats := map[string]any{
		"rows": len(rows),
	}
	if len(rows) > 0 {
		stats["first_date"] = rows[0].Date.Format(time.DateOnly)
		stats["last_date"] = rows[len(rows)-1].Date.Format(time.DateOnly)
	}
	return stats
}

func sumMetric(rows []models.Row, metric string) float64 {
	total := 0.0
	for i := range rows {
		if v, _ := rows[i].Metric(metric); v != nil {
			total += *v
		}
	}
	return total
}

// meanMetric averages the non-null values of a metric, 0 when none exist.
func meanMetric(rows []models.Row, metric string) float64 {
	total, count := 0.0, 0
	for i := range rows {
		if v, _ := rows[i].Metric(metric); v != nil {
			total += *v
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
