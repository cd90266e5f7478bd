package services

import (
	"math"
	"time"

	"sales-insights/internal/errors"
	"sales-insights/internal/models"
)

type dailyPoint struct {
	date  time.Time
	value float64
}

// Anomalies scores a dense daily series of the metric with a trailing
// rolling mean and sample standard deviation over the preceding window days
// (inclusive of the current day), and flags days where |z| >= 2. Days with
// no matching rows count as zero, and no day can be flagged before a full
// window of history exists.
func (e *Insights) Anomalies(metric string, window int, spec models.FilterSpec) ([]models.Anomaly, error) {
	if !models.SupportedMetric(metric) {
		return nil, errors.UnsupportedMetric(metric)
	}
	if window < 2 {
		return nil, errors.Validation("anomaly window must span at least 2 days")
	}

	filtered := e.Filter(spec)
	if len(filtered) == 0 {
		return nil, nil
	}
	series := denseDailySeries(filtered, metric)

	var flagged []models.Anomaly
	sum, sumSq := 0.0, 0.0
	for i, p := range series {
		sum += p.value
		sumSq += p.value * p.value
		if i >= window {
			old := series[i-window].value
			sum -= old
			sumSq -= old * old
		}
		if i < window-1 {
			continue
		}

		n := float64(window)
		mean := sum / n
		variance := (sumSq - sum*sum/n) / (n - 1)
		if variance <= 1e-9 {
			continue
		}
		z := (p.value - mean) / math.Sqrt(variance)
		if math.Abs(z) >= 2 {
			flagged = append(flagged, models.Anomaly{
				Date:   p.date.Format(time.DateOnly),
				Metric: metric,
				Value:  round2(p.value),
				ZScore: round2(z),
			})
		}
	}
	return flagged, nil
}

// denseDailySeries sums the metric per calendar day and fills every day
// between the first and last observation, zero for days with no rows.
func denseDailySeries(rows []models.Row, metric string) []dailyPoint {
	sums := make(map[time.Time]float64, len(rows))
	first, last := rows[0].Date, rows[0].Date
	for i := range rows {
		d := rows[i].Date
		if d.Before(first) {
			first = d
		}
		if d.After(last) {
			last = d
		}
		if v, _ := rows[i].Metric(metric); v != nil {
			sums[d] += *v
		} else if _, seen := sums[d]; !seen {
			sums[d] = 0
		}
	}

	var series []dailyPoint
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		series = append(series, dailyPoint{date: d, value: sums[d]})
	}
	return series
}
