package services

import (
	"testing"
	"time"

	"sales-insights/internal/errors"
	"sales-insights/internal/models"
)

func dailySales(start time.Time, values []float64) []models.Row {
	rows := make([]models.Row, 0, len(values))
	for i, v := range values {
		rows = append(rows, salesRow(start.AddDate(0, 0, i), "Europe", v))
	}
	return rows
}

func TestAnomalies_FlagsOnlyTheSpike(t *testing.T) {
	values := []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 100}
	e := newTestEngine(t, dailySales(day(2024, 1, 1), values))

	got, err := e.Anomalies("net_sales", 7, models.FilterSpec{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly the spike flagged, got %+v", got)
	}
	a := got[0]
	if a.Date != "2024-01-11" || a.Metric != "net_sales" || a.Value != 100 {
		t.Errorf("unexpected anomaly: %+v", a)
	}
	if a.ZScore != 2.27 {
		t.Errorf("expected z-score 2.27, got %v", a.ZScore)
	}
}

func TestAnomalies_ConstantSeriesNeverFlags(t *testing.T) {
	values := []float64{50, 50, 50, 50, 50, 50, 50, 50}
	e := newTestEngine(t, dailySales(day(2024, 1, 1), values))

	got, err := e.Anomalies("net_sales", 3, models.FilterSpec{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("zero-variance windows must not flag, got %+v", got)
	}
}

func TestAnomalies_NothingFlaggedBeforeFullWindow(t *testing.T) {
	// Only 4 days of history with a window of 7: no day is scorable.
	values := []float64{10, 10, 10, 500}
	e := newTestEngine(t, dailySales(day(2024, 1, 1), values))

	got, err := e.Anomalies("net_sales", 7, models.FilterSpec{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("no day before a full window should be flagged, got %+v", got)
	}
}

func TestAnomalies_MissingDaysCountAsZero(t *testing.T) {
	// A gap on 2024-01-08 becomes a zero-sales day and reads as a drop.
	rows := dailySales(day(2024, 1, 1), []float64{10, 10, 10, 10, 10, 10, 10})
	rows = append(rows, salesRow(day(2024, 1, 9), "Europe", 100))
	e := newTestEngine(t, rows)

	got, err := e.Anomalies("net_sales", 7, models.FilterSpec{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected the filled gap and the spike flagged, got %+v", got)
	}
	if got[0].Date != "2024-01-08" || got[0].ZScore >= 0 {
		t.Errorf("expected a negative z-score on the gap day, got %+v", got[0])
	}
	if got[1].Date != "2024-01-09" || got[1].ZScore <= 0 {
		t.Errorf("expected a positive z-score on the spike day, got %+v", got[1])
	}
}

func TestAnomalies_EmptyFilterResult(t *testing.T) {
	e := newTestEngine(t, dailySales(day(2024, 1, 1), []float64{10, 20, 30}))

	got, err := e.Anomalies("net_sales", 7, models.FilterSpec{Region: []string{"Atlantis"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected no anomalies on an empty filter result, got %+v", got)
	}
}

func TestAnomalies_InvalidInputs(t *testing.T) {
	e := newTestEngine(t, nil)

	if _, err := e.Anomalies("vibes", 7, models.FilterSpec{}); !errors.HasCode(err, errors.CodeUnsupportedMetric) {
		t.Errorf("expected UNSUPPORTED_METRIC, got %v", err)
	}
	if _, err := e.Anomalies("net_sales", 1, models.FilterSpec{}); !errors.HasCode(err, errors.CodeValidation) {
		t.Errorf("expected VALIDATION_ERROR for window < 2, got %v", err)
	}
}
