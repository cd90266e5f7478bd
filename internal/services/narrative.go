package services

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"sales-insights/internal/models"
)

// narrate formats narrative numbers with thousands separators.
var narrate = message.NewPrinter(language.English)

// InventorySummary totals stock against forecast demand. Coverage days is
// total inventory over the mean daily forecast, 0 when there is no demand.
func (e *Insights) InventorySummary(spec models.FilterSpec) models.InventorySummary {
	filtered := e.Filter(spec)

	totalInventory := int64(sumMetric(filtered, "inventory_level"))
	forecast := int64(sumMetric(filtered, "forecast_demand"))

	dailyDemand := 0.0
	if days := countDays(filtered); days > 0 {
		dailyDemand = sumMetric(filtered, "forecast_demand") / float64(days)
	}

	coverage := 0.0
	if dailyDemand != 0 {
		coverage = round2(float64(totalInventory) / dailyDemand)
	}
	risk := 0.0
	if forecast > 0 {
		risk = round3(math.Max(float64(forecast-totalInventory), 0) / float64(forecast))
	}

	return models.InventorySummary{
		TotalInventory: totalInventory,
		ForecastDemand: forecast,
		Variance:       totalInventory - forecast,
		CoverageDays:   coverage,
		StockoutRisk:   risk,
	}
}

// InventorySeries sums inventory and forecast per day, ascending.
func (e *Insights) InventorySeries(spec models.FilterSpec) []models.InventoryPoint {
	filtered := e.Filter(spec)

	type pair struct{ inventory, forecast float64 }
	sums := make(map[time.Time]*pair)
	var days []time.Time
	for i := range filtered {
		d := filtered[i].Date
		p, seen := sums[d]
		if !seen {
			p = &pair{}
			sums[d] = p
			days = append(days, d)
		}
		if v := filtered[i].InventoryLevel; v != nil {
			p.inventory += *v
		}
		if v := filtered[i].ForecastDemand; v != nil {
			p.forecast += *v
		}
	}
	slices.SortFunc(days, func(a, b time.Time) int { return a.Compare(b) })

	points := make([]models.InventoryPoint, 0, len(days))
	for _, d := range days {
		points = append(points, models.InventoryPoint{
			Date:      d.Format(time.DateOnly),
			Inventory: round2(sums[d].inventory),
			Forecast:  round2(sums[d].forecast),
		})
	}
	return points
}

// SupplyChainSummary averages the supply-chain health measures over the
// filtered rows, skipping null cells. These columns are deliberately not part
// of the query-able metric set, so they are read off the rows directly.
func (e *Insights) SupplyChainSummary(spec models.FilterSpec) models.SupplyChainSummary {
	filtered := e.Filter(spec)
	return models.SupplyChainSummary{
		AvgLeadTime:     round2(meanField(filtered, func(r *models.Row) *float64 { return r.SupplyLeadTimeDays })),
		FulfillmentRate: round3(meanField(filtered, func(r *models.Row) *float64 { return r.FulfillmentRate })),
		BackorderRate:   round3(meanField(filtered, func(r *models.Row) *float64 { return r.BackorderRate })),
	}
}

// meanField averages the non-null values of a column, 0 when none exist.
func meanField(rows []models.Row, field func(*models.Row) *float64) float64 {
	total, count := 0.0, 0
	for i := range rows {
		if v := field(&rows[i]); v != nil {
			total += *v
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// MarketingPerformance groups sales and spend by campaign, computes ROI per
// campaign (0 when spend is 0) and ranks campaigns descending by ROI.
func (e *Insights) MarketingPerformance(spec models.FilterSpec, limit int) []models.CampaignPerformance {
	if limit <= 0 {
		limit = 10
	}
	filtered := e.Filter(spec)

	type totals struct{ sales, spend float64 }
	sums := make(map[string]*totals)
	var order []string
	for i := range filtered {
		name := filtered[i].CampaignName
		if name == "" {
			continue
		}
		t, seen := sums[name]
		if !seen {
			t = &totals{}
			sums[name] = t
			order = append(order, name)
		}
		if v := filtered[i].NetSales; v != nil {
			t.sales += *v
		}
		if v := filtered[i].MarketingSpend; v != nil {
			t.spend += *v
		}
	}

	perf := make([]models.CampaignPerformance, 0, len(order))
	for _, name := range order {
		t := sums[name]
		roi := 0.0
		if t.spend != 0 {
			roi = (t.sales - t.spend) / t.spend
		}
		perf = append(perf, models.CampaignPerformance{
			CampaignName:   name,
			NetSales:       round2(t.sales),
			MarketingSpend: round2(t.spend),
			ROI:            round3(roi),
		})
	}
	slices.SortStableFunc(perf, func(a, b models.CampaignPerformance) int {
		switch {
		case a.ROI > b.ROI:
			return -1
		case a.ROI < b.ROI:
			return 1
		default:
			return 0
		}
	})
	if len(perf) > limit {
		perf = perf[:limit]
	}
	return perf
}

// Recommendations runs a fixed heuristic pipeline, each step appending at
// most one statement, topped up with a generic loyalty suggestion when fewer
// than limit statements were produced.
func (e *Insights) Recommendations(spec models.FilterSpec, limit int) []string {
	if limit <= 0 {
		limit = 5
	}

	var statements []string
	if regions, err := e.Breakdown("region", "net_sales", spec); err == nil && len(regions) > 0 {
		top := regions[0]
		statements = append(statements, fmt.Sprintf(
			"Double down on %s where it contributes %.1f%% of sales.",
			top.DimensionValue, top.Share*100))
	}
	if anomalies, err := e.Anomalies("net_sales", defaultAnomalyWindow, spec); err == nil && len(anomalies) > 0 {
		latest := anomalies[len(anomalies)-1]
		direction := "spike"
		if latest.ZScore < 0 {
			direction = "drop"
		}
		statements = append(statements, fmt.Sprintf(
			"Investigate %s on %s for %s (z=%.2f).",
			direction, latest.Date, latest.Metric, latest.ZScore))
	}
	if categories, err := e.Breakdown("category", "net_sales", spec); err == nil && len(categories) > 0 {
		laggard := categories[len(categories)-1]
		statements = append(statements, fmt.Sprintf(
			"Consider promo bundles for %s which only holds %.1f%% share.",
			laggard.DimensionValue, laggard.Share*100))
	}
	if len(statements) < limit {
		statements = append(statements, "Explore loyalty offers to lift repeat purchases in underperforming channels.")
	}
	if len(statements) > limit {
		statements = statements[:limit]
	}
	return statements
}

// narrativeRule pairs a keyword predicate with the handler that answers it.
// Rules are evaluated top to bottom; the first match wins.
type narrativeRule struct {
	name   string
	match  func(q string) bool
	answer func(spec models.FilterSpec) models.NarrativeResult
}

func (e *Insights) narrativeRules() []narrativeRule {
	return []narrativeRule{
		{"inventory", containsAny("stock", "inventory"), e.answerInventory},
		{"supply", containsAny("supply", "lead time", "fulfillment"), e.answerSupply},
		{"marketing", containsAny("campaign", "marketing"), e.answerMarketing},
		{"top_regions", func(q string) bool {
			return strings.Contains(q, "top") &&
				(strings.Contains(q, "region") || strings.Contains(q, "country"))
		}, e.answerTopRegions},
		{"category", containsAny("category"), e.answerCategories},
		{"trend", containsAny("trend", "over time", "quarter"), e.answerTrend},
		{"anomaly", containsAny("why", "drop", "decline"), e.answerAnomalies},
	}
}

// NarrativeAnswer routes a free-text question to one aggregation via the
// ordered keyword rules, defaulting to the KPI summary.
func (e *Insights) NarrativeAnswer(question string, spec models.FilterSpec) models.NarrativeResult {
	q := strings.ToLower(question)
	for _, rule := range e.narrativeRules() {
		if rule.match(q) {
			e.logger.Debug("narrative dispatch", "branch", rule.name)
			return rule.answer(spec)
		}
	}
	e.logger.Debug("narrative dispatch", "branch", "kpi")
	return e.answerKPIs(spec)
}

func containsAny(keywords ...string) func(string) bool {
	return func(q string) bool {
		for _, kw := range keywords {
			if strings.Contains(q, kw) {
				return true
			}
		}
		return false
	}
}

func (e *Insights) answerInventory(spec models.FilterSpec) models.NarrativeResult {
	summary := e.InventorySummary(spec)
	series := e.InventorySeries(spec)
	return models.NarrativeResult{
		Type: "inventory",
		Narrative: narrate.Sprintf("Total stock is %d units vs %d forecast, providing %v days of cover.",
			summary.TotalInventory, summary.ForecastDemand, summary.CoverageDays),
		Data: map[string]any{"summary": summary, "series": series},
	}
}

func (e *Insights) answerSupply(spec models.FilterSpec) models.NarrativeResult {
	summary := e.SupplyChainSummary(spec)
	return models.NarrativeResult{
		Type: "supply",
		Narrative: fmt.Sprintf("Average lead time sits at %.2f days with %.1f%% fulfillment and %.1f%% backorders.",
			summary.AvgLeadTime, summary.FulfillmentRate*100, summary.BackorderRate*100),
		Data: summary,
	}
}

func (e *Insights) answerMarketing(spec models.FilterSpec) models.NarrativeResult {
	perf := e.MarketingPerformance(spec, 10)
	narrative := "No marketing campaigns found for the selected filters."
	if len(perf) > 0 {
		best := perf[0]
		narrative = narrate.Sprintf("%s leads ROI at %.1f%% on $%.0f spend.",
			best.CampaignName, best.ROI*100, best.MarketingSpend)
	}
	return models.NarrativeResult{Type: "marketing", Narrative: narrative, Data: perf}
}

func (e *Insights) answerTopRegions(spec models.FilterSpec) models.NarrativeResult {
	breakdown, _ := e.Breakdown("region", "net_sales", spec)
	if len(breakdown) > 5 {
		breakdown = breakdown[:5]
	}
	narrative := "No region data for the selected filters."
	if len(breakdown) > 0 {
		parts := make([]string, 0, len(breakdown))
		for _, row := range breakdown {
			parts = append(parts, fmt.Sprintf("%s (%.1f%%)", row.DimensionValue, row.Share*100))
		}
		narrative = fmt.Sprintf("Top regions by sales: %s.", strings.Join(parts, ", "))
	}
	return models.NarrativeResult{Type: "breakdown", Narrative: narrative, Data: breakdown}
}

func (e *Insights) answerCategories(spec models.FilterSpec) models.NarrativeResult {
	breakdown, _ := e.Breakdown("category", "net_sales", spec)
	narrative := "No category data for the selected filters."
	if len(breakdown) > 0 {
		narrative = fmt.Sprintf("%s leads with %.1f%% share.",
			breakdown[0].DimensionValue, breakdown[0].Share*100)
	}
	return models.NarrativeResult{Type: "breakdown", Narrative: narrative, Data: breakdown}
}

func (e *Insights) answerTrend(spec models.FilterSpec) models.NarrativeResult {
	points, _ := e.Series("net_sales", "Q", spec)
	narrative := "No sales recorded for the selected filters."
	if len(points) > 0 {
		low, high := points[0].Value, points[0].Value
		for _, p := range points[1:] {
			low = math.Min(low, p.Value)
			high = math.Max(high, p.Value)
		}
		narrative = fmt.Sprintf("Quarterly sales ranged from %.0f to %.0f.", low, high)
	}
	return models.NarrativeResult{Type: "series", Narrative: narrative, Data: points}
}

// answerAnomalies scans the whole dataset rather than the filtered window,
// matching how "why did sales drop" questions need the full history.
func (e *Insights) answerAnomalies(models.FilterSpec) models.NarrativeResult {
	anomalies, _ := e.Anomalies("net_sales", defaultAnomalyWindow, models.FilterSpec{})
	narrative := "No significant anomalies detected in the selected window."
	if len(anomalies) > 0 {
		latest := anomalies[len(anomalies)-1]
		direction := "spike"
		if latest.ZScore < 0 {
			direction = "drop"
		}
		narrative = fmt.Sprintf("Detected %s %s on %s with z-score %.2f.",
			latest.Metric, direction, latest.Date, latest.ZScore)
	}
	return models.NarrativeResult{Type: "anomaly", Narrative: narrative, Data: anomalies}
}

func (e *Insights) answerKPIs(spec models.FilterSpec) models.NarrativeResult {
	kpi := e.KPIs(spec)
	return models.NarrativeResult{
		Type: "kpi",
		Narrative: narrate.Sprintf("Sales reached $%.0f with %d units. Marketing efficiency sits at %.2f and discounts averaged %.1f%%.",
			kpi.TotalSales, kpi.TotalUnits, kpi.MarketingEfficiency, kpi.AvgDiscount*100),
		Data: kpi,
	}
}

// countDays counts distinct observation dates in the rows.
func countDays(rows []models.Row) int {
	seen := make(map[time.Time]bool, len(rows))
	for i := range rows {
		seen[rows[i].Date] = true
	}
	return len(seen)
}
