package models

// Derived, per-request result shapes. Everything here is plain data ready for
// JSON serialization; dates cross the boundary as ISO calendar-day strings.

type KPIBlock struct {
	TotalSales          float64 `json:"total_sales"`
	TotalUnits          int64   `json:"total_units"`
	AvgDiscount         float64 `json:"avg_discount"`
	MarketingEfficiency float64 `json:"marketing_efficiency"`
	GrowthVsPrevPeriod  float64 `json:"growth_vs_prev_period"`
}

type SeriesPoint struct {
	Period string  `json:"period"`
	Value  float64 `json:"value"`
}

type BreakdownRow struct {
	DimensionValue string  `json:"dimension_value"`
	Value          float64 `json:"value"`
	Share          float64 `json:"share"`
}

type Anomaly struct {
	Date   string  `json:"date"`
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
	ZScore float64 `json:"z_score"`
}

type InventorySummary struct {
	TotalInventory int64   `json:"total_inventory"`
	ForecastDemand int64   `json:"forecast_demand"`
	Variance       int64   `json:"variance"`
	CoverageDays   float64 `json:"coverage_days"`
	StockoutRisk   float64 `json:"stockout_risk"`
}

type InventoryPoint struct {
	Date      string  `json:"date"`
	Inventory float64 `json:"inventory"`
	Forecast  float64 `json:"forecast"`
}

type SupplyChainSummary struct {
	AvgLeadTime     float64 `json:"avg_lead_time"`
	FulfillmentRate float64 `json:"fulfillment_rate"`
	BackorderRate   float64 `json:"backorder_rate"`
}

type CampaignPerformance struct {
	CampaignName   string  `json:"campaign_name"`
	NetSales       float64 `json:"net_sales"`
	MarketingSpend float64 `json:"marketing_spend"`
	ROI            float64 `json:"roi"`
}

// NarrativeResult is the bundle the keyword dispatcher returns: which branch
// answered, the generated sentence, and the structured data behind it.
type NarrativeResult struct {
	Type      string `json:"type"`
	Narrative string `json:"narrative"`
	Data      any    `json:"data"`
}
