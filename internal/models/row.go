package models

import (
	"slices"
	"time"
)

// Row is one dated observation in the canonical dataset. Numeric measures are
// pointers so that a missing cell stays distinguishable from zero; dimension
// columns use the empty string for missing values. Week, Month and Quarter are
// stored for convenience but every computation resolves periods from Date.
type Row struct {
	Date               time.Time `parquet:"date,timestamp"`
	Week               *int64    `parquet:"week,optional"`
	Month              *int64    `parquet:"month,optional"`
	Quarter            string    `parquet:"quarter,optional"`
	Region             string    `parquet:"region,optional"`
	Country            string    `parquet:"country,optional"`
	Channel            string    `parquet:"channel,optional"`
	Category           string    `parquet:"category,optional"`
	Subcategory        string    `parquet:"subcategory,optional"`
	SKU                string    `parquet:"sku,optional"`
	PromoFlag          string    `parquet:"promo_flag,optional"`
	UnitsSold          *int64    `parquet:"units_sold,optional"`
	NetSales           *float64  `parquet:"net_sales,optional"`
	DiscountRate       *float64  `parquet:"discount_rate,optional"`
	MarketingSpend     *float64  `parquet:"marketing_spend,optional"`
	InventoryLevel     *float64  `parquet:"inventory_level,optional"`
	ForecastDemand     *float64  `parquet:"forecast_demand,optional"`
	SupplyLeadTimeDays *float64  `parquet:"supply_lead_time_days,optional"`
	FulfillmentRate    *float64  `parquet:"fulfillment_rate,optional"`
	BackorderRate      *float64  `parquet:"backorder_rate,optional"`
	CampaignName       string    `parquet:"campaign_name,optional"`
	MarketingROI       *float64  `parquet:"marketing_roi,optional"`
}

// Metric returns the named measure of the row, nil when the cell is null.
// The second return reports whether the metric name is supported at all.
func (r *Row) Metric(name string) (*float64, bool) {
	switch name {
	case "net_sales":
		return r.NetSales, true
	case "units_sold":
		if r.UnitsSold == nil {
			return nil, true
		}
		v := float64(*r.UnitsSold)
		return &v, true
	case "marketing_spend":
		return r.MarketingSpend, true
	case "discount_rate":
		return r.DiscountRate, true
	case "inventory_level":
		return r.InventoryLevel, true
	case "forecast_demand":
		return r.ForecastDemand, true
	default:
		return nil, false
	}
}

// Dimension returns the named grouping value of the row. The second return
// reports whether the dimension name is supported.
func (r *Row) Dimension(name string) (string, bool) {
	switch name {
	case "region":
		return r.Region, true
	case "country":
		return r.Country, true
	case "channel":
		return r.Channel, true
	case "category":
		return r.Category, true
	case "subcategory":
		return r.Subcategory, true
	case "sku":
		return r.SKU, true
	case "promo_flag":
		return r.PromoFlag, true
	case "campaign_name":
		return r.CampaignName, true
	default:
		return "", false
	}
}

// SupportedMetric reports whether name is a recognized measure.
func SupportedMetric(name string) bool {
	var r Row
	_, ok := r.Metric(name)
	return ok
}

// SupportedDimension reports whether name is a recognized grouping key.
func SupportedDimension(name string) bool {
	var r Row
	_, ok := r.Dimension(name)
	return ok
}

// Dataset is the ordered row collection all queries read from. It is always
// kept sorted by date ascending after any mutation.
type Dataset struct {
	Rows []Row
}

// Clone returns an independent copy of the dataset so a consumer can hold a
// snapshot the owner will never mutate underneath it.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return &Dataset{}
	}
	return &Dataset{Rows: slices.Clone(d.Rows)}
}

// Sort restores the date-ascending invariant. The sort is stable so rows on
// the same day keep their relative order.
func (d *Dataset) Sort() {
	slices.SortStableFunc(d.Rows, func(a, b Row) int {
		return a.Date.Compare(b.Date)
	})
}

// FilterOptions lists the distinct values per filterable dimension plus the
// covered date range, for populating filter pickers at the boundary.
type FilterOptions struct {
	Regions    []string `json:"regions"`
	Countries  []string `json:"countries"`
	Channels   []string `json:"channels"`
	Categories []string `json:"categories"`
	PromoFlags []string `json:"promo_flags"`
	Campaigns  []string `json:"campaigns"`
	DateRange  []string `json:"date_range"`
}

// FilterOptions computes the distinct dimension values present in the dataset.
func (d *Dataset) FilterOptions() FilterOptions {
	opts := FilterOptions{
		Regions:    distinct(d.Rows, func(r Row) string { return r.Region }),
		Countries:  distinct(d.Rows, func(r Row) string { return r.Country }),
		Channels:   distinct(d.Rows, func(r Row) string { return r.Channel }),
		Categories: distinct(d.Rows, func(r Row) string { return r.Category }),
		PromoFlags: distinct(d.Rows, func(r Row) string { return r.PromoFlag }),
		Campaigns:  distinct(d.Rows, func(r Row) string { return r.CampaignName }),
	}
	if len(d.Rows) > 0 {
		opts.DateRange = []string{
			d.Rows[0].Date.Format(time.DateOnly),
			d.Rows[len(d.Rows)-1].Date.Format(time.DateOnly),
		}
	}
	return opts
}

func distinct(rows []Row, value func(Row) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rows {
		v := value(r)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// FilterSpec is the declarative constraint set applied before any
// aggregation. Nil date bounds and empty match sets impose no constraint;
// both bounds are inclusive and each match set uses OR semantics.
type FilterSpec struct {
	Start     *time.Time
	End       *time.Time
	Region    []string
	Category  []string
	Channel   []string
	PromoFlag []string
	Campaign  []string
}

// Matches reports whether the row satisfies every constraint of the spec.
func (f FilterSpec) Matches(r *Row) bool {
	if f.Start != nil && r.Date.Before(*f.Start) {
		return false
	}
	if f.End != nil && r.Date.After(*f.End) {
		return false
	}
	return matchSet(f.Region, r.Region) &&
		matchSet(f.Category, r.Category) &&
		matchSet(f.Channel, r.Channel) &&
		matchSet(f.PromoFlag, r.PromoFlag) &&
		matchSet(f.Campaign, r.CampaignName)
}

func matchSet(set []string, value string) bool {
	if len(set) == 0 {
		return true
	}
	return slices.Contains(set, value)
}
