// Command seedgen synthesizes a demo sales/operations CSV matching the
// canonical schema. It only produces input for bootstrap; nothing in the
// service reads its output at query time.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"
)

var regions = map[string][]string{
	"North America": {"USA", "Canada"},
	"Europe":        {"Germany", "France", "UK", "Spain"},
	"APAC":          {"India", "Singapore", "Japan", "Australia"},
	"LATAM":         {"Brazil", "Mexico", "Chile"},
}

var channels = []string{"Online", "Retail", "Outlet", "Marketplace"}

var categories = map[string][]string{
	"Apparel":     {"T-Shirts", "Hoodies", "Jackets"},
	"Footwear":    {"Sneakers", "Running", "Sandals"},
	"Accessories": {"Caps", "Backpacks", "Watches"},
}

var categoryPrices = map[string]float64{
	"Apparel":     35,
	"Footwear":    90,
	"Accessories": 45,
}

var promoTypes = []string{"None", "Clearance", "BOGO", "Flash", "Loyalty"}

var campaigns = map[string][]string{
	"Apparel":     {"Spring Refresh", "Summer Splash", "Back-to-School"},
	"Footwear":    {"Run Faster", "Trail Master", "City Walks"},
	"Accessories": {"Everyday Essentials", "Travel Light", "Style Up"},
}

var header = []string{
	"date", "week", "month", "quarter", "region", "country", "channel",
	"category", "subcategory", "sku", "promo_flag", "units_sold", "net_sales",
	"discount_rate", "marketing_spend", "inventory_level", "forecast_demand",
	"supply_lead_time_days", "fulfillment_rate", "backorder_rate",
	"campaign_name", "marketing_roi",
}

func main() {
	out := flag.String("out", "data/sales_seed.csv", "output CSV path")
	days := flag.Int("days", 365, "number of days to simulate")
	seed := flag.Uint64("seed", 42, "random seed")
	startDate := flag.String("start", "2024-01-01", "start date (YYYY-MM-DD)")
	flag.Parse()

	start, err := time.Parse(time.DateOnly, *startDate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid start date: %v\n", err)
		os.Exit(1)
	}

	rng := rand.New(rand.NewPCG(*seed, *seed))
	records := generate(rng, start, *days)

	if err := writeCSV(*out, records); err != nil {
		fmt.Fprintf(os.Stderr, "write failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d rows to %s\n", len(records), *out)
}

func generate(rng *rand.Rand, start time.Time, days int) [][]string {
	var records [][]string
	for offset := 0; offset < days; offset++ {
		day := start.AddDate(0, 0, offset)
		season := seasonality(day.Month())

		for _, region := range sortedKeys(regions) {
			countries := regions[region]
			for _, category := range sortedKeys(categories) {
				subs := categories[category]
				sub := subs[rng.IntN(len(subs))]
				channel := channels[rng.IntN(len(channels))]
				promo := pickPromo(rng)
				country := countries[rng.IntN(len(countries))]

				baseUnits := 20 + rng.IntN(101)
				promoBoost := 1.0
				if promo != "None" {
					promoBoost = 1.2
				}
				weekdayBoost := 1.0
				if wd := day.Weekday(); wd == time.Friday || wd == time.Saturday {
					weekdayBoost = 1.3
				}

				units := int(float64(baseUnits) * season * promoBoost * weekdayBoost)
				price := categoryPrices[category]
				discount := 0.05
				if promo != "None" {
					discount = 0.1 + rng.Float64()*0.25
				}
				netSales := float64(units) * price * (1 - discount)
				marketing := (200 + rng.Float64()*1300) * season
				forecast := max(int(float64(units)*(0.9+rng.Float64()*0.35)), units+5)
				safetyStock := 20 + rng.IntN(61)
				inventory := max(forecast-units+safetyStock, 0)
				leadTime := 5 + rng.IntN(16)
				fulfillment := 0.9 + rng.Float64()*0.09
				backorder := float64(max(units-inventory, 0)) / float64(max(inventory+1, units))
				campaignPool := campaigns[category]
				campaign := campaignPool[rng.IntN(len(campaignPool))]
				roi := 0.0
				if marketing > 0 {
					roi = (netSales - marketing) / marketing
				}

				_, week := day.ISOWeek()
				records = append(records, []string{
					day.Format(time.DateOnly),
					strconv.Itoa(week),
					strconv.Itoa(int(day.Month())),
					fmt.Sprintf("Q%d", (int(day.Month())-1)/3+1),
					region,
					country,
					channel,
					category,
					sub,
					fmt.Sprintf("%s-%s-%04d", skuPrefix(category), skuPrefix(sub), offset),
					promo,
					strconv.Itoa(units),
					fmt.Sprintf("%.2f", netSales),
					fmt.Sprintf("%.2f", discount),
					fmt.Sprintf("%.2f", marketing),
					strconv.Itoa(inventory),
					strconv.Itoa(forecast),
					strconv.Itoa(leadTime),
					fmt.Sprintf("%.3f", fulfillment),
					fmt.Sprintf("%.3f", backorder),
					campaign,
					fmt.Sprintf("%.3f", roi),
				})
			}
		}
	}
	return records
}

func seasonality(month time.Month) float64 {
	switch month {
	case time.November, time.December:
		return 1.4
	case time.June, time.July:
		return 1.2
	case time.January, time.February:
		return 0.8
	default:
		return 1.0
	}
}

func pickPromo(rng *rand.Rand) string {
	// Weighted 60/15/10/10/5 toward no promotion.
	roll := rng.IntN(100)
	switch {
	case roll < 60:
		return promoTypes[0]
	case roll < 75:
		return promoTypes[1]
	case roll < 85:
		return promoTypes[2]
	case roll < 95:
		return promoTypes[3]
	default:
		return promoTypes[4]
	}
}

func skuPrefix(s string) string {
	out := make([]rune, 0, 3)
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		if r >= 'A' && r <= 'Z' {
			out = append(out, r)
		}
		if len(out) == 3 {
			break
		}
	}
	return string(out)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func writeCSV(path string, records [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(records); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
