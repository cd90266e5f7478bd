package store

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"

	"sales-insights/internal/errors"
	"sales-insights/internal/models"
)

// Permissive layouts accepted for date cells, tried in order.
var dateLayouts = []string{
	time.DateOnly,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
}

// decodeCSV splits raw upload bytes into a header and records. Any reader
// failure (ragged rows, bad quoting, missing header) means the byte stream is
// not a delimited record set.
func decodeCSV(data []byte) ([]string, [][]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return nil, nil, errors.MalformedUpload(err, "upload has no readable header row")
	}
	for i, h := range headers {
		headers[i] = normalizeHeader(h)
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, errors.MalformedUpload(err, "upload is not a valid delimited record set")
	}
	if len(records) == 0 {
		return nil, nil, errors.MalformedUpload(nil, "upload contains no data rows")
	}
	return headers, records, nil
}

// harmonizeRecords coerces raw records into canonical rows. Records are
// parsed with bounded concurrency into a positionally indexed slice, so the
// result preserves upload order.
func harmonizeRecords(headers []string, records [][]string) ([]models.Row, error) {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[h] = i
	}

	rows := make([]models.Row, len(records))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, record := range records {
		g.Go(func() error {
			row, err := harmonizeRecord(idx, record, i+1)
			if err != nil {
				return err
			}
			rows[i] = row
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

// harmonizeRecord applies the required-schema contract to one record:
// absent columns become null, empty cells become null, and a non-empty cell
// in a typed required column that cannot be coerced rejects the upload.
// Extended optional columns coerce permissively, turning garbage into null.
func harmonizeRecord(idx map[string]int, record []string, line int) (models.Row, error) {
	var row models.Row

	raw, ok := cell(idx, record, "date")
	if !ok {
		return row, errors.SchemaViolation(fmt.Sprintf("record %d: date is required", line))
	}
	date, err := parseDate(raw)
	if err != nil {
		return row, errors.SchemaViolation(fmt.Sprintf("record %d: unparsable date %q", line, raw))
	}
	row.Date = date

	if row.Week, err = requiredInt(idx, record, "week", line); err != nil {
		return row, err
	}
	if row.Month, err = requiredInt(idx, record, "month", line); err != nil {
		return row, err
	}
	if row.UnitsSold, err = requiredInt(idx, record, "units_sold", line); err != nil {
		return row, err
	}
	if row.NetSales, err = requiredFloat(idx, record, "net_sales", line); err != nil {
		return row, err
	}
	if row.DiscountRate, err = requiredFloat(idx, record, "discount_rate", line); err != nil {
		return row, err
	}
	if row.MarketingSpend, err = requiredFloat(idx, record, "marketing_spend", line); err != nil {
		return row, err
	}

	row.Quarter = textCell(idx, record, "quarter")
	row.Region = textCell(idx, record, "region")
	row.Country = textCell(idx, record, "country")
	row.Channel = textCell(idx, record, "channel")
	row.Category = textCell(idx, record, "category")
	row.Subcategory = textCell(idx, record, "subcategory")
	row.SKU = textCell(idx, record, "sku")
	row.PromoFlag = textCell(idx, record, "promo_flag")
	row.CampaignName = textCell(idx, record, "campaign_name")

	row.InventoryLevel = optionalFloat(idx, record, "inventory_level")
	row.ForecastDemand = optionalFloat(idx, record, "forecast_demand")
	row.SupplyLeadTimeDays = optionalFloat(idx, record, "supply_lead_time_days")
	row.FulfillmentRate = optionalFloat(idx, record, "fulfillment_rate")
	row.BackorderRate = optionalFloat(idx, record, "backorder_rate")
	row.MarketingROI = optionalFloat(idx, record, "marketing_roi")

	return row, nil
}

func cell(idx map[string]int, record []string, name string) (string, bool) {
	i, ok := idx[name]
	if !ok || i >= len(record) {
		return "", false
	}
	v := strings.TrimSpace(record[i])
	if v == "" {
		return "", false
	}
	return v, true
}

func textCell(idx map[string]int, record []string, name string) string {
	v, _ := cell(idx, record, name)
	return v
}

func requiredInt(idx map[string]int, record []string, name string, line int) (*int64, error) {
	raw, ok := cell(idx, record, name)
	if !ok {
		return nil, nil
	}
	v, err := coerceInt(raw)
	if err != nil {
		return nil, errors.SchemaViolation(fmt.Sprintf("record %d: %s %q is not numeric", line, name, raw))
	}
	return &v, nil
}

func requiredFloat(idx map[string]int, record []string, name string, line int) (*float64, error) {
	raw, ok := cell(idx, record, name)
	if !ok {
		return nil, nil
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return nil, errors.SchemaViolation(fmt.Sprintf("record %d: %s %q is not numeric", line, name, raw))
	}
	return &v, nil
}

func optionalFloat(idx map[string]int, record []string, name string) *float64 {
	raw, ok := cell(idx, record, name)
	if !ok {
		return nil
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return nil
	}
	return &v
}

func coerceInt(raw string) (int64, error) {
	if v, err := cast.ToInt64E(raw); err == nil {
		return v, nil
	}
	f, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// normalizeHeader maps "Net Sales" or "net-sales" onto "net_sales".
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "_")
	h = strings.ReplaceAll(h, "-", "_")
	return h
}
