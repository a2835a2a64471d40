// Package export renders filtered result sets as CSV artifacts.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"tradedash/internal/model"
)

// Header is the exported column set, one column per TradeData result field.
var Header = []string{
	"year", "month", "reporter_code", "reporter_name",
	"partner_code", "partner_name", "trade_flow",
	"hs_code", "hs_description", "trade_value", "quantity", "unit",
	"source", "created_at",
}

// WriteCSV streams records as header-included CSV, one row per record.
// Nullable fields render as empty cells.
func WriteCSV(w io.Writer, records []model.TradeRecord) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(Header); err != nil {
		return err
	}

	for _, record := range records {
		row := []string{
			strconv.Itoa(record.Year),
			formatInt(record.Month),
			record.ReporterCode,
			record.ReporterName,
			record.PartnerCode,
			record.PartnerName,
			string(record.TradeFlow),
			record.HSCode,
			record.HSDescription,
			formatFloat(record.TradeValue),
			formatFloat(record.Quantity),
			record.Unit,
			string(record.Source),
			formatTime(record.CreatedAt),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatInt(value *int) string {
	if value == nil {
		return ""
	}
	return strconv.Itoa(*value)
}

func formatFloat(value *float64) string {
	if value == nil {
		return ""
	}
	return strconv.FormatFloat(*value, 'f', -1, 64)
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}
