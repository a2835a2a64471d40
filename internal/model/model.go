package model

import (
	"fmt"
	"time"
)

type Flow string

const (
	FlowImport   Flow = "Import"
	FlowExport   Flow = "Export"
	FlowReImport Flow = "Re-Import"
	FlowReExport Flow = "Re-Export"
)

// Source marks the provenance of a trade record so synthetic demo rows
// never masquerade as genuine API data.
type Source string

const (
	SourceReal      Source = "real"
	SourceSynthetic Source = "synthetic"
)

// TradeRecord is one fact row: a reporter/partner flow for a commodity in a
// given period. Month is nil for annual aggregates. TradeValue and Quantity
// are nil when the source omits them; aggregations exclude nil rather than
// treating it as zero.
type TradeRecord struct {
	Year          int
	Month         *int
	ReporterCode  string
	ReporterName  string
	PartnerCode   string
	PartnerName   string
	TradeFlow     Flow
	HSCode        string
	HSDescription string
	TradeValue    *float64
	Quantity      *float64
	Unit          string
	Source        Source
	CreatedAt     time.Time
}

type Country struct {
	Code   string
	Name   string
	Region string
}

type HSCode struct {
	Code        string
	Description string
	Section     string
}

// Filter narrows TradeData queries. Zero-valued fields mean "no constraint",
// not "match empty". HSCodePrefix matches hierarchically: "84" matches both
// "84" and "8471".
type Filter struct {
	Year         *int
	ReporterCode string
	PartnerCode  string
	TradeFlow    Flow
	HSCodePrefix string
}

// YearRange is the (min, max) span of years present in the store. HasData is
// false on an empty store; callers render the sentinel instead of zeros.
type YearRange struct {
	Min     int
	Max     int
	HasData bool
}

func (r YearRange) String() string {
	if !r.HasData {
		return "No data"
	}
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

type SummaryStats struct {
	TotalRecords    int64
	Years           YearRange
	UniqueReporters int64
	UniquePartners  int64
	TotalTradeValue float64
}

type TopTrader struct {
	ReporterCode string
	ReporterName string
	TotalValue   float64
	RecordCount  int64
}

type TrendPoint struct {
	Year       int
	TradeFlow  Flow
	TotalValue float64
}

func IntPtr(value int) *int { return &value }

func Float64Ptr(value float64) *float64 { return &value }
