// Package server exposes the query layer to the dashboard over a read-only
// HTTP API. Read failures degrade to empty results so the dashboard always
// renders a "no data" state instead of crashing.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tradedash/internal/export"
	"tradedash/internal/model"
	"tradedash/internal/store"
)

type Handler struct {
	store store.Store
	log   *logrus.Logger
}

func NewHandler(st store.Store, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{store: st, log: log}
}

type tradeRecordResponse struct {
	Year          int       `json:"year"`
	Month         *int      `json:"month"`
	ReporterCode  string    `json:"reporter_code"`
	ReporterName  string    `json:"reporter_name"`
	PartnerCode   string    `json:"partner_code"`
	PartnerName   string    `json:"partner_name"`
	TradeFlow     string    `json:"trade_flow"`
	HSCode        string    `json:"hs_code"`
	HSDescription string    `json:"hs_description"`
	TradeValue    *float64  `json:"trade_value"`
	Quantity      *float64  `json:"quantity"`
	Unit          string    `json:"unit"`
	Source        string    `json:"source"`
	CreatedAt     time.Time `json:"created_at"`
}

func (h *Handler) GetTradeData(c *gin.Context) {
	records, err := h.store.TradeData(c.Request.Context(), filterFromQuery(c))
	if err != nil {
		h.log.WithError(err).Error("trade data query failed")
		records = nil
	}

	response := make([]tradeRecordResponse, 0, len(records))
	for _, record := range records {
		response = append(response, toResponse(record))
	}
	c.JSON(http.StatusOK, response)
}

func (h *Handler) GetCountries(c *gin.Context) {
	countries, err := h.store.Countries(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("countries query failed")
		countries = nil
	}

	type countryResponse struct {
		Code   string `json:"code"`
		Name   string `json:"name"`
		Region string `json:"region"`
	}
	response := make([]countryResponse, 0, len(countries))
	for _, country := range countries {
		response = append(response, countryResponse(country))
	}
	c.JSON(http.StatusOK, response)
}

func (h *Handler) GetHSCodes(c *gin.Context) {
	codes, err := h.store.HSCodes(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("hs codes query failed")
		codes = nil
	}

	type hsCodeResponse struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Section     string `json:"section"`
	}
	response := make([]hsCodeResponse, 0, len(codes))
	for _, code := range codes {
		response = append(response, hsCodeResponse(code))
	}
	c.JSON(http.StatusOK, response)
}

func (h *Handler) GetSummary(c *gin.Context) {
	stats, err := h.store.SummaryStats(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("summary query failed")
		stats = model.SummaryStats{}
	}

	c.JSON(http.StatusOK, gin.H{
		"total_records":     stats.TotalRecords,
		"year_range":        stats.Years.String(),
		"unique_reporters":  stats.UniqueReporters,
		"unique_partners":   stats.UniquePartners,
		"total_trade_value": stats.TotalTradeValue,
	})
}

func (h *Handler) GetTopTraders(c *gin.Context) {
	flow := model.Flow(c.DefaultQuery("flow", string(model.FlowImport)))
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		limit = 10
	}

	traders, err := h.store.TopTraders(c.Request.Context(), flow, limit)
	if err != nil {
		h.log.WithError(err).Error("top traders query failed")
		traders = nil
	}

	type traderResponse struct {
		ReporterCode string  `json:"reporter_code"`
		ReporterName string  `json:"reporter_name"`
		TotalValue   float64 `json:"total_value"`
		RecordCount  int64   `json:"record_count"`
	}
	response := make([]traderResponse, 0, len(traders))
	for _, trader := range traders {
		response = append(response, traderResponse(trader))
	}
	c.JSON(http.StatusOK, response)
}

func (h *Handler) GetTrends(c *gin.Context) {
	points, err := h.store.TradeTrends(c.Request.Context(), c.Query("reporter"))
	if err != nil {
		h.log.WithError(err).Error("trends query failed")
		points = nil
	}

	type trendResponse struct {
		Year       int     `json:"year"`
		TradeFlow  string  `json:"trade_flow"`
		TotalValue float64 `json:"total_value"`
	}
	response := make([]trendResponse, 0, len(points))
	for _, point := range points {
		response = append(response, trendResponse{
			Year:       point.Year,
			TradeFlow:  string(point.TradeFlow),
			TotalValue: point.TotalValue,
		})
	}
	c.JSON(http.StatusOK, response)
}

// ExportCSV streams the currently filtered result set as a CSV attachment.
func (h *Handler) ExportCSV(c *gin.Context) {
	records, err := h.store.TradeData(c.Request.Context(), filterFromQuery(c))
	if err != nil {
		h.log.WithError(err).Error("export query failed")
		records = nil
	}

	filename := "trade_data_" + time.Now().UTC().Format("20060102_150405") + ".csv"
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Status(http.StatusOK)

	if err := export.WriteCSV(c.Writer, records); err != nil {
		h.log.WithError(err).Error("csv export failed")
	}
}

func filterFromQuery(c *gin.Context) model.Filter {
	filter := model.Filter{
		ReporterCode: c.Query("reporter"),
		PartnerCode:  c.Query("partner"),
		TradeFlow:    model.Flow(c.Query("flow")),
		HSCodePrefix: c.Query("hs_code"),
	}
	if raw := c.Query("year"); raw != "" {
		if year, err := strconv.Atoi(raw); err == nil {
			filter.Year = model.IntPtr(year)
		}
	}
	return filter
}

func toResponse(record model.TradeRecord) tradeRecordResponse {
	return tradeRecordResponse{
		Year:          record.Year,
		Month:         record.Month,
		ReporterCode:  record.ReporterCode,
		ReporterName:  record.ReporterName,
		PartnerCode:   record.PartnerCode,
		PartnerName:   record.PartnerName,
		TradeFlow:     string(record.TradeFlow),
		HSCode:        record.HSCode,
		HSDescription: record.HSDescription,
		TradeValue:    record.TradeValue,
		Quantity:      record.Quantity,
		Unit:          record.Unit,
		Source:        string(record.Source),
		CreatedAt:     record.CreatedAt,
	}
}
