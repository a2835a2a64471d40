// Package comtrade fetches trade-flow records from the UN Comtrade public
// API and maps its loosely-typed JSON rows onto the fact schema.
package comtrade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"tradedash/internal/model"
	"tradedash/internal/providers"
)

const (
	defaultBaseURL   = "https://comtradeapi.un.org/public/v1/preview"
	defaultDataPath  = "C/{freq}/{cl}/{cmd}/{period}/{reporter}/{partner}/"
	defaultFrequency = "A"
	defaultClass     = "A"
	defaultPartner   = "all"
	defaultCommodity = "TOTAL"
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "tradedash/0.1"
)

var ErrNoRecords = errors.New("comtrade: no records found")

type Config struct {
	BaseURL        string
	DataPath       string
	APIKey         string
	Frequency      string
	Classification string
	Timeout        time.Duration
	UserAgent      string

	// RequestsPerHour is the sliding-window ceiling; pick the tier that
	// matches the credentials before constructing the provider.
	RequestsPerHour int
	// RequestDelay paces consecutive calls.
	RequestDelay time.Duration
}

type Provider struct {
	config Config
	client *resty.Client
	window *slidingWindow
	pacer  *rate.Limiter
	log    *logrus.Logger
}

func New(cfg Config, log *logrus.Logger) *Provider {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(cfg.DataPath) == "" {
		cfg.DataPath = defaultDataPath
	}
	if strings.TrimSpace(cfg.Frequency) == "" {
		cfg.Frequency = defaultFrequency
	}
	if strings.TrimSpace(cfg.Classification) == "" {
		cfg.Classification = defaultClass
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	client := resty.New()
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("Accept", "application/json")
	client.SetHeader("User-Agent", cfg.UserAgent)
	if strings.TrimSpace(cfg.APIKey) != "" {
		client.SetHeader("Ocp-Apim-Subscription-Key", cfg.APIKey)
	}

	var pacer *rate.Limiter
	if cfg.RequestDelay > 0 {
		pacer = rate.NewLimiter(rate.Every(cfg.RequestDelay), 1)
	}

	return &Provider{
		config: cfg,
		client: client,
		window: newSlidingWindow(cfg.RequestsPerHour, time.Hour),
		pacer:  pacer,
		log:    log,
	}
}

func (p *Provider) Name() string {
	return "comtrade"
}

// Fetch retrieves one (reporter, year) slice and maps it to fact rows.
// Malformed records are skipped individually; an empty response yields
// ErrNoRecords.
func (p *Provider) Fetch(ctx context.Context, query providers.Query) ([]model.TradeRecord, error) {
	if err := p.window.Wait(ctx); err != nil {
		return nil, err
	}
	if p.pacer != nil {
		if err := p.pacer.Wait(ctx); err != nil {
			return nil, err
		}
	}

	endpoint := p.dataURL(query)
	p.log.WithField("url", endpoint).Debug("fetching trade data")

	resp, err := p.client.R().SetContext(ctx).Get(endpoint)
	p.window.Record()
	if err != nil {
		return nil, fmt.Errorf("comtrade: request: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("comtrade: request failed (%s): %s",
			resp.Status(), strings.TrimSpace(string(resp.Body())))
	}

	records, skipped, err := parseRecords(resp.Body(), query)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		p.log.WithFields(logrus.Fields{
			"reporter": query.Reporter,
			"year":     query.Year,
			"skipped":  skipped,
		}).Warn("malformed records skipped")
	}
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	return records, nil
}

func (p *Provider) dataURL(query providers.Query) string {
	partner := query.Partner
	if strings.TrimSpace(partner) == "" {
		partner = defaultPartner
	}
	cmd := query.HSCode
	if strings.TrimSpace(cmd) == "" {
		cmd = defaultCommodity
	}

	path := strings.TrimLeft(p.config.DataPath, "/")
	path = strings.ReplaceAll(path, "{freq}", url.PathEscape(p.config.Frequency))
	path = strings.ReplaceAll(path, "{cl}", url.PathEscape(p.config.Classification))
	path = strings.ReplaceAll(path, "{cmd}", url.PathEscape(cmd))
	path = strings.ReplaceAll(path, "{period}", url.PathEscape(strconv.Itoa(query.Year)))
	path = strings.ReplaceAll(path, "{reporter}", url.PathEscape(query.Reporter))
	path = strings.ReplaceAll(path, "{partner}", url.PathEscape(partner))

	return strings.TrimRight(p.config.BaseURL, "/") + "/" + path
}

// parseRecords maps the response body onto fact rows. It returns the number
// of records dropped for per-record mapping failures.
func parseRecords(body []byte, query providers.Query) ([]model.TradeRecord, int, error) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, 0, fmt.Errorf("comtrade: decode response: %w", err)
	}
	rows, err := extractRows(payload)
	if err != nil {
		return nil, 0, err
	}

	records := make([]model.TradeRecord, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		record, err := rowToRecord(row, query)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, record)
	}
	return records, skipped, nil
}

func rowToRecord(row map[string]any, query providers.Query) (model.TradeRecord, error) {
	record := model.TradeRecord{Source: model.SourceReal}

	period, ok := getString(row, "period", "Period", "refYear", "yr")
	if !ok {
		period = strconv.Itoa(query.Year)
	}
	year, month, ok := parsePeriod(period)
	if !ok {
		return model.TradeRecord{}, fmt.Errorf("comtrade: bad period %q", period)
	}
	record.Year = year
	record.Month = month

	if code, ok := getString(row, "reporterCode", "reporterISO", "rt3ISO"); ok {
		record.ReporterCode = strings.ToUpper(code)
	} else {
		record.ReporterCode = strings.ToUpper(query.Reporter)
	}
	record.ReporterName, _ = getString(row, "reporterDesc", "rtTitle")
	if code, ok := getString(row, "partnerCode", "partnerISO", "pt3ISO"); ok {
		record.PartnerCode = strings.ToUpper(code)
	}
	record.PartnerName, _ = getString(row, "partnerDesc", "ptTitle")

	flow, _ := getString(row, "flowDesc", "rgDesc")
	record.TradeFlow = normalizeFlow(flow)

	if code, ok := getString(row, "cmdCode", "commodityCode"); ok {
		record.HSCode = code
	} else {
		record.HSCode = query.HSCode
	}
	record.HSDescription, _ = getString(row, "cmdDesc", "commodity")

	// A missing value maps to null; a present but non-numeric value fails
	// the whole record.
	value, err := optionalFloat(row, "tradeValue", "TradeValue", "primaryValue")
	if err != nil {
		return model.TradeRecord{}, err
	}
	record.TradeValue = value

	quantity, err := optionalFloat(row, "qty", "Qty", "netWgt")
	if err != nil {
		return model.TradeRecord{}, err
	}
	record.Quantity = quantity

	record.Unit, _ = getString(row, "qtyUnitAbbr", "qtyUnit")

	return record, nil
}

func normalizeFlow(value string) model.Flow {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "export", "exports", "x":
		return model.FlowExport
	case "re-import", "reimport":
		return model.FlowReImport
	case "re-export", "reexport":
		return model.FlowReExport
	case "import", "imports", "m", "":
		return model.FlowImport
	default:
		return model.FlowImport
	}
}

// parsePeriod accepts YYYY or YYYYMM reference periods.
func parsePeriod(value string) (int, *int, bool) {
	value = strings.TrimSpace(value)
	if len(value) == 4 && isDigits(value) {
		year, _ := strconv.Atoi(value)
		return year, nil, true
	}
	if len(value) == 6 && isDigits(value) {
		year, _ := strconv.Atoi(value[:4])
		month, _ := strconv.Atoi(value[4:])
		if month >= 1 && month <= 12 {
			return year, model.IntPtr(month), true
		}
	}
	return 0, nil, false
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(value) > 0
}

func extractRows(payload any) ([]map[string]any, error) {
	switch typed := payload.(type) {
	case []any:
		return toRowList(typed), nil
	case map[string]any:
		for _, key := range []string{"data", "Data", "dataset", "results"} {
			if raw, ok := typed[key]; ok {
				return extractRows(raw)
			}
		}
		return nil, errors.New("comtrade: unexpected response shape")
	default:
		return nil, errors.New("comtrade: unexpected response type")
	}
}

func toRowList(items []any) []map[string]any {
	rows := make([]map[string]any, 0, len(items))
	for _, item := range items {
		row, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

func getString(row map[string]any, keys ...string) (string, bool) {
	value, ok := getValue(row, keys...)
	if !ok {
		return "", false
	}
	switch typed := value.(type) {
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return "", false
		}
		return trimmed, true
	case json.Number:
		return typed.String(), true
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	case int:
		return strconv.Itoa(typed), true
	case int64:
		return strconv.FormatInt(typed, 10), true
	default:
		return "", false
	}
}

func optionalFloat(row map[string]any, keys ...string) (*float64, error) {
	value, ok := getValue(row, keys...)
	if !ok || value == nil {
		return nil, nil
	}
	switch typed := value.(type) {
	case float64:
		return model.Float64Ptr(typed), nil
	case float32:
		return model.Float64Ptr(float64(typed)), nil
	case int:
		return model.Float64Ptr(float64(typed)), nil
	case int64:
		return model.Float64Ptr(float64(typed)), nil
	case json.Number:
		parsed, err := typed.Float64()
		if err != nil {
			return nil, fmt.Errorf("comtrade: bad numeric value %q", typed.String())
		}
		return model.Float64Ptr(parsed), nil
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return nil, nil
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, fmt.Errorf("comtrade: bad numeric value %q", trimmed)
		}
		return model.Float64Ptr(parsed), nil
	default:
		return nil, fmt.Errorf("comtrade: bad numeric value of type %T", value)
	}
}

func getValue(row map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if value, ok := row[key]; ok {
			return value, ok
		}
	}
	for rowKey, value := range row {
		for _, key := range keys {
			if strings.EqualFold(rowKey, key) {
				return value, true
			}
		}
	}
	return nil, false
}

var _ providers.Provider = (*Provider)(nil)
