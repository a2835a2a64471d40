package store

import (
	"context"
	"fmt"
	"time"

	"tradedash/internal/model"
)

type Store interface {
	InsertTradeRecords(ctx context.Context, records []model.TradeRecord) error
	InsertCountries(ctx context.Context, countries []model.Country) error
	InsertHSCodes(ctx context.Context, codes []model.HSCode) error

	TradeData(ctx context.Context, filter model.Filter) ([]model.TradeRecord, error)
	Countries(ctx context.Context) ([]model.Country, error)
	HSCodes(ctx context.Context) ([]model.HSCode, error)
	SummaryStats(ctx context.Context) (model.SummaryStats, error)
	TopTraders(ctx context.Context, flow model.Flow, limit int) ([]model.TopTrader, error)
	TradeTrends(ctx context.Context, reporterCode string) ([]model.TrendPoint, error)

	DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error)
	Close() error
}

// InitError is fatal: the store directory could not be created or the engine
// could not be opened. Nothing is usable after it.
type InitError struct {
	Path string
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("store: init %s: %v", e.Path, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// WriteError covers a failed batch write. The whole batch was rolled back;
// Attempted is the row count the caller may retry as a unit.
type WriteError struct {
	Table     string
	Attempted int
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("store: write %d rows to %s: %v", e.Attempted, e.Table, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// NopStore discards writes and serves empty reads. Used when persistence is
// disabled on the command line.
type NopStore struct{}

func (s *NopStore) InsertTradeRecords(ctx context.Context, records []model.TradeRecord) error {
	_ = ctx
	_ = records
	return nil
}

func (s *NopStore) InsertCountries(ctx context.Context, countries []model.Country) error {
	_ = ctx
	_ = countries
	return nil
}

func (s *NopStore) InsertHSCodes(ctx context.Context, codes []model.HSCode) error {
	_ = ctx
	_ = codes
	return nil
}

func (s *NopStore) TradeData(ctx context.Context, filter model.Filter) ([]model.TradeRecord, error) {
	_ = ctx
	_ = filter
	return nil, nil
}

func (s *NopStore) Countries(ctx context.Context) ([]model.Country, error) {
	_ = ctx
	return nil, nil
}

func (s *NopStore) HSCodes(ctx context.Context) ([]model.HSCode, error) {
	_ = ctx
	return nil, nil
}

func (s *NopStore) SummaryStats(ctx context.Context) (model.SummaryStats, error) {
	_ = ctx
	return model.SummaryStats{}, nil
}

func (s *NopStore) TopTraders(ctx context.Context, flow model.Flow, limit int) ([]model.TopTrader, error) {
	_ = ctx
	_ = flow
	_ = limit
	return nil, nil
}

func (s *NopStore) TradeTrends(ctx context.Context, reporterCode string) ([]model.TrendPoint, error) {
	_ = ctx
	_ = reporterCode
	return nil, nil
}

func (s *NopStore) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	_ = ctx
	_ = age
	return 0, nil
}

func (s *NopStore) Close() error {
	return nil
}
