package providers

import (
	"context"

	"tradedash/internal/model"
)

// Query selects one slice of the source data: a reporter's flows for one
// reference year, optionally narrowed to a partner and commodity code.
type Query struct {
	Reporter string
	Partner  string // "all" when empty
	Year     int
	HSCode   string // "TOTAL" when empty
}

type Provider interface {
	Name() string
	Fetch(ctx context.Context, query Query) ([]model.TradeRecord, error)
}
