// Package synthetic generates plausible trade records when real extraction
// yields too little data. Every generated row carries a synthetic provenance
// tag so demo data never contaminates real analysis.
package synthetic

import (
	"math/rand"
	"time"

	"tradedash/internal/model"
)

const (
	minTradeValue = 1_000_000
	maxTradeValue = 1_000_000_000
	minQuantity   = 1_000
	maxQuantity   = 100_000
)

type Generator struct {
	countries []model.Country
	hsCodes   []model.HSCode
	years     []int
	flows     []model.Flow
	rng       *rand.Rand
}

// New builds a generator over a fixed country and HS-code universe. Pass a
// non-zero seed for reproducible output in tests.
func New(countries []model.Country, hsCodes []model.HSCode, years []int, seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if len(years) == 0 {
		years = []int{2020, 2021, 2022, 2023}
	}
	return &Generator{
		countries: countries,
		hsCodes:   hsCodes,
		years:     years,
		flows:     []model.Flow{model.FlowImport, model.FlowExport},
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Generate produces n bounded-random records. Reporter and partner are
// always distinct countries.
func (g *Generator) Generate(n int) []model.TradeRecord {
	if len(g.countries) < 2 || len(g.hsCodes) == 0 {
		return nil
	}

	records := make([]model.TradeRecord, 0, n)
	for i := 0; i < n; i++ {
		reporter := g.countries[g.rng.Intn(len(g.countries))]
		partner := g.countries[g.rng.Intn(len(g.countries))]
		for partner.Code == reporter.Code {
			partner = g.countries[g.rng.Intn(len(g.countries))]
		}
		hs := g.hsCodes[g.rng.Intn(len(g.hsCodes))]

		value := round2(minTradeValue + g.rng.Float64()*(maxTradeValue-minTradeValue))
		quantity := round2(minQuantity + g.rng.Float64()*(maxQuantity-minQuantity))

		records = append(records, model.TradeRecord{
			Year:          g.years[g.rng.Intn(len(g.years))],
			Month:         model.IntPtr(1 + g.rng.Intn(12)),
			ReporterCode:  reporter.Code,
			ReporterName:  reporter.Name,
			PartnerCode:   partner.Code,
			PartnerName:   partner.Name,
			TradeFlow:     g.flows[g.rng.Intn(len(g.flows))],
			HSCode:        hs.Code,
			HSDescription: hs.Description,
			TradeValue:    model.Float64Ptr(value),
			Quantity:      model.Float64Ptr(quantity),
			Unit:          "KG",
			Source:        model.SourceSynthetic,
		})
	}
	return records
}

func round2(value float64) float64 {
	return float64(int64(value*100+0.5)) / 100
}
