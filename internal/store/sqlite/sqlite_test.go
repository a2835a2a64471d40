package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedash/internal/model"
	"tradedash/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	s, err := New(filepath.Join(t.TempDir(), "trade_test.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(year int, reporter, partner string, flow model.Flow, hsCode string, value *float64) model.TradeRecord {
	return model.TradeRecord{
		Year:         year,
		ReporterCode: reporter,
		ReporterName: reporter + " Name",
		PartnerCode:  partner,
		PartnerName:  partner + " Name",
		TradeFlow:    flow,
		HSCode:       hsCode,
		TradeValue:   value,
		Unit:         "KG",
		Source:       model.SourceReal,
	}
}

func TestInitIsIdempotent(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	path := filepath.Join(t.TempDir(), "trade.db")

	first, err := New(path, log)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(path, log)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestNewFailsWhenParentIsFile(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := New(filepath.Join(blocker, "trade.db"), log)
	require.Error(t, err)

	var initErr *store.InitError
	assert.ErrorAs(t, err, &initErr)
}

func TestInsertTradeRecordsCancelledContext(t *testing.T) {
	s := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := []model.TradeRecord{
		record(2022, "USA", "CHN", model.FlowExport, "84", model.Float64Ptr(100)),
		record(2022, "DEU", "FRA", model.FlowImport, "85", model.Float64Ptr(200)),
	}
	err := s.InsertTradeRecords(ctx, batch)
	require.Error(t, err)

	var writeErr *store.WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "trade_records", writeErr.Table)
	assert.Equal(t, len(batch), writeErr.Attempted)

	// nothing from the failed batch is persisted
	records, err := s.TradeData(context.Background(), model.Filter{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestInsertAfterCloseLeavesStoreEmpty(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	path := filepath.Join(t.TempDir(), "trade.db")

	s, err := New(path, log)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.InsertTradeRecords(context.Background(), []model.TradeRecord{
		record(2022, "USA", "CHN", model.FlowExport, "84", model.Float64Ptr(100)),
	})
	var writeErr *store.WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, 1, writeErr.Attempted)

	reopened, err := New(path, log)
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.TradeData(context.Background(), model.Filter{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCountryUpsertByNaturalKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertCountries(ctx, []model.Country{{Code: "USA", Name: "United States", Region: "Americas"}}))
	require.NoError(t, s.InsertCountries(ctx, []model.Country{{Code: "USA", Name: "United States of America", Region: "Americas"}}))

	countries, err := s.Countries(ctx)
	require.NoError(t, err)
	require.Len(t, countries, 1)
	assert.Equal(t, "United States of America", countries[0].Name)
}

func TestHSCodeUpsertByNaturalKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertHSCodes(ctx, []model.HSCode{{Code: "84", Description: "Machinery"}}))
	require.NoError(t, s.InsertHSCodes(ctx, []model.HSCode{{Code: "84", Description: "Nuclear reactors, boilers, machinery"}}))

	codes, err := s.HSCodes(ctx)
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.Equal(t, "Nuclear reactors, boilers, machinery", codes[0].Description)
}

// Re-extraction of the same (year, month, reporter, partner, flow, hs_code)
// replaces the existing row instead of duplicating it.
func TestTradeRecordUpsertByCompositeKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := record(2022, "USA", "CHN", model.FlowExport, "84", model.Float64Ptr(100))
	require.NoError(t, s.InsertTradeRecords(ctx, []model.TradeRecord{first}))

	second := first
	second.TradeValue = model.Float64Ptr(250)
	require.NoError(t, s.InsertTradeRecords(ctx, []model.TradeRecord{second}))

	records, err := s.TradeData(ctx, model.Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].TradeValue)
	assert.Equal(t, 250.0, *records[0].TradeValue)
}

func TestAnnualMonthRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	annual := record(2022, "USA", "CHN", model.FlowExport, "84", model.Float64Ptr(100))
	monthly := record(2022, "USA", "CHN", model.FlowExport, "85", model.Float64Ptr(50))
	monthly.Month = model.IntPtr(7)
	require.NoError(t, s.InsertTradeRecords(ctx, []model.TradeRecord{annual, monthly}))

	records, err := s.TradeData(ctx, model.Filter{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	byHS := map[string]*int{}
	for _, r := range records {
		byHS[r.HSCode] = r.Month
	}
	assert.Nil(t, byHS["84"])
	require.NotNil(t, byHS["85"])
	assert.Equal(t, 7, *byHS["85"])
}

func TestTradeDataYearFilterAndOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertTradeRecords(ctx, []model.TradeRecord{
		record(2021, "USA", "CHN", model.FlowExport, "84", model.Float64Ptr(500)),
		record(2022, "DEU", "FRA", model.FlowExport, "85", model.Float64Ptr(100)),
		record(2022, "USA", "CHN", model.FlowExport, "85", model.Float64Ptr(900)),
		record(2022, "JPN", "KOR", model.FlowExport, "87", nil),
	}))

	all, err := s.TradeData(ctx, model.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	filtered, err := s.TradeData(ctx, model.Filter{Year: model.IntPtr(2022)})
	require.NoError(t, err)
	require.Len(t, filtered, 3)
	for _, r := range filtered {
		assert.Equal(t, 2022, r.Year)
	}

	// year desc, value desc, nulls last
	assert.Equal(t, 2022, all[0].Year)
	assert.Equal(t, 900.0, *all[0].TradeValue)
	assert.Equal(t, 100.0, *all[1].TradeValue)
	assert.Nil(t, all[2].TradeValue)
	assert.Equal(t, 2021, all[3].Year)
}

func TestTradeDataHSCodePrefixMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertTradeRecords(ctx, []model.TradeRecord{
		record(2022, "USA", "CHN", model.FlowExport, "8471", model.Float64Ptr(10)),
		record(2022, "USA", "DEU", model.FlowExport, "84", model.Float64Ptr(20)),
		record(2022, "USA", "JPN", model.FlowExport, "185", model.Float64Ptr(30)),
	}))

	records, err := s.TradeData(ctx, model.Filter{HSCodePrefix: "84"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Contains(t, []string{"84", "8471"}, r.HSCode)
	}
}

func TestTradeDataPrefixTreatsLikeMetacharactersLiterally(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertTradeRecords(ctx, []model.TradeRecord{
		record(2022, "USA", "CHN", model.FlowExport, "84", model.Float64Ptr(10)),
		record(2022, "USA", "DEU", model.FlowExport, "8_", model.Float64Ptr(20)),
		record(2022, "USA", "JPN", model.FlowExport, "85", model.Float64Ptr(30)),
	}))

	records, err := s.TradeData(ctx, model.Filter{HSCodePrefix: "8_"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "8_", records[0].HSCode)

	records, err = s.TradeData(ctx, model.Filter{HSCodePrefix: "8%"})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestTradeDataOtherFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertTradeRecords(ctx, []model.TradeRecord{
		record(2022, "USA", "CHN", model.FlowExport, "84", model.Float64Ptr(10)),
		record(2022, "DEU", "CHN", model.FlowImport, "85", model.Float64Ptr(20)),
		record(2022, "USA", "JPN", model.FlowImport, "87", model.Float64Ptr(30)),
	}))

	byReporter, err := s.TradeData(ctx, model.Filter{ReporterCode: "USA"})
	require.NoError(t, err)
	assert.Len(t, byReporter, 2)

	byPartner, err := s.TradeData(ctx, model.Filter{PartnerCode: "CHN"})
	require.NoError(t, err)
	assert.Len(t, byPartner, 2)

	byFlow, err := s.TradeData(ctx, model.Filter{TradeFlow: model.FlowImport})
	require.NoError(t, err)
	assert.Len(t, byFlow, 2)

	combined, err := s.TradeData(ctx, model.Filter{ReporterCode: "USA", TradeFlow: model.FlowImport})
	require.NoError(t, err)
	require.Len(t, combined, 1)
	assert.Equal(t, "87", combined[0].HSCode)
}

func TestSummaryStatsEmptyStore(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.SummaryStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalRecords)
	assert.False(t, stats.Years.HasData)
	assert.Equal(t, "No data", stats.Years.String())
	assert.Equal(t, 0.0, stats.TotalTradeValue)
}

func TestSummaryStatsExcludesNullValuesFromSum(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertTradeRecords(ctx, []model.TradeRecord{
		record(2021, "USA", "CHN", model.FlowExport, "84", model.Float64Ptr(100)),
		record(2022, "DEU", "FRA", model.FlowImport, "85", model.Float64Ptr(200)),
		record(2023, "JPN", "KOR", model.FlowExport, "87", nil),
	}))

	stats, err := s.SummaryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalRecords)
	assert.Equal(t, 300.0, stats.TotalTradeValue)
	assert.True(t, stats.Years.HasData)
	assert.Equal(t, "2021-2023", stats.Years.String())
	assert.Equal(t, int64(3), stats.UniqueReporters)
	assert.Equal(t, int64(3), stats.UniquePartners)
}

func TestTopTradersLimitAndOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertTradeRecords(ctx, []model.TradeRecord{
		record(2022, "USA", "CHN", model.FlowExport, "84", model.Float64Ptr(900)),
		record(2022, "USA", "DEU", model.FlowExport, "85", model.Float64Ptr(100)),
		record(2022, "CHN", "USA", model.FlowExport, "84", model.Float64Ptr(800)),
		record(2022, "DEU", "FRA", model.FlowExport, "84", model.Float64Ptr(600)),
		record(2022, "JPN", "KOR", model.FlowExport, "84", model.Float64Ptr(400)),
		record(2022, "FRA", "DEU", model.FlowExport, "84", nil),
		record(2022, "GBR", "USA", model.FlowImport, "84", model.Float64Ptr(9999)),
	}))

	traders, err := s.TopTraders(ctx, model.FlowExport, 3)
	require.NoError(t, err)
	require.Len(t, traders, 3)

	assert.Equal(t, "USA", traders[0].ReporterCode)
	assert.Equal(t, 1000.0, traders[0].TotalValue)
	for i := 1; i < len(traders); i++ {
		assert.LessOrEqual(t, traders[i].TotalValue, traders[i-1].TotalValue)
	}
	for _, trader := range traders {
		assert.NotEqual(t, "GBR", trader.ReporterCode)
		assert.NotEqual(t, "FRA", trader.ReporterCode)
	}
}

func TestTradeTrends(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertTradeRecords(ctx, []model.TradeRecord{
		record(2021, "USA", "CHN", model.FlowExport, "84", model.Float64Ptr(100)),
		record(2021, "USA", "DEU", model.FlowExport, "85", model.Float64Ptr(50)),
		record(2022, "USA", "CHN", model.FlowImport, "84", model.Float64Ptr(200)),
		record(2022, "DEU", "FRA", model.FlowImport, "84", model.Float64Ptr(999)),
		record(2022, "USA", "JPN", model.FlowExport, "87", nil),
	}))

	points, err := s.TradeTrends(ctx, "USA")
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 2021, points[0].Year)
	assert.Equal(t, model.FlowExport, points[0].TradeFlow)
	assert.Equal(t, 150.0, points[0].TotalValue)
	assert.Equal(t, 2022, points[1].Year)
	assert.Equal(t, model.FlowImport, points[1].TradeFlow)
	assert.Equal(t, 200.0, points[1].TotalValue)

	all, err := s.TradeTrends(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 1199.0, all[1].TotalValue)
}

func TestDeleteOlderThan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := record(2020, "USA", "CHN", model.FlowExport, "84", model.Float64Ptr(10))
	old.CreatedAt = time.Now().UTC().Add(-72 * time.Hour)
	fresh := record(2022, "DEU", "FRA", model.FlowImport, "85", model.Float64Ptr(20))
	require.NoError(t, s.InsertTradeRecords(ctx, []model.TradeRecord{old, fresh}))

	deleted, err := s.DeleteOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	records, err := s.TradeData(ctx, model.Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "DEU", records[0].ReporterCode)
}

func TestProvenanceRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	synthetic := record(2022, "USA", "CHN", model.FlowExport, "84", model.Float64Ptr(10))
	synthetic.Source = model.SourceSynthetic
	require.NoError(t, s.InsertTradeRecords(ctx, []model.TradeRecord{synthetic}))

	records, err := s.TradeData(ctx, model.Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.SourceSynthetic, records[0].Source)
}

func TestEmptyBatchIsNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertTradeRecords(ctx, nil))
	require.NoError(t, s.InsertCountries(ctx, nil))
	require.NoError(t, s.InsertHSCodes(ctx, nil))
}
