package comtrade

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedash/internal/model"
	"tradedash/internal/providers"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func TestParseRecordsMapsFields(t *testing.T) {
	body := []byte(`{
		"data": [
			{
				"period": "2022",
				"reporterCode": "USA",
				"reporterDesc": "United States of America",
				"partnerCode": "CHN",
				"partnerDesc": "China",
				"flowDesc": "Export",
				"cmdCode": "84",
				"cmdDesc": "Machinery",
				"tradeValue": 1234.5,
				"qty": 10,
				"qtyUnitAbbr": "KG"
			}
		]
	}`)

	records, skipped, err := parseRecords(body, providers.Query{Reporter: "USA", Year: 2022})
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, 2022, record.Year)
	assert.Nil(t, record.Month)
	assert.Equal(t, "USA", record.ReporterCode)
	assert.Equal(t, "United States of America", record.ReporterName)
	assert.Equal(t, "CHN", record.PartnerCode)
	assert.Equal(t, model.FlowExport, record.TradeFlow)
	assert.Equal(t, "84", record.HSCode)
	require.NotNil(t, record.TradeValue)
	assert.Equal(t, 1234.5, *record.TradeValue)
	require.NotNil(t, record.Quantity)
	assert.Equal(t, 10.0, *record.Quantity)
	assert.Equal(t, "KG", record.Unit)
	assert.Equal(t, model.SourceReal, record.Source)
}

func TestParseRecordsMissingValueIsNull(t *testing.T) {
	body := []byte(`{"data":[{"period":"2022","reporterCode":"USA","flowDesc":"Import","cmdCode":"01"}]}`)

	records, skipped, err := parseRecords(body, providers.Query{Reporter: "USA", Year: 2022})
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].TradeValue)
	assert.Nil(t, records[0].Quantity)
}

func TestParseRecordsSkipsMalformedRecord(t *testing.T) {
	body := []byte(`{"data":[
		{"period":"2022","reporterCode":"USA","flowDesc":"Import","cmdCode":"01","tradeValue":"not-a-number"},
		{"period":"2022","reporterCode":"USA","flowDesc":"Import","cmdCode":"02","tradeValue":500}
	]}`)

	records, skipped, err := parseRecords(body, providers.Query{Reporter: "USA", Year: 2022})
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, records, 1)
	assert.Equal(t, "02", records[0].HSCode)
}

func TestParseRecordsMonthlyPeriod(t *testing.T) {
	body := []byte(`{"data":[{"period":"202207","reporterCode":"USA","flowDesc":"Export","cmdCode":"84"}]}`)

	records, _, err := parseRecords(body, providers.Query{Reporter: "USA", Year: 2022})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 2022, records[0].Year)
	require.NotNil(t, records[0].Month)
	assert.Equal(t, 7, *records[0].Month)
}

func TestNormalizeFlow(t *testing.T) {
	assert.Equal(t, model.FlowExport, normalizeFlow("Export"))
	assert.Equal(t, model.FlowImport, normalizeFlow("Import"))
	assert.Equal(t, model.FlowReImport, normalizeFlow("Re-Import"))
	assert.Equal(t, model.FlowReExport, normalizeFlow("Re-Export"))
	assert.Equal(t, model.FlowImport, normalizeFlow(""))
}

func TestDataURLTemplate(t *testing.T) {
	p := New(Config{BaseURL: "https://example.test/preview"}, quietLogger())

	url := p.dataURL(providers.Query{Reporter: "USA", Year: 2022})
	assert.Equal(t, "https://example.test/preview/C/A/A/TOTAL/2022/USA/all/", url)

	url = p.dataURL(providers.Query{Reporter: "DEU", Partner: "FRA", Year: 2021, HSCode: "84"})
	assert.Equal(t, "https://example.test/preview/C/A/A/84/2021/DEU/FRA/", url)
}

func TestFetchMapsResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"period":"2022","reporterCode":"USA","flowDesc":"Export","cmdCode":"TOTAL","tradeValue":42}]}`))
	}))
	defer server.Close()

	p := New(Config{BaseURL: server.URL}, quietLogger())
	records, err := p.Fetch(context.Background(), providers.Query{Reporter: "USA", Year: 2022})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 42.0, *records[0].TradeValue)
}

func TestFetchNon200IsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	p := New(Config{BaseURL: server.URL}, quietLogger())
	_, err := p.Fetch(context.Background(), providers.Query{Reporter: "USA", Year: 2022})
	assert.Error(t, err)
}

func TestFetchEmptyDataIsErrNoRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	p := New(Config{BaseURL: server.URL}, quietLogger())
	_, err := p.Fetch(context.Background(), providers.Query{Reporter: "USA", Year: 2022})
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestSlidingWindowAdmitsUnderCeiling(t *testing.T) {
	w := newSlidingWindow(2, time.Hour)
	assert.Equal(t, time.Duration(0), w.delay())
	w.Record()
	assert.Equal(t, time.Duration(0), w.delay())
}

func TestSlidingWindowSuspendsAtCeiling(t *testing.T) {
	w := newSlidingWindow(2, time.Hour)
	base := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

	// Two calls 55 minutes ago under a ceiling of 2: the next call must
	// wait until the oldest stamp ages past the hour, about 5 minutes.
	current := base
	w.now = func() time.Time { return current }
	current = base.Add(-55 * time.Minute)
	w.Record()
	w.Record()
	current = base

	wait := w.delay()
	assert.Greater(t, wait, 4*time.Minute)
	assert.LessOrEqual(t, wait, 5*time.Minute)
}

func TestSlidingWindowClearsAfterSpan(t *testing.T) {
	w := newSlidingWindow(2, time.Hour)
	base := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

	current := base.Add(-61 * time.Minute)
	w.now = func() time.Time { return current }
	w.Record()
	w.Record()
	current = base

	assert.Equal(t, time.Duration(0), w.delay())
}

func TestSlidingWindowWaitHonorsContext(t *testing.T) {
	w := newSlidingWindow(1, time.Hour)
	w.Record()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := w.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
