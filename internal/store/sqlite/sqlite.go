// Package sqlite implements the trade store on an embedded SQLite engine.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"tradedash/internal/model"
	"tradedash/internal/store"
)

// annualMonth stands in for a NULL month in the natural key. SQLite treats
// NULLs in a composite key as distinct, which would defeat dedup of annual
// aggregates; reads map it back to a nil month.
const annualMonth = 0

const createdAtLayout = time.RFC3339

type Store struct {
	db  *sql.DB
	log *logrus.Logger
}

func New(path string, log *logrus.Logger) (*Store, error) {
	if path == "" {
		return nil, &store.InitError{Path: path, Err: fmt.Errorf("path is required")}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &store.InitError{Path: path, Err: err}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &store.InitError{Path: path, Err: err}
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, &store.InitError{Path: path, Err: err}
	}

	log.WithField("path", path).Info("store initialized")
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS trade_records (
			year INTEGER NOT NULL,
			month INTEGER NOT NULL DEFAULT 0,
			reporter_code TEXT NOT NULL,
			reporter_name TEXT NOT NULL DEFAULT '',
			partner_code TEXT NOT NULL,
			partner_name TEXT NOT NULL DEFAULT '',
			trade_flow TEXT NOT NULL,
			hs_code TEXT NOT NULL,
			hs_description TEXT NOT NULL DEFAULT '',
			trade_value REAL,
			quantity REAL,
			unit TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT 'real',
			created_at TEXT NOT NULL,
			PRIMARY KEY (year, month, reporter_code, partner_code, trade_flow, hs_code)
		);`,
		`CREATE TABLE IF NOT EXISTS countries (
			code TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			region TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS hs_codes (
			code TEXT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			section TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trade_year ON trade_records(year);`,
		`CREATE INDEX IF NOT EXISTS idx_trade_reporter ON trade_records(reporter_code);`,
		`CREATE INDEX IF NOT EXISTS idx_trade_partner ON trade_records(partner_code);`,
		`CREATE INDEX IF NOT EXISTS idx_trade_hs_code ON trade_records(hs_code);`,
		`CREATE INDEX IF NOT EXISTS idx_trade_flow ON trade_records(trade_flow);`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return err
		}
	}
	return nil
}

// InsertTradeRecords upserts a batch of fact rows in one transaction, keyed
// by the composite natural key. A failure anywhere rolls back the whole
// batch; there is no partial success.
func (s *Store) InsertTradeRecords(ctx context.Context, records []model.TradeRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &store.WriteError{Table: "trade_records", Attempted: len(records), Err: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trade_records (
			year, month, reporter_code, reporter_name, partner_code, partner_name,
			trade_flow, hs_code, hs_description, trade_value, quantity, unit,
			source, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(year, month, reporter_code, partner_code, trade_flow, hs_code)
		DO UPDATE SET
			reporter_name = excluded.reporter_name,
			partner_name = excluded.partner_name,
			hs_description = excluded.hs_description,
			trade_value = excluded.trade_value,
			quantity = excluded.quantity,
			unit = excluded.unit,
			source = excluded.source,
			created_at = excluded.created_at
	`)
	if err != nil {
		return &store.WriteError{Table: "trade_records", Attempted: len(records), Err: err}
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range records {
		record := records[i]
		createdAt := record.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		source := record.Source
		if source == "" {
			source = model.SourceReal
		}
		month := annualMonth
		if record.Month != nil {
			month = *record.Month
		}
		_, err = stmt.ExecContext(
			ctx,
			record.Year,
			month,
			record.ReporterCode,
			record.ReporterName,
			record.PartnerCode,
			record.PartnerName,
			string(record.TradeFlow),
			record.HSCode,
			record.HSDescription,
			nullableFloat(record.TradeValue),
			nullableFloat(record.Quantity),
			record.Unit,
			string(source),
			createdAt.Format(createdAtLayout),
		)
		if err != nil {
			return &store.WriteError{Table: "trade_records", Attempted: len(records), Err: err}
		}
	}

	if err = tx.Commit(); err != nil {
		return &store.WriteError{Table: "trade_records", Attempted: len(records), Err: err}
	}

	s.log.WithFields(logrus.Fields{"table": "trade_records", "rows": len(records)}).
		Info("batch written")
	return nil
}

// InsertCountries upserts reference rows keyed by country code.
func (s *Store) InsertCountries(ctx context.Context, countries []model.Country) error {
	if len(countries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &store.WriteError{Table: "countries", Attempted: len(countries), Err: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO countries (code, name, region)
		VALUES (?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			region = excluded.region
	`)
	if err != nil {
		return &store.WriteError{Table: "countries", Attempted: len(countries), Err: err}
	}
	defer stmt.Close()

	for _, country := range countries {
		if _, err = stmt.ExecContext(ctx, country.Code, country.Name, country.Region); err != nil {
			return &store.WriteError{Table: "countries", Attempted: len(countries), Err: err}
		}
	}

	if err = tx.Commit(); err != nil {
		return &store.WriteError{Table: "countries", Attempted: len(countries), Err: err}
	}

	s.log.WithFields(logrus.Fields{"table": "countries", "rows": len(countries)}).
		Info("batch written")
	return nil
}

// InsertHSCodes upserts reference rows keyed by HS code.
func (s *Store) InsertHSCodes(ctx context.Context, codes []model.HSCode) error {
	if len(codes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &store.WriteError{Table: "hs_codes", Attempted: len(codes), Err: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO hs_codes (code, description, section)
		VALUES (?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			description = excluded.description,
			section = excluded.section
	`)
	if err != nil {
		return &store.WriteError{Table: "hs_codes", Attempted: len(codes), Err: err}
	}
	defer stmt.Close()

	for _, code := range codes {
		if _, err = stmt.ExecContext(ctx, code.Code, code.Description, code.Section); err != nil {
			return &store.WriteError{Table: "hs_codes", Attempted: len(codes), Err: err}
		}
	}

	if err = tx.Commit(); err != nil {
		return &store.WriteError{Table: "hs_codes", Attempted: len(codes), Err: err}
	}

	s.log.WithFields(logrus.Fields{"table": "hs_codes", "rows": len(codes)}).
		Info("batch written")
	return nil
}

// TradeData returns fact rows matching the filter, ordered by year
// descending, then trade value descending (nulls last). Filter values are
// bound parameters exclusively; the hs_code prefix becomes a bound LIKE
// pattern, never interpolated text.
func (s *Store) TradeData(ctx context.Context, filter model.Filter) ([]model.TradeRecord, error) {
	query := `
		SELECT year, month, reporter_code, reporter_name,
			partner_code, partner_name, trade_flow,
			hs_code, hs_description, trade_value, quantity, unit,
			source, created_at
		FROM trade_records
		WHERE 1=1
	`
	args := []any{}

	if filter.Year != nil {
		query += " AND year = ?"
		args = append(args, *filter.Year)
	}
	if filter.ReporterCode != "" {
		query += " AND reporter_code = ?"
		args = append(args, filter.ReporterCode)
	}
	if filter.PartnerCode != "" {
		query += " AND partner_code = ?"
		args = append(args, filter.PartnerCode)
	}
	if filter.TradeFlow != "" {
		query += " AND trade_flow = ?"
		args = append(args, string(filter.TradeFlow))
	}
	if filter.HSCodePrefix != "" {
		query += ` AND hs_code LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(filter.HSCodePrefix)+"%")
	}

	query += " ORDER BY year DESC, trade_value DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]model.TradeRecord, 0)
	for rows.Next() {
		var record model.TradeRecord
		var month int
		var flow, source, createdAt string
		var tradeValue, quantity sql.NullFloat64
		if err := rows.Scan(
			&record.Year, &month, &record.ReporterCode, &record.ReporterName,
			&record.PartnerCode, &record.PartnerName, &flow,
			&record.HSCode, &record.HSDescription, &tradeValue, &quantity, &record.Unit,
			&source, &createdAt,
		); err != nil {
			return nil, err
		}
		if month != annualMonth {
			record.Month = model.IntPtr(month)
		}
		record.TradeFlow = model.Flow(flow)
		record.Source = model.Source(source)
		if tradeValue.Valid {
			record.TradeValue = model.Float64Ptr(tradeValue.Float64)
		}
		if quantity.Valid {
			record.Quantity = model.Float64Ptr(quantity.Float64)
		}
		if parsed, err := time.Parse(createdAtLayout, createdAt); err == nil {
			record.CreatedAt = parsed
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) Countries(ctx context.Context) ([]model.Country, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code, name, region FROM countries ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	countries := make([]model.Country, 0)
	for rows.Next() {
		var country model.Country
		if err := rows.Scan(&country.Code, &country.Name, &country.Region); err != nil {
			return nil, err
		}
		countries = append(countries, country)
	}
	return countries, rows.Err()
}

func (s *Store) HSCodes(ctx context.Context) ([]model.HSCode, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code, description, section FROM hs_codes ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	codes := make([]model.HSCode, 0)
	for rows.Next() {
		var code model.HSCode
		if err := rows.Scan(&code.Code, &code.Description, &code.Section); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// SummaryStats aggregates the fact table. Null trade values are excluded
// from the sum but their rows still count toward the total.
func (s *Store) SummaryStats(ctx context.Context) (model.SummaryStats, error) {
	var stats model.SummaryStats

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trade_records`).
		Scan(&stats.TotalRecords); err != nil {
		return model.SummaryStats{}, err
	}

	var minYear, maxYear sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MIN(year), MAX(year) FROM trade_records`).
		Scan(&minYear, &maxYear); err != nil {
		return model.SummaryStats{}, err
	}
	if minYear.Valid && maxYear.Valid {
		stats.Years = model.YearRange{Min: int(minYear.Int64), Max: int(maxYear.Int64), HasData: true}
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT reporter_code) FROM trade_records`).
		Scan(&stats.UniqueReporters); err != nil {
		return model.SummaryStats{}, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT partner_code) FROM trade_records`).
		Scan(&stats.UniquePartners); err != nil {
		return model.SummaryStats{}, err
	}

	var total sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `SELECT SUM(trade_value) FROM trade_records WHERE trade_value IS NOT NULL`).
		Scan(&total); err != nil {
		return model.SummaryStats{}, err
	}
	if total.Valid {
		stats.TotalTradeValue = total.Float64
	}

	return stats, nil
}

// TopTraders ranks reporters by summed non-null trade value for one flow.
// Ties order deterministically by reporter name.
func (s *Store) TopTraders(ctx context.Context, flow model.Flow, limit int) ([]model.TopTrader, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT reporter_code, reporter_name, SUM(trade_value) AS total_value, COUNT(*) AS record_count
		FROM trade_records
		WHERE trade_flow = ? AND trade_value IS NOT NULL
		GROUP BY reporter_code, reporter_name
		ORDER BY total_value DESC, reporter_name ASC
		LIMIT ?
	`, string(flow), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	traders := make([]model.TopTrader, 0, limit)
	for rows.Next() {
		var trader model.TopTrader
		if err := rows.Scan(&trader.ReporterCode, &trader.ReporterName, &trader.TotalValue, &trader.RecordCount); err != nil {
			return nil, err
		}
		traders = append(traders, trader)
	}
	return traders, rows.Err()
}

// TradeTrends sums non-null trade values by (year, flow), optionally for a
// single reporter, ordered by year ascending.
func (s *Store) TradeTrends(ctx context.Context, reporterCode string) ([]model.TrendPoint, error) {
	query := `
		SELECT year, trade_flow, SUM(trade_value) AS total_value
		FROM trade_records
		WHERE trade_value IS NOT NULL
	`
	args := []any{}
	if strings.TrimSpace(reporterCode) != "" {
		query += " AND reporter_code = ?"
		args = append(args, reporterCode)
	}
	query += " GROUP BY year, trade_flow ORDER BY year ASC, trade_flow ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]model.TrendPoint, 0)
	for rows.Next() {
		var point model.TrendPoint
		var flow string
		if err := rows.Scan(&point.Year, &flow, &point.TotalValue); err != nil {
			return nil, err
		}
		point.TradeFlow = model.Flow(flow)
		points = append(points, point)
	}
	return points, rows.Err()
}

// DeleteOlderThan removes fact rows written before now-age. Maintenance
// only; not part of the steady-state pipeline.
func (s *Store) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age).Format(createdAtLayout)
	result, err := s.db.ExecContext(ctx, `DELETE FROM trade_records WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.log.WithField("rows", deleted).Info("old records removed")
	}
	return deleted, nil
}

// escapeLike neutralizes LIKE metacharacters so a prefix filter matches
// literally ("8_" must not match "84").
func escapeLike(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, "%", `\%`)
	value = strings.ReplaceAll(value, "_", `\_`)
	return value
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

var _ store.Store = (*Store)(nil)
