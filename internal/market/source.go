package market

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const timeLayout = "2006-01-02 15:04:05"

// CandleSource is the read-only view over the collector's time series.
type CandleSource interface {
	// Recent returns up to n closed-or-closing candles for the interval in
	// ascending OpenTime order, newest last.
	Recent(ctx context.Context, interval string, n int) ([]Candle, error)
	// FirstOfDay returns the first candle of the given trading day, if present.
	FirstOfDay(ctx context.Context, interval string, day time.Time) (Candle, bool, error)
	// Daily returns the newest n daily candles in ascending order; ATR input.
	Daily(ctx context.Context, n int) ([]Candle, error)
}

// SQLiteSource reads the per-interval sqlite files the collector maintains.
// The collector owns the schema: one table per file, named data_<suffix>,
// columns (datetime, open, high, low, close, volume).
type SQLiteSource struct {
	dbs           map[string]*sql.DB
	dailyInterval string
}

// NewSQLiteSource opens one read-only connection per configured interval.
func NewSQLiteSource(paths map[string]string, dailyInterval string) (*SQLiteSource, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("candle source requires at least one database path")
	}
	s := &SQLiteSource{
		dbs:           make(map[string]*sql.DB, len(paths)),
		dailyInterval: dailyInterval,
	}
	for interval, path := range paths {
		db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", path))
		if err != nil {
			return nil, fmt.Errorf("opening candle db for %s failed: %w", interval, err)
		}
		db.SetMaxOpenConns(1)
		s.dbs[interval] = db
	}
	return s, nil
}

// Close releases all per-interval connections.
func (s *SQLiteSource) Close() error {
	var firstErr error
	for _, db := range s.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func tableFor(interval string) string {
	iv := strings.ToLower(strings.TrimSpace(interval))
	if strings.HasSuffix(iv, "d") {
		return "data_1day"
	}
	return "data_" + strings.TrimSuffix(iv, "m") + "min"
}

func (s *SQLiteSource) dbFor(interval string) (*sql.DB, error) {
	db, ok := s.dbs[interval]
	if !ok {
		return nil, fmt.Errorf("no candle database configured for interval %q", interval)
	}
	return db, nil
}

func (s *SQLiteSource) Recent(ctx context.Context, interval string, n int) ([]Candle, error) {
	db, err := s.dbFor(interval)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT datetime, open, high, low, close FROM %s ORDER BY datetime DESC LIMIT ?`, tableFor(interval))
	rows, err := db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("querying %s candles failed: %w", interval, err)
	}
	defer rows.Close()
	out, err := scanCandles(rows, interval)
	if err != nil {
		return nil, err
	}
	// reverse to ascending order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLiteSource) FirstOfDay(ctx context.Context, interval string, day time.Time) (Candle, bool, error) {
	db, err := s.dbFor(interval)
	if err != nil {
		return Candle{}, false, err
	}
	prefix := day.Format("2006-01-02") + "%"
	q := fmt.Sprintf(`SELECT datetime, open, high, low, close FROM %s WHERE datetime LIKE ? ORDER BY datetime ASC LIMIT 1`, tableFor(interval))
	row := db.QueryRowContext(ctx, q, prefix)
	c, err := scanCandle(row, interval)
	if err == sql.ErrNoRows {
		return Candle{}, false, nil
	}
	if err != nil {
		return Candle{}, false, err
	}
	return c, true, nil
}

func (s *SQLiteSource) Daily(ctx context.Context, n int) ([]Candle, error) {
	return s.Recent(ctx, s.dailyInterval, n)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandle(r rowScanner, interval string) (Candle, error) {
	var ts string
	var c Candle
	if err := r.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close); err != nil {
		return Candle{}, err
	}
	t, err := time.ParseInLocation(timeLayout, ts, time.Local)
	if err != nil {
		// daily tables store bare dates
		t, err = time.ParseInLocation("2006-01-02", ts, time.Local)
		if err != nil {
			return Candle{}, fmt.Errorf("%w: unparseable candle timestamp %q", ErrIntegrity, ts)
		}
	}
	c.OpenTime = t
	c.Interval = interval
	return c, nil
}

func scanCandles(rows *sql.Rows, interval string) ([]Candle, error) {
	var out []Candle
	for rows.Next() {
		c, err := scanCandle(rows, interval)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
