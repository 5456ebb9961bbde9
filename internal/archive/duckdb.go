package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/shopspring/decimal"

	"marketfetch/internal/models"
)

// DuckDBArchive implements SeriesArchive on a DuckDB database file.
// A path of ":memory:" keeps the archive in memory, which the tests use.
type DuckDBArchive struct {
	db     *sql.DB
	dbPath string
	logger *slog.Logger
}

// OpenDuckDB opens (or creates) the archive database and ensures the schema
// exists.
func OpenDuckDB(ctx context.Context, dbPath string, logger *slog.Logger) (*DuckDBArchive, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	// Single-writer pattern recommended for DuckDB.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	a := &DuckDBArchive{db: db, dbPath: dbPath, logger: logger}
	if err := a.initialize(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("series archive opened", "path", dbPath)
	return a, nil
}

func (a *DuckDBArchive) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS bars (
		symbol     VARCHAR NOT NULL,
		ts         TIMESTAMP NOT NULL,
		open       DECIMAL(18,6) NOT NULL,
		high       DECIMAL(18,6) NOT NULL,
		low        DECIMAL(18,6) NOT NULL,
		close      DECIMAL(18,6) NOT NULL,
		volume     DECIMAL(18,6) NOT NULL,
		fetched_at TIMESTAMP NOT NULL,
		PRIMARY KEY (symbol, ts)
	)`
	if _, err := a.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create bars table: %w", err)
	}
	return nil
}

// Store implements SeriesArchive.Store.
func (a *DuckDBArchive) Store(ctx context.Context, symbol string, series models.PriceSeries) error {
	if series.IsEmpty() {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, ts, open, high, low, close, volume, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
	if err != nil {
		return fmt.Errorf("failed to prepare archive insert: %w", err)
	}
	defer stmt.Close()

	fetchedAt := time.Now().UTC()
	for _, bar := range series {
		_, err := stmt.ExecContext(ctx, symbol, bar.Timestamp,
			bar.Open.String(), bar.High.String(), bar.Low.String(),
			bar.Close.String(), bar.Volume.String(), fetchedAt)
		if err != nil {
			return fmt.Errorf("failed to archive bar %s@%s: %w", symbol, bar.Timestamp, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive transaction: %w", err)
	}

	a.logger.Debug("archived series", "symbol", symbol, "bars", len(series))
	return nil
}

// Load implements SeriesArchive.Load.
func (a *DuckDBArchive) Load(ctx context.Context, symbol string, start, end time.Time) (models.PriceSeries, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC`, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}
	defer rows.Close()

	var series models.PriceSeries
	for rows.Next() {
		var ts time.Time
		var open, high, low, close, volume string
		if err := rows.Scan(&ts, &open, &high, &low, &close, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan archived bar: %w", err)
		}
		bar, err := parseBar(ts, open, high, low, close, volume)
		if err != nil {
			a.logger.Warn("skipping corrupt archived bar", "symbol", symbol, "ts", ts, "error", err)
			continue
		}
		series = append(series, *bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive row iteration failed: %w", err)
	}
	return series, nil
}

// Prune implements SeriesArchive.Prune.
func (a *DuckDBArchive) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := a.db.ExecContext(ctx, "DELETE FROM bars WHERE fetched_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune archive: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned bars: %w", err)
	}
	if removed > 0 {
		a.logger.Info("pruned archived bars", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}

// Close implements SeriesArchive.Close.
func (a *DuckDBArchive) Close() error {
	return a.db.Close()
}

func parseBar(ts time.Time, open, high, low, close, volume string) (*models.PriceBar, error) {
	o, err := decimal.NewFromString(open)
	if err != nil {
		return nil, err
	}
	h, err := decimal.NewFromString(high)
	if err != nil {
		return nil, err
	}
	l, err := decimal.NewFromString(low)
	if err != nil {
		return nil, err
	}
	c, err := decimal.NewFromString(close)
	if err != nil {
		return nil, err
	}
	v, err := decimal.NewFromString(volume)
	if err != nil {
		return nil, err
	}
	return &models.PriceBar{
		Timestamp: ts.UTC(),
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
		Volume:    v,
	}, nil
}
