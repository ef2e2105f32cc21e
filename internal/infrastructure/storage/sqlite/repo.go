package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"fxhub/internal/application/port"
	"fxhub/internal/domain"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS tbl_rates (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  channel TEXT NOT NULL,
  rate_name TEXT NOT NULL,
  platform TEXT NOT NULL,
  symbol TEXT NOT NULL,
  bid REAL NOT NULL,
  ask REAL NOT NULL,
  rate_ts_ms INTEGER NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rates_name_ts ON tbl_rates(rate_name, rate_ts_ms);
`)
	return err
}

func (r *Repo) InsertRate(ctx context.Context, ch port.Channel, rate domain.Rate) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tbl_rates(channel, rate_name, platform, symbol, bid, ask, rate_ts_ms, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`, string(ch), rate.Key(), rate.Platform, rate.Symbol, rate.Bid, rate.Ask, rate.Timestamp.UnixMilli(), time.Now().UnixMilli())
	return err
}

func (r *Repo) RecentRates(ctx context.Context, key string, limit int) ([]domain.Rate, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT platform, symbol, bid, ask, rate_ts_ms FROM tbl_rates
		WHERE rate_name = ? ORDER BY rate_ts_ms DESC, id DESC LIMIT ?
	`, key, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Rate
	for rows.Next() {
		var rt domain.Rate
		var ts int64
		if err := rows.Scan(&rt.Platform, &rt.Symbol, &rt.Bid, &rt.Ask, &ts); err != nil {
			return nil, err
		}
		rt.Timestamp = time.UnixMilli(ts).UTC()
		out = append(out, rt)
	}
	return out, rows.Err()
}

var _ port.Repository = (*Repo)(nil)
