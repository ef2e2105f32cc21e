package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"fxhub/internal/application/port"
	"fxhub/internal/domain"
)

// Repo archives rates in Postgres. Prices are stored as numeric(19,8).
type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

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
  id BIGSERIAL PRIMARY KEY,
  channel VARCHAR(16) NOT NULL,
  rate_name VARCHAR(32) NOT NULL,
  platform VARCHAR(16) NOT NULL,
  symbol VARCHAR(16) NOT NULL,
  bid NUMERIC(19,8) NOT NULL,
  ask NUMERIC(19,8) NOT NULL,
  rate_updatetime TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_rates_name_time ON tbl_rates(rate_name, rate_updatetime);
`)
	return err
}

func (r *Repo) InsertRate(ctx context.Context, ch port.Channel, rate domain.Rate) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tbl_rates(channel, rate_name, platform, symbol, bid, ask, rate_updatetime)
		VALUES($1, $2, $3, $4, $5, $6, $7)
	`, string(ch), rate.Key(), rate.Platform, rate.Symbol, toNumeric(rate.Bid), toNumeric(rate.Ask), rate.Timestamp.UTC())
	return err
}

func (r *Repo) RecentRates(ctx context.Context, key string, limit int) ([]domain.Rate, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT platform, symbol, bid, ask, rate_updatetime FROM tbl_rates
		WHERE rate_name = $1 ORDER BY rate_updatetime DESC, id DESC LIMIT $2
	`, key, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Rate
	for rows.Next() {
		var rt domain.Rate
		var bid, ask decimal.Decimal
		var ts time.Time
		if err := rows.Scan(&rt.Platform, &rt.Symbol, &bid, &ask, &ts); err != nil {
			return nil, err
		}
		rt.Bid, _ = bid.Float64()
		rt.Ask, _ = ask.Float64()
		rt.Timestamp = ts.UTC()
		out = append(out, rt)
	}
	return out, rows.Err()
}

// toNumeric rounds to the column scale.
func toNumeric(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(8)
}

var _ port.Repository = (*Repo)(nil)
