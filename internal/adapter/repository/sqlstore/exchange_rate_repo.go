package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/simaogato/networth-backend/internal/domain"
)

type exchangeRateRepository struct {
	c *conn
}

// NewExchangeRateRepository creates a new SQL exchange-rate repository
func NewExchangeRateRepository(db *DB) domain.ExchangeRateRepository {
	return &exchangeRateRepository{c: &conn{q: db.DB, dialect: db.dialect}}
}

const rateColumns = `r.id, CAST(r.date AS TEXT), r.from_currency, r.to_currency, r.rate, r.source`

func (r *exchangeRateRepository) Get(ctx context.Context, date time.Time, from, to domain.Currency) (*domain.ExchangeRate, error) {
	query := `SELECT ` + rateColumns + `
		FROM exchange_rates r
		WHERE r.date = $1 AND r.from_currency = $2 AND r.to_currency = $3`

	rate, err := scanRate(r.c.queryRow(ctx, query, dayParam(date), string(from), string(to)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rate %s->%s@%s: %w", from, to, domain.FormatDay(date), domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.NewStorageError("get exchange rate", err)
	}
	return rate, nil
}

func (r *exchangeRateRepository) Save(ctx context.Context, rate *domain.ExchangeRate) error {
	if err := rate.Validate(); err != nil {
		return err
	}
	rate.Date = domain.Day(rate.Date)

	query := `
		INSERT INTO exchange_rates (id, date, from_currency, to_currency, rate, source)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (date, from_currency, to_currency) DO UPDATE SET
			rate = excluded.rate,
			source = excluded.source
		RETURNING id
	`
	err := r.c.queryRow(ctx, query,
		rate.ID,
		dayParam(rate.Date),
		string(rate.From),
		string(rate.To),
		rate.Rate.String(),
		rate.Source,
	).Scan(&rate.ID)
	if err != nil {
		return domain.NewStorageError("save exchange rate", err)
	}
	return nil
}

func (r *exchangeRateRepository) LatestOnOrBefore(ctx context.Context, from, to domain.Currency, date time.Time) (*domain.ExchangeRate, error) {
	query := `SELECT ` + rateColumns + `
		FROM exchange_rates r
		WHERE r.from_currency = $1 AND r.to_currency = $2 AND r.date <= $3
		ORDER BY r.date DESC
		LIMIT 1`

	rate, err := scanRate(r.c.queryRow(ctx, query, string(from), string(to), dayParam(date)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rate %s->%s on or before %s: %w", from, to, domain.FormatDay(date), domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.NewStorageError("latest exchange rate", err)
	}
	return rate, nil
}

func (r *exchangeRateRepository) Latest(ctx context.Context) ([]*domain.ExchangeRate, error) {
	query := `SELECT ` + rateColumns + `
		FROM exchange_rates r
		WHERE r.date = (
			SELECT MAX(r2.date) FROM exchange_rates r2
			WHERE r2.from_currency = r.from_currency AND r2.to_currency = r.to_currency
		)
		ORDER BY r.from_currency, r.to_currency`

	rows, err := r.c.query(ctx, query)
	if err != nil {
		return nil, domain.NewStorageError("list latest exchange rates", err)
	}
	defer rows.Close()

	rates := []*domain.ExchangeRate{}
	for rows.Next() {
		rate, err := scanRate(rows)
		if err != nil {
			return nil, domain.NewStorageError("list latest exchange rates", err)
		}
		rates = append(rates, rate)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("list latest exchange rates", err)
	}
	return rates, nil
}

func scanRate(s scanner) (*domain.ExchangeRate, error) {
	var (
		rate             domain.ExchangeRate
		dateStr, rateStr string
		from, to         string
	)
	err := s.Scan(&rate.ID, &dateStr, &from, &to, &rateStr, &rate.Source)
	if err != nil {
		return nil, err
	}
	if rate.Date, err = parseDay(dateStr); err != nil {
		return nil, err
	}
	if rate.Rate, err = parseDecimal("rate", rateStr); err != nil {
		return nil, err
	}
	rate.From = domain.Currency(from)
	rate.To = domain.Currency(to)
	return &rate, nil
}
