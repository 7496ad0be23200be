package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/simaogato/networth-backend/internal/domain"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// conn runs queries written with $n placeholders on either dialect
type conn struct {
	q       querier
	dialect Dialect
}

var placeholder = regexp.MustCompile(`\$\d+`)

// rebind turns $1..$n into ? for SQLite. Every query uses each placeholder
// once and in ascending order, so positional ? binding stays correct.
func rebind(d Dialect, query string) string {
	if d != SQLite {
		return query
	}
	return placeholder.ReplaceAllString(query, "?")
}

func (c *conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, rebind(c.dialect, query), args...)
}

func (c *conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, rebind(c.dialect, query), args...)
}

func (c *conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, rebind(c.dialect, query), args...)
}

// forUpdate appends a row lock where the dialect supports one
func (c *conn) forUpdate(query string) string {
	if c.dialect == Postgres {
		return query + " FOR UPDATE"
	}
	return query
}

// whereClause accumulates WHERE conditions with numbered placeholders
type whereClause struct {
	conds []string
	args  []any
}

// add appends cond, replacing its single ? with the next $n
func (f *whereClause) add(cond string, arg any) {
	f.args = append(f.args, arg)
	f.conds = append(f.conds, strings.Replace(cond, "?", fmt.Sprintf("$%d", len(f.args)), 1))
}

// raw appends a condition without a parameter
func (f *whereClause) raw(cond string) {
	f.conds = append(f.conds, cond)
}

func (f *whereClause) where() string {
	if len(f.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.conds, " AND ")
}

// next returns the placeholder for an argument appended after the conditions
func (f *whereClause) next(arg any) string {
	f.args = append(f.args, arg)
	return fmt.Sprintf("$%d", len(f.args))
}

func dayParam(t time.Time) string {
	return domain.FormatDay(t)
}

// parseDay accepts YYYY-MM-DD and longer timestamp renderings of a DATE column
func parseDay(s string) (time.Time, error) {
	if len(s) > len(domain.DateLayout) {
		s = s[:len(domain.DateLayout)]
	}
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", s, err)
	}
	return t, nil
}

func parseDecimal(column, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse %s: %w", column, err)
	}
	return d, nil
}
