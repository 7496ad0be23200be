package exchangerate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/simaogato/networth-backend/internal/domain"
)

// ErrRateUnavailable is returned by providers that have no rate for a pair
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// HTTPProvider queries an exchangerate-api style endpoint: GET {base}/{from}
// returning {"rates": {"EUR": 1.16, ...}}. The endpoint serves current rates,
// so the requested date is only used for the cache row.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider creates a provider with its own bounded HTTP client
func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) Name() string {
	return "exchangerate-api"
}

type latestRatesResponse struct {
	Base  string                 `json:"base"`
	Rates map[string]json.Number `json:"rates"`
}

// Fetch returns the current from->to rate
func (p *HTTPProvider) Fetch(ctx context.Context, _ time.Time, from, to domain.Currency) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/"+string(from), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to build rate request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch rates for %s: %w", from, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decimal.Zero, fmt.Errorf("rate provider returned status %d for %s", resp.StatusCode, from)
	}

	var body latestRatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode rates for %s: %w", from, err)
	}

	raw, ok := body.Rates[string(to)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s->%s: %w", from, to, ErrRateUnavailable)
	}
	rate, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid rate %q for %s->%s: %w", raw, from, to, err)
	}
	return rate, nil
}

// RateTable is a fixed set of rates, e.g. for development or seeding
type RateTable struct {
	Date  time.Time
	Rates map[domain.Currency]map[domain.Currency]decimal.Decimal
}

type rateTableFile struct {
	Date  time.Time                    `yaml:"date"`
	Rates map[string]map[string]string `yaml:"rates"`
}

// LoadRateTable reads a YAML rate table from path
func LoadRateTable(path string) (*RateTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rate table: %w", err)
	}
	return ParseRateTable(data)
}

// ParseRateTable parses a YAML rate table:
//
//	date: 2024-01-01
//	rates:
//	  EUR: {GBP: 0.86, SEK: 11.5}
//	  GBP: {EUR: 1.16}
func ParseRateTable(data []byte) (*RateTable, error) {
	var f rateTableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rate table: %w", err)
	}

	table := &RateTable{
		Date:  domain.Day(f.Date),
		Rates: make(map[domain.Currency]map[domain.Currency]decimal.Decimal, len(f.Rates)),
	}
	for fromCode, targets := range f.Rates {
		from, err := domain.ParseCurrency(fromCode)
		if err != nil {
			return nil, fmt.Errorf("rate table: %w", err)
		}
		row := make(map[domain.Currency]decimal.Decimal, len(targets))
		for toCode, value := range targets {
			to, err := domain.ParseCurrency(toCode)
			if err != nil {
				return nil, fmt.Errorf("rate table: %w", err)
			}
			rate, err := decimal.NewFromString(value)
			if err != nil {
				return nil, fmt.Errorf("rate table: invalid rate %q for %s->%s: %w", value, from, to, err)
			}
			if !rate.IsPositive() {
				return nil, fmt.Errorf("rate table: %s->%s must be positive", from, to)
			}
			row[to] = rate
		}
		table.Rates[from] = row
	}
	return table, nil
}

// Lookup returns the table rate for a pair
func (t *RateTable) Lookup(from, to domain.Currency) (decimal.Decimal, bool) {
	rate, ok := t.Rates[from][to]
	return rate, ok
}

// StaticProvider serves rates from a RateTable regardless of date
type StaticProvider struct {
	table *RateTable
}

// NewStaticProvider creates a provider backed by table
func NewStaticProvider(table *RateTable) *StaticProvider {
	return &StaticProvider{table: table}
}

func (p *StaticProvider) Name() string {
	return "static"
}

func (p *StaticProvider) Fetch(_ context.Context, _ time.Time, from, to domain.Currency) (decimal.Decimal, error) {
	rate, ok := p.table.Lookup(from, to)
	if !ok {
		return decimal.Zero, fmt.Errorf("%s->%s: %w", from, to, ErrRateUnavailable)
	}
	return rate, nil
}
