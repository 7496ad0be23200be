package sqlstore

import "strings"

// Column types differ per dialect. SQLite keeps money as TEXT so no value is
// ever coerced to a float.
var columnTypes = map[Dialect]*strings.Replacer{
	Postgres: strings.NewReplacer(
		"{uuid}", "UUID",
		"{decimal}", "NUMERIC",
		"{date}", "DATE",
		"{bool}", "BOOLEAN",
		"{timestamp}", "TIMESTAMPTZ",
	),
	SQLite: strings.NewReplacer(
		"{uuid}", "TEXT",
		"{decimal}", "TEXT",
		"{date}", "TEXT",
		"{bool}", "INTEGER",
		"{timestamp}", "TIMESTAMP",
	),
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS institutions (
		id {uuid} PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		display_order INTEGER NOT NULL DEFAULT 0,
		created_at {timestamp} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_institutions_owner ON institutions (owner_id)`,

	`CREATE TABLE IF NOT EXISTS accounts (
		id {uuid} PRIMARY KEY,
		owner_id TEXT NOT NULL,
		institution_id {uuid} NOT NULL REFERENCES institutions (id),
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		currency TEXT NOT NULL,
		is_active {bool} NOT NULL,
		display_order INTEGER NOT NULL DEFAULT 0,
		parent_account_id {uuid} REFERENCES accounts (id),
		is_derived {bool} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_owner ON accounts (owner_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_parent_type ON accounts (parent_account_id, type) WHERE parent_account_id IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS account_snapshots (
		id {uuid} PRIMARY KEY,
		account_id {uuid} NOT NULL REFERENCES accounts (id),
		date {date} NOT NULL,
		value {decimal} NOT NULL,
		currency TEXT NOT NULL,
		value_eur {decimal} NOT NULL,
		exchange_rate {decimal},
		note TEXT NOT NULL DEFAULT '',
		UNIQUE (account_id, date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_account_snapshots_date ON account_snapshots (date)`,

	`CREATE TABLE IF NOT EXISTS brokerage_entries (
		id {uuid} PRIMARY KEY,
		account_id {uuid} NOT NULL REFERENCES accounts (id),
		date {date} NOT NULL,
		total_value {decimal} NOT NULL,
		cash_value {decimal} NOT NULL,
		currency TEXT NOT NULL,
		UNIQUE (account_id, date)
	)`,

	`CREATE TABLE IF NOT EXISTS exchange_rates (
		id {uuid} PRIMARY KEY,
		date {date} NOT NULL,
		from_currency TEXT NOT NULL,
		to_currency TEXT NOT NULL,
		rate {decimal} NOT NULL,
		source TEXT NOT NULL,
		UNIQUE (date, from_currency, to_currency)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_exchange_rates_pair ON exchange_rates (from_currency, to_currency, date)`,
}

func schema(d Dialect) []string {
	r := columnTypes[d]
	out := make([]string, len(schemaStatements))
	for i, stmt := range schemaStatements {
		out[i] = r.Replace(stmt)
	}
	return out
}
