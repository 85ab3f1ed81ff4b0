package storage

// Migration represents a database migration
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create transactions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					action TEXT NOT NULL,
					account TEXT NOT NULL,
					tx_hash TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'pending',
					expected_event TEXT NOT NULL DEFAULT '',
					block_number INTEGER,
					error TEXT,
					created_at DATETIME NOT NULL,
					settled_at DATETIME
				);

				CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account);
				CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
				CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at);
				CREATE INDEX IF NOT EXISTS idx_transactions_tx_hash ON transactions(tx_hash);
			`,
		},
		{
			Version:     "002",
			Description: "Create balance_snapshots table",
			SQL: `
				CREATE TABLE IF NOT EXISTS balance_snapshots (
					account TEXT PRIMARY KEY,
					token_balance TEXT,
					claimable_from_manager TEXT,
					claimable_from_pool TEXT,
					block_number INTEGER NOT NULL,
					updated_at DATETIME NOT NULL
				);
			`,
		},
		{
			Version:     "003",
			Description: "Create migrations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS migrations (
					version TEXT PRIMARY KEY,
					description TEXT NOT NULL,
					applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create transactions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					action TEXT NOT NULL,
					account TEXT NOT NULL,
					tx_hash TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'pending',
					expected_event TEXT NOT NULL DEFAULT '',
					block_number BIGINT,
					error TEXT,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL,
					settled_at TIMESTAMP WITH TIME ZONE
				);

				CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account);
				CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
				CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at);
				CREATE INDEX IF NOT EXISTS idx_transactions_tx_hash ON transactions(tx_hash);
			`,
		},
		{
			Version:     "002",
			Description: "Create balance_snapshots table",
			SQL: `
				CREATE TABLE IF NOT EXISTS balance_snapshots (
					account TEXT PRIMARY KEY,
					token_balance NUMERIC(78, 0),
					claimable_from_manager NUMERIC(78, 0),
					claimable_from_pool NUMERIC(78, 0),
					block_number BIGINT NOT NULL,
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL
				);
			`,
		},
		{
			Version:     "003",
			Description: "Create migrations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS migrations (
					version TEXT PRIMARY KEY,
					description TEXT NOT NULL,
					applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);
			`,
		},
	}
}
