package journal

const Schema = `
CREATE TABLE IF NOT EXISTS settlements (
	id TEXT PRIMARY KEY,
	round INTEGER NOT NULL,
	player TEXT NOT NULL,
	net_worth REAL NOT NULL,
	multiple REAL NOT NULL,
	volatility REAL NOT NULL,
	risk_adjusted REAL NOT NULL,
	loan REAL NOT NULL,
	cash REAL NOT NULL,
	settled_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_settlements_round ON settlements(round);
`
