package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"

	"github.com/ethereum/go-ethereum/common"

	"upiramp/native/quote"
	"upiramp/native/router"
	"upiramp/native/ticket"
)

// Storage wraps the rampd persistence layer. It backs the quote, ticket,
// settlement, and claim ledgers with a shared sqlite database.
type Storage struct {
	db *sql.DB
}

var (
	// ErrPathRequired is returned when the backing store path is missing.
	ErrPathRequired = errors.New("rampd storage path must be configured")

	// ErrNotFound is returned for lookups that match no row.
	ErrNotFound = errors.New("rampd storage: not found")
)

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(path string) (*Storage, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases database resources.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveQuote upserts a locked quote's audit row. Quotes are retained forever;
// the only mutable column is the claimed flag.
func (s *Storage) SaveQuote(ctx context.Context, record quote.Record) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	id := strings.TrimSpace(record.ID)
	if id == "" {
		return fmt.Errorf("quote id required")
	}
	claimed := 0
	if record.Claimed {
		claimed = 1
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO quotes(id, user_addr, conversion_type, fiat_amount, output_asset, output_amount, input_asset, input_amount, fiat_rate, base_rate, locked_at, expires_at, claimed)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET claimed=excluded.claimed
    `, id, record.User.Hex(), record.Type, record.FiatAmount, record.OutputAsset, record.OutputAmount,
		record.InputAsset, record.InputAmount, record.FiatRate, record.BaseRate,
		record.LockedAt.UTC().Unix(), record.ExpiresAt.UTC().Unix(), claimed)
	if err != nil {
		return fmt.Errorf("save quote: %w", err)
	}
	return nil
}

// GetQuote loads one persisted quote by id.
func (s *Storage) GetQuote(ctx context.Context, id string) (quote.Record, error) {
	record := quote.Record{}
	if s == nil {
		return record, fmt.Errorf("storage not configured")
	}
	row := s.db.QueryRowContext(ctx, `
        SELECT id, user_addr, conversion_type, fiat_amount, output_asset, output_amount, input_asset, input_amount, fiat_rate, base_rate, locked_at, expires_at, claimed
        FROM quotes
        WHERE id = ?
    `, strings.TrimSpace(id))
	rec, err := scanQuote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return record, ErrNotFound
		}
		return record, fmt.Errorf("query quote: %w", err)
	}
	return rec, nil
}

// ListQuotes pages through the quote audit log in lock order. cursor is the
// last id seen on the previous page; empty starts from the beginning.
func (s *Storage) ListQuotes(ctx context.Context, user *common.Address, cursor string, limit int) ([]quote.Record, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	query := `
        SELECT id, user_addr, conversion_type, fiat_amount, output_asset, output_amount, input_asset, input_amount, fiat_rate, base_rate, locked_at, expires_at, claimed
        FROM quotes
        WHERE rowid > COALESCE((SELECT rowid FROM quotes WHERE id = ?), 0)
    `
	args := []interface{}{strings.TrimSpace(cursor)}
	if user != nil {
		query += " AND user_addr = ?"
		args = append(args, user.Hex())
	}
	query += " ORDER BY rowid ASC LIMIT ?"
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query quotes: %w", err)
	}
	defer rows.Close()
	records := make([]quote.Record, 0, limit)
	for rows.Next() {
		rec, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quotes: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQuote(row rowScanner) (quote.Record, error) {
	var rec quote.Record
	var userHex string
	var lockedAt, expiresAt int64
	var claimed int
	if err := row.Scan(&rec.ID, &userHex, &rec.Type, &rec.FiatAmount, &rec.OutputAsset, &rec.OutputAmount,
		&rec.InputAsset, &rec.InputAmount, &rec.FiatRate, &rec.BaseRate, &lockedAt, &expiresAt, &claimed); err != nil {
		return rec, err
	}
	rec.User = common.HexToAddress(userHex)
	rec.LockedAt = time.Unix(lockedAt, 0).UTC()
	rec.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	rec.Claimed = claimed != 0
	return rec, nil
}

// SaveTicket upserts the ticket lifecycle row keyed by transaction id.
func (s *Storage) SaveTicket(ctx context.Context, record ticket.Record) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	id := strings.TrimSpace(record.TransactionID)
	if id == "" {
		return fmt.Errorf("transaction id required")
	}
	consumedAt := int64(0)
	if !record.ConsumedAt.IsZero() {
		consumedAt = record.ConsumedAt.UTC().Unix()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO tickets(transaction_id, owner_addr, status, minted_at, consumed_at)
        VALUES(?, ?, ?, ?, ?)
        ON CONFLICT(transaction_id) DO UPDATE SET
            owner_addr=excluded.owner_addr,
            status=excluded.status,
            consumed_at=excluded.consumed_at
    `, id, record.Owner.Hex(), record.Status, record.MintedAt.UTC().Unix(), consumedAt)
	if err != nil {
		return fmt.Errorf("save ticket: %w", err)
	}
	return nil
}

// GetTicket loads one persisted ticket row.
func (s *Storage) GetTicket(ctx context.Context, transactionID string) (ticket.Record, error) {
	rec := ticket.Record{}
	if s == nil {
		return rec, fmt.Errorf("storage not configured")
	}
	row := s.db.QueryRowContext(ctx, `
        SELECT transaction_id, owner_addr, status, minted_at, consumed_at
        FROM tickets
        WHERE transaction_id = ?
    `, strings.TrimSpace(transactionID))
	var ownerHex string
	var mintedAt, consumedAt int64
	if err := row.Scan(&rec.TransactionID, &ownerHex, &rec.Status, &mintedAt, &consumedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, ErrNotFound
		}
		return rec, fmt.Errorf("query ticket: %w", err)
	}
	rec.Owner = common.HexToAddress(ownerHex)
	rec.MintedAt = time.Unix(mintedAt, 0).UTC()
	if consumedAt > 0 {
		rec.ConsumedAt = time.Unix(consumedAt, 0).UTC()
	}
	return rec, nil
}

// SaveSettlement appends the audit row for one accepted swap.
func (s *Storage) SaveSettlement(ctx context.Context, record router.SettlementRecord) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	id := strings.TrimSpace(record.TransactionID)
	if id == "" {
		return fmt.Errorf("transaction id required")
	}
	immediate := 0
	if record.ImmediateTake {
		immediate = 1
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO settlements(transaction_id, pool_id, user_addr, mode, immediate_take, asset_in, amount_in, asset_out, amount_out, outcome, submitted_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, id, record.PoolID.Hex(), record.User.Hex(), record.Mode, immediate,
		record.AssetIn, record.AmountIn, record.AssetOut, record.AmountOut,
		record.Outcome, record.SubmittedAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("save settlement: %w", err)
	}
	return nil
}

// ListSettlements returns the most recent settlement audit rows, newest first.
func (s *Storage) ListSettlements(ctx context.Context, limit int) ([]router.SettlementRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT transaction_id, pool_id, user_addr, mode, immediate_take, asset_in, amount_in, asset_out, amount_out, outcome, submitted_at
        FROM settlements
        ORDER BY id DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query settlements: %w", err)
	}
	defer rows.Close()
	records := make([]router.SettlementRecord, 0, limit)
	for rows.Next() {
		var rec router.SettlementRecord
		var poolHex, userHex string
		var immediate int
		var submittedAt int64
		if err := rows.Scan(&rec.TransactionID, &poolHex, &userHex, &rec.Mode, &immediate,
			&rec.AssetIn, &rec.AmountIn, &rec.AssetOut, &rec.AmountOut, &rec.Outcome, &submittedAt); err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		rec.PoolID = common.HexToHash(poolHex)
		rec.User = common.HexToAddress(userHex)
		rec.ImmediateTake = immediate != 0
		rec.SubmittedAt = time.Unix(submittedAt, 0).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlements: %w", err)
	}
	return records, nil
}

// SaveClaimBalance upserts the current claim balance for one (user, asset).
func (s *Storage) SaveClaimBalance(ctx context.Context, user common.Address, asset string, amount *big.Int) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "" {
		return fmt.Errorf("asset required")
	}
	value := "0"
	if amount != nil {
		value = amount.String()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO claim_balances(user_addr, asset, amount, updated_at)
        VALUES(?, ?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(user_addr, asset) DO UPDATE SET
            amount=excluded.amount,
            updated_at=CURRENT_TIMESTAMP
    `, user.Hex(), asset, value)
	if err != nil {
		return fmt.Errorf("save claim balance: %w", err)
	}
	return nil
}

// LoadClaimBalances returns every persisted non-zero claim balance.
func (s *Storage) LoadClaimBalances(ctx context.Context) (map[common.Address]map[string]*big.Int, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT user_addr, asset, amount
        FROM claim_balances
    `)
	if err != nil {
		return nil, fmt.Errorf("query claim balances: %w", err)
	}
	defer rows.Close()
	balances := make(map[common.Address]map[string]*big.Int)
	for rows.Next() {
		var userHex, asset, stored string
		if err := rows.Scan(&userHex, &asset, &stored); err != nil {
			return nil, fmt.Errorf("scan claim balance: %w", err)
		}
		amount := new(big.Int)
		if _, ok := amount.SetString(strings.TrimSpace(stored), 10); !ok {
			return nil, fmt.Errorf("parse claim amount: %q", stored)
		}
		if amount.Sign() <= 0 {
			continue
		}
		user := common.HexToAddress(userHex)
		if balances[user] == nil {
			balances[user] = make(map[string]*big.Int)
		}
		balances[user][strings.ToUpper(strings.TrimSpace(asset))] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claim balances: %w", err)
	}
	return balances, nil
}

// SaveVaultBalance upserts the treasury balance snapshot for one asset.
func (s *Storage) SaveVaultBalance(ctx context.Context, asset string, amount *big.Int) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "" {
		return fmt.Errorf("asset required")
	}
	value := "0"
	if amount != nil {
		value = amount.String()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO vault_balances(asset, amount, updated_at)
        VALUES(?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(asset) DO UPDATE SET
            amount=excluded.amount,
            updated_at=CURRENT_TIMESTAMP
    `, asset, value)
	if err != nil {
		return fmt.Errorf("save vault balance: %w", err)
	}
	return nil
}

// LoadVaultBalances returns the persisted treasury snapshot.
func (s *Storage) LoadVaultBalances(ctx context.Context) (map[string]*big.Int, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT asset, amount
        FROM vault_balances
    `)
	if err != nil {
		return nil, fmt.Errorf("query vault balances: %w", err)
	}
	defer rows.Close()
	balances := make(map[string]*big.Int)
	for rows.Next() {
		var asset, stored string
		if err := rows.Scan(&asset, &stored); err != nil {
			return nil, fmt.Errorf("scan vault balance: %w", err)
		}
		amount := new(big.Int)
		if _, ok := amount.SetString(strings.TrimSpace(stored), 10); !ok {
			return nil, fmt.Errorf("parse vault amount: %q", stored)
		}
		balances[strings.ToUpper(strings.TrimSpace(asset))] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vault balances: %w", err)
	}
	return balances, nil
}

// RecordEvent appends a protocol event to the audit log.
func (s *Storage) RecordEvent(ctx context.Context, eventType string, attributes map[string]string, when time.Time) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return fmt.Errorf("event type required")
	}
	parts := make([]string, 0, len(attributes))
	for key, value := range attributes {
		parts = append(parts, key+"="+value)
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO events(event_type, attributes, recorded_at)
        VALUES(?, ?, ?)
    `, eventType, strings.Join(parts, "\n"), when.UTC().Unix())
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS quotes (
    id TEXT PRIMARY KEY,
    user_addr TEXT NOT NULL,
    conversion_type TEXT NOT NULL,
    fiat_amount TEXT NOT NULL,
    output_asset TEXT NOT NULL,
    output_amount TEXT NOT NULL,
    input_asset TEXT NOT NULL,
    input_amount TEXT NOT NULL,
    fiat_rate TEXT NOT NULL,
    base_rate TEXT NOT NULL,
    locked_at INTEGER NOT NULL,
    expires_at INTEGER NOT NULL,
    claimed INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quotes_user ON quotes(user_addr);

CREATE TABLE IF NOT EXISTS tickets (
    transaction_id TEXT PRIMARY KEY,
    owner_addr TEXT NOT NULL,
    status TEXT NOT NULL,
    minted_at INTEGER NOT NULL,
    consumed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS settlements (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    transaction_id TEXT NOT NULL,
    pool_id TEXT NOT NULL,
    user_addr TEXT NOT NULL,
    mode TEXT NOT NULL,
    immediate_take INTEGER NOT NULL,
    asset_in TEXT NOT NULL,
    amount_in TEXT NOT NULL,
    asset_out TEXT NOT NULL,
    amount_out TEXT NOT NULL,
    outcome TEXT NOT NULL,
    submitted_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_settlements_txn ON settlements(transaction_id);

CREATE TABLE IF NOT EXISTS claim_balances (
    user_addr TEXT NOT NULL,
    asset TEXT NOT NULL,
    amount TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (user_addr, asset)
);

CREATE TABLE IF NOT EXISTS vault_balances (
    asset TEXT PRIMARY KEY,
    amount TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_type TEXT NOT NULL,
    attributes TEXT NOT NULL,
    recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type, recorded_at);
`
