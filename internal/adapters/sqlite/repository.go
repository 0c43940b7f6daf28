package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cryptoOrderEngine/internal/domain"
	"cryptoOrderEngine/internal/ports"

	"github.com/mattn/go-sqlite3"
)

// Repository implements the order-intent, exchange-order and leverage-cache
// repositories plus the SettingsStore on one SQLite database.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository opens (and if needed creates) the database and schema.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/order_engine.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode: the orchestrator writes while the reconciler reads.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified", map[string]interface{}{"path": dbPath})

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS order_intents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		idempotency_key TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		requested_usd_amount REAL NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exchange_orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exchange_order_id INTEGER NOT NULL UNIQUE,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		order_type TEXT NOT NULL,
		order_role TEXT NOT NULL,
		parent_order_id INTEGER DEFAULT NULL,
		oco_group_id TEXT DEFAULT '',
		status TEXT NOT NULL,
		price REAL NOT NULL,
		quantity REAL NOT NULL,
		created_at TIMESTAMP NOT NULL,
		exchange_update_time TIMESTAMP DEFAULT NULL
	);

	CREATE TABLE IF NOT EXISTS leverage_cache (
		symbol TEXT PRIMARY KEY,
		last_successful_leverage INTEGER NOT NULL DEFAULT 0,
		last_attempted_leverage INTEGER NOT NULL DEFAULT 0,
		consecutive_failures INTEGER NOT NULL DEFAULT 0,
		last_verified_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trading_settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS symbol_settings (
		symbol TEXT PRIMARY KEY,
		trade_enabled INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_intents_symbol_status ON order_intents (symbol, status);
	CREATE INDEX IF NOT EXISTS idx_orders_symbol_status ON exchange_orders (symbol, status);
	CREATE INDEX IF NOT EXISTS idx_orders_oco_group ON exchange_orders (oco_group_id);
	CREATE INDEX IF NOT EXISTS idx_orders_parent ON exchange_orders (parent_order_id);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// --- OrderIntentRepository Implementation ---

// Create inserts a new intent. The UNIQUE constraint on idempotency_key is
// the serialization point under concurrent invocation of the same signal;
// the losing insert gets ports.ErrDuplicateEntry and must not retry.
func (r *Repository) Create(ctx context.Context, intent *domain.OrderIntent) (int64, error) {
	const query = `
	INSERT INTO order_intents (idempotency_key, status, symbol, side, requested_usd_amount, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		intent.IdempotencyKey, intent.Status, intent.Symbol, intent.Side, intent.RequestedUSDAmount, intent.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("intent with key %s: %w", intent.IdempotencyKey, ports.ErrDuplicateEntry)
		}
		return 0, fmt.Errorf("failed to insert order intent %s: %w", intent.IdempotencyKey, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for intent %s: %w", intent.IdempotencyKey, err)
	}
	intent.ID = id
	r.logger.Debug(ctx, "Order intent created", map[string]interface{}{"intentID": id, "key": intent.IdempotencyKey})
	return id, nil
}

// Resolve moves an intent from PENDING to a terminal status. The WHERE
// clause on the current status makes terminal transitions exactly-once: a
// second resolve matches zero rows and fails.
func (r *Repository) Resolve(ctx context.Context, idempotencyKey string, status domain.IntentStatus) error {
	const query = `UPDATE order_intents SET status = ? WHERE idempotency_key = ? AND status = ?`

	result, err := r.db.ExecContext(ctx, query, status, idempotencyKey, domain.IntentPending)
	if err != nil {
		return fmt.Errorf("failed to resolve intent %s: %w", idempotencyKey, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected resolving intent %s: %w", idempotencyKey, err)
	}
	if rows == 0 {
		return fmt.Errorf("intent %s is not pending: %w", idempotencyKey, ports.ErrUpdateFailed)
	}
	r.logger.Debug(ctx, "Order intent resolved", map[string]interface{}{"key": idempotencyKey, "status": status})
	return nil
}

// FindByKey retrieves an intent by idempotency key.
func (r *Repository) FindByKey(ctx context.Context, idempotencyKey string) (*domain.OrderIntent, error) {
	const query = `
	SELECT id, idempotency_key, status, symbol, side, requested_usd_amount, created_at
	FROM order_intents WHERE idempotency_key = ?`

	intent := &domain.OrderIntent{}
	var status, side string
	err := r.db.QueryRowContext(ctx, query, idempotencyKey).Scan(
		&intent.ID, &intent.IdempotencyKey, &status, &intent.Symbol, &side, &intent.RequestedUSDAmount, &intent.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query intent %s: %w", idempotencyKey, err)
	}
	intent.Status = domain.IntentStatus(status)
	intent.Side = domain.OrderSide(side)
	return intent, nil
}

// CountSubmittedTodayBySymbol counts SUBMITTED intents for the symbol during
// the current UTC day. Timestamps are stored UTC, so both sides of the date
// comparison use UTC.
func (r *Repository) CountSubmittedTodayBySymbol(ctx context.Context, symbol string) (int, error) {
	const query = `
	SELECT COUNT(*) FROM order_intents
	WHERE symbol = ? AND status = ? AND date(created_at) = date('now')`

	var count int
	err := r.db.QueryRowContext(ctx, query, symbol, domain.IntentSubmitted).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count today's intents for %s: %w", symbol, err)
	}
	return count, nil
}

// LastSubmittedAt returns the creation time of the symbol's latest SUBMITTED
// intent. An empty side matches either side. Zero time if none exists.
func (r *Repository) LastSubmittedAt(ctx context.Context, symbol string, side domain.OrderSide) (time.Time, error) {
	query := `SELECT MAX(created_at) FROM order_intents WHERE symbol = ? AND status = ?`
	args := []interface{}{symbol, domain.IntentSubmitted}
	if side != "" {
		query += ` AND side = ?`
		args = append(args, side)
	}

	var last sql.NullTime
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&last)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query last submit time for %s: %w", symbol, err)
	}
	if !last.Valid {
		return time.Time{}, nil
	}
	return last.Time, nil
}

// --- ExchangeOrderRepository Implementation ---

const exchangeOrderColumns = `
	id, exchange_order_id, symbol, side, order_type, order_role,
	parent_order_id, oco_group_id, status, price, quantity, created_at, exchange_update_time`

// CreateOrder saves a new exchange order mirror.
func (r *Repository) CreateOrder(ctx context.Context, order *domain.ExchangeOrder) (int64, error) {
	const query = `
	INSERT INTO exchange_orders (exchange_order_id, symbol, side, order_type, order_role,
	                             parent_order_id, oco_group_id, status, price, quantity, created_at, exchange_update_time)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var parentID sql.NullInt64
	if order.ParentOrderID != nil {
		parentID = sql.NullInt64{Int64: *order.ParentOrderID, Valid: true}
	}
	var updateTime sql.NullTime
	if !order.ExchangeUpdateTime.IsZero() {
		updateTime = sql.NullTime{Time: order.ExchangeUpdateTime, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		order.ExchangeOrderID, order.Symbol, order.Side, order.OrderType, order.OrderRole,
		parentID, order.OCOGroupID, order.Status, order.Price, order.Quantity, order.CreatedAt, updateTime)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("exchange order %d: %w", order.ExchangeOrderID, ports.ErrDuplicateEntry)
		}
		return 0, fmt.Errorf("failed to insert exchange order %d: %w", order.ExchangeOrderID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for exchange order %d: %w", order.ExchangeOrderID, err)
	}
	order.ID = id
	r.logger.Debug(ctx, "Exchange order created", map[string]interface{}{"exchangeOrderID": order.ExchangeOrderID, "role": order.OrderRole})
	return id, nil
}

// UpdateStatus sets the status and exchange update time of an order.
func (r *Repository) UpdateStatus(ctx context.Context, exchangeOrderID int64, status domain.OrderStatus, updateTime time.Time) error {
	const query = `UPDATE exchange_orders SET status = ?, exchange_update_time = ? WHERE exchange_order_id = ?`

	result, err := r.db.ExecContext(ctx, query, status, updateTime, exchangeOrderID)
	if err != nil {
		return fmt.Errorf("failed to update status of exchange order %d: %w", exchangeOrderID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for exchange order %d: %w", exchangeOrderID, err)
	}
	if rows == 0 {
		return fmt.Errorf("exchange order %d not found for update: %w", exchangeOrderID, ports.ErrNotFound)
	}
	return nil
}

// FindByExchangeOrderID retrieves an order by the exchange-assigned ID.
func (r *Repository) FindByExchangeOrderID(ctx context.Context, exchangeOrderID int64) (*domain.ExchangeOrder, error) {
	query := `SELECT ` + exchangeOrderColumns + ` FROM exchange_orders WHERE exchange_order_id = ?`

	row := r.db.QueryRowContext(ctx, query, exchangeOrderID)
	order, err := scanExchangeOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query exchange order %d: %w", exchangeOrderID, err)
	}
	return order, nil
}

var activeStatuses = []interface{}{
	domain.OrderStatusNew, domain.OrderStatusOpen, domain.OrderStatusActive, domain.OrderStatusPartiallyFilled,
}

const activeStatusPlaceholders = `(?, ?, ?, ?)`

// FindActive lists all orders in an active status.
func (r *Repository) FindActive(ctx context.Context) ([]*domain.ExchangeOrder, error) {
	query := `SELECT ` + exchangeOrderColumns + ` FROM exchange_orders WHERE status IN ` + activeStatusPlaceholders + ` ORDER BY created_at`

	return r.queryOrders(ctx, query, activeStatuses...)
}

// CountActive counts all orders in an active status.
func (r *Repository) CountActive(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM exchange_orders WHERE status IN ` + activeStatusPlaceholders

	var count int
	err := r.db.QueryRowContext(ctx, query, activeStatuses...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active orders: %w", err)
	}
	return count, nil
}

// CountActiveByRole counts the symbol's active orders carrying the role.
func (r *Repository) CountActiveByRole(ctx context.Context, symbol string, role domain.OrderRole) (int, error) {
	query := `SELECT COUNT(*) FROM exchange_orders WHERE symbol = ? AND order_role = ? AND status IN ` + activeStatusPlaceholders

	args := append([]interface{}{symbol, role}, activeStatuses...)
	var count int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active %s orders for %s: %w", role, symbol, err)
	}
	return count, nil
}

// FindActiveByOCOGroup lists active orders sharing an OCO group.
func (r *Repository) FindActiveByOCOGroup(ctx context.Context, ocoGroupID string) ([]*domain.ExchangeOrder, error) {
	query := `SELECT ` + exchangeOrderColumns + ` FROM exchange_orders WHERE oco_group_id = ? AND status IN ` + activeStatusPlaceholders

	args := append([]interface{}{ocoGroupID}, activeStatuses...)
	return r.queryOrders(ctx, query, args...)
}

// FindActiveByParent lists active orders referencing the parent with the role.
func (r *Repository) FindActiveByParent(ctx context.Context, parentOrderID int64, role domain.OrderRole) ([]*domain.ExchangeOrder, error) {
	query := `SELECT ` + exchangeOrderColumns + ` FROM exchange_orders WHERE parent_order_id = ? AND order_role = ? AND status IN ` + activeStatusPlaceholders

	args := append([]interface{}{parentOrderID, role}, activeStatuses...)
	return r.queryOrders(ctx, query, args...)
}

// FindActiveProtectiveInWindow lists the symbol's active orders with the
// role created within [from, to].
func (r *Repository) FindActiveProtectiveInWindow(ctx context.Context, symbol string, role domain.OrderRole, from, to time.Time) ([]*domain.ExchangeOrder, error) {
	query := `SELECT ` + exchangeOrderColumns + ` FROM exchange_orders
	WHERE symbol = ? AND order_role = ? AND created_at BETWEEN ? AND ? AND status IN ` + activeStatusPlaceholders

	args := append([]interface{}{symbol, role, from, to}, activeStatuses...)
	return r.queryOrders(ctx, query, args...)
}

func (r *Repository) queryOrders(ctx context.Context, query string, args ...interface{}) ([]*domain.ExchangeOrder, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query exchange orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.ExchangeOrder, 0)
	for rows.Next() {
		order, err := scanExchangeOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exchange order: %w", err)
		}
		orders = append(orders, order)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exchange order rows: %w", err)
	}
	return orders, nil
}

// --- LeverageCacheRepository Implementation ---

// Get retrieves the leverage cache entry for a symbol.
func (r *Repository) Get(ctx context.Context, symbol string) (*domain.LeverageCacheEntry, error) {
	const query = `
	SELECT symbol, last_successful_leverage, last_attempted_leverage, consecutive_failures, last_verified_at
	FROM leverage_cache WHERE symbol = ?`

	entry := &domain.LeverageCacheEntry{}
	err := r.db.QueryRowContext(ctx, query, symbol).Scan(
		&entry.Symbol, &entry.LastSuccessfulLeverage, &entry.LastAttemptedLeverage,
		&entry.ConsecutiveFailures, &entry.LastVerifiedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query leverage cache for %s: %w", symbol, err)
	}
	return entry, nil
}

// Upsert inserts or replaces the entry for its symbol.
func (r *Repository) Upsert(ctx context.Context, entry *domain.LeverageCacheEntry) error {
	const query = `
	INSERT INTO leverage_cache (symbol, last_successful_leverage, last_attempted_leverage, consecutive_failures, last_verified_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(symbol) DO UPDATE SET
		last_successful_leverage = excluded.last_successful_leverage,
		last_attempted_leverage = excluded.last_attempted_leverage,
		consecutive_failures = excluded.consecutive_failures,
		last_verified_at = excluded.last_verified_at`

	_, err := r.db.ExecContext(ctx, query,
		entry.Symbol, entry.LastSuccessfulLeverage, entry.LastAttemptedLeverage,
		entry.ConsecutiveFailures, entry.LastVerifiedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert leverage cache for %s: %w", entry.Symbol, err)
	}
	return nil
}

// --- SettingsStore Implementation ---
// Settings are read from the database on every call. The kill switch and
// live toggle must reflect the latest dashboard/Telegram write immediately,
// so nothing here is cached.

const (
	settingLiveTrading     = "live_trading_enabled"
	settingKillSwitch      = "kill_switch_enabled"
	settingTradingDisabled = "trading_disabled"
	settingSymbolAllowList = "symbol_allow_list"
)

func (r *Repository) getSetting(ctx context.Context, key string) (string, bool, error) {
	const query = `SELECT value FROM trading_settings WHERE key = ?`
	var value string
	err := r.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, true, nil
}

func (r *Repository) getBoolSetting(ctx context.Context, key string, defaultValue bool) (bool, error) {
	value, found, err := r.getSetting(ctx, key)
	if err != nil {
		return false, err
	}
	if !found {
		return defaultValue, nil
	}
	return value == "true" || value == "1", nil
}

// IsLiveTradingEnabled defaults to false: an unseeded settings table must
// never place live orders.
func (r *Repository) IsLiveTradingEnabled(ctx context.Context) (bool, error) {
	return r.getBoolSetting(ctx, settingLiveTrading, false)
}

// IsKillSwitchEnabled defaults to false.
func (r *Repository) IsKillSwitchEnabled(ctx context.Context) (bool, error) {
	return r.getBoolSetting(ctx, settingKillSwitch, false)
}

// IsTradingDisabled is the static override; defaults to false.
func (r *Repository) IsTradingDisabled(ctx context.Context) (bool, error) {
	return r.getBoolSetting(ctx, settingTradingDisabled, false)
}

// IsSymbolTradeEnabled defaults to true for symbols without a row: the
// dashboard seeds rows to disable, an unseeded symbol should not dead-end
// signals.
func (r *Repository) IsSymbolTradeEnabled(ctx context.Context, symbol string) (bool, error) {
	const query = `SELECT trade_enabled FROM symbol_settings WHERE symbol = ?`
	var enabled int
	err := r.db.QueryRowContext(ctx, query, symbol).Scan(&enabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return true, nil
		}
		return false, fmt.Errorf("failed to read symbol setting for %s: %w", symbol, err)
	}
	return enabled != 0, nil
}

// SymbolAllowList returns the configured allow-list; empty means unrestricted.
func (r *Repository) SymbolAllowList(ctx context.Context) ([]string, error) {
	value, found, err := r.getSetting(ctx, settingSymbolAllowList)
	if err != nil {
		return nil, err
	}
	if !found || strings.TrimSpace(value) == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols, nil
}

// SetSetting writes a settings key. This is the seam the dashboard and
// Telegram subsystems mutate through.
func (r *Repository) SetSetting(ctx context.Context, key, value string) error {
	const query = `INSERT INTO trading_settings (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

func boolValue(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// SetLiveTradingEnabled flips the live trading toggle.
func (r *Repository) SetLiveTradingEnabled(ctx context.Context, enabled bool) error {
	return r.SetSetting(ctx, settingLiveTrading, boolValue(enabled))
}

// SetKillSwitchEnabled flips the kill switch.
func (r *Repository) SetKillSwitchEnabled(ctx context.Context, enabled bool) error {
	return r.SetSetting(ctx, settingKillSwitch, boolValue(enabled))
}

// SetTradingDisabled flips the static trading-disabled override.
func (r *Repository) SetTradingDisabled(ctx context.Context, disabled bool) error {
	return r.SetSetting(ctx, settingTradingDisabled, boolValue(disabled))
}

// SetSymbolAllowList replaces the allow-list with the given symbols.
// An empty list removes the restriction.
func (r *Repository) SetSymbolAllowList(ctx context.Context, symbols []string) error {
	return r.SetSetting(ctx, settingSymbolAllowList, strings.Join(symbols, ","))
}

// SetSymbolTradeEnabled writes the per-symbol trade flag.
func (r *Repository) SetSymbolTradeEnabled(ctx context.Context, symbol string, enabled bool) error {
	const query = `INSERT INTO symbol_settings (symbol, trade_enabled) VALUES (?, ?)
	ON CONFLICT(symbol) DO UPDATE SET trade_enabled = excluded.trade_enabled`
	value := 0
	if enabled {
		value = 1
	}
	if _, err := r.db.ExecContext(ctx, query, symbol, value); err != nil {
		return fmt.Errorf("failed to write symbol setting for %s: %w", symbol, err)
	}
	return nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanExchangeOrder(s scanner) (*domain.ExchangeOrder, error) {
	o := &domain.ExchangeOrder{}
	var side, orderType, role, status string
	var parentID sql.NullInt64
	var updateTime sql.NullTime
	err := s.Scan(
		&o.ID, &o.ExchangeOrderID, &o.Symbol, &side, &orderType, &role,
		&parentID, &o.OCOGroupID, &status, &o.Price, &o.Quantity, &o.CreatedAt, &updateTime)
	if err != nil {
		return nil, err
	}
	o.Side = domain.OrderSide(side)
	o.OrderType = domain.OrderType(orderType)
	o.OrderRole = domain.OrderRole(role)
	o.Status = domain.OrderStatus(status)
	if parentID.Valid {
		o.ParentOrderID = &parentID.Int64
	}
	if updateTime.Valid {
		o.ExchangeUpdateTime = updateTime.Time
	}
	return o, nil
}
