// Package dbtest opens throwaway in-memory sqlite databases carrying the
// tables repositories touch in unit tests.
package dbtest

import (
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS restaurant_settings (
		id INTEGER PRIMARY KEY,
		tax_rate NUMERIC NOT NULL DEFAULT 0,
		min_order_amount NUMERIC NOT NULL DEFAULT 0,
		delivery_fee NUMERIC NOT NULL DEFAULT 0,
		loyalty_enabled BOOLEAN NOT NULL DEFAULT 1,
		points_per_dollar NUMERIC NOT NULL DEFAULT 0.5,
		points_for_free INTEGER NOT NULL DEFAULT 100,
		currency TEXT NOT NULL DEFAULT 'USD',
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS menu_items (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price NUMERIC NOT NULL,
		is_available BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS modifier_options (
		id TEXT PRIMARY KEY,
		menu_item_id TEXT NOT NULL,
		group_name TEXT NOT NULL,
		name TEXT NOT NULL,
		price NUMERIC NOT NULL DEFAULT 0,
		is_available BOOLEAN NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		order_number INTEGER NOT NULL DEFAULT 0,
		user_id TEXT,
		customer_name TEXT NOT NULL,
		customer_email TEXT,
		customer_phone TEXT,
		delivery_address TEXT,
		type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		payment_status TEXT NOT NULL DEFAULT 'UNPAID',
		subtotal NUMERIC NOT NULL,
		tax NUMERIC NOT NULL DEFAULT 0,
		delivery_fee NUMERIC NOT NULL DEFAULT 0,
		tip NUMERIC NOT NULL DEFAULT 0,
		discount NUMERIC NOT NULL DEFAULT 0,
		total NUMERIC NOT NULL,
		coupon_id TEXT,
		coupon_discount NUMERIC NOT NULL DEFAULT 0,
		gift_card_id TEXT,
		gift_card_amount NUMERIC NOT NULL DEFAULT 0,
		loyalty_points_redeemed INTEGER NOT NULL DEFAULT 0,
		loyalty_discount NUMERIC NOT NULL DEFAULT 0,
		notes TEXT,
		confirmed_at DATETIME,
		preparing_at DATETIME,
		ready_at DATETIME,
		out_for_delivery_at DATETIME,
		delivered_at DATETIME,
		actual_delivery_time DATETIME,
		cancelled_at DATETIME,
		cancel_reason TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		menu_item_id TEXT NOT NULL,
		name TEXT NOT NULL,
		unit_price NUMERIC NOT NULL,
		quantity INTEGER NOT NULL,
		modifiers TEXT,
		line_total NUMERIC NOT NULL,
		notes TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		status TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		payment_intent_id TEXT UNIQUE,
		idempotency_key TEXT UNIQUE,
		refund_id TEXT,
		refunded_amount NUMERIC,
		failure_reason TEXT,
		requires_action BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS coupons (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		discount_value NUMERIC NOT NULL DEFAULT 0,
		max_discount_amount NUMERIC,
		min_order_amount NUMERIC,
		valid_from DATETIME,
		valid_until DATETIME,
		usage_limit INTEGER,
		usage_limit_per_user INTEGER,
		usage_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		description TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		CHECK (usage_limit IS NULL OR usage_count <= usage_limit)
	)`,
	`CREATE TABLE IF NOT EXISTS coupon_usages (
		id TEXT PRIMARY KEY,
		coupon_id TEXT NOT NULL,
		user_id TEXT,
		order_id TEXT NOT NULL,
		discount_amount NUMERIC NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS gift_cards (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		pin_hash TEXT,
		original_balance NUMERIC NOT NULL,
		current_balance NUMERIC NOT NULL,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		expires_at DATETIME,
		purchaser_email TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		CHECK (current_balance >= 0 AND current_balance <= original_balance)
	)`,
	`CREATE TABLE IF NOT EXISTS gift_card_transactions (
		id TEXT PRIMARY KEY,
		gift_card_id TEXT NOT NULL,
		order_id TEXT,
		type TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		balance_after NUMERIC NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS loyalty_accounts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		points INTEGER NOT NULL DEFAULT 0 CHECK (points >= 0),
		lifetime_points INTEGER NOT NULL DEFAULT 0,
		tier TEXT NOT NULL DEFAULT 'BRONZE',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS loyalty_transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		order_id TEXT,
		type TEXT NOT NULL,
		points INTEGER NOT NULL,
		description TEXT NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS deliveries (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'PENDING',
		driver_id TEXT,
		driver_latitude REAL,
		driver_longitude REAL,
		driver_location_updated_at DATETIME,
		estimated_pickup_time DATETIME,
		estimated_delivery_time DATETIME,
		actual_pickup_time DATETIME,
		actual_delivery_time DATETIME,
		assigned_at DATETIME,
		accepted_at DATETIME,
		failure_reason TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		order_id TEXT,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		channels TEXT,
		link TEXT,
		read_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		dead_lettered_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`,
}

// Open returns a fresh database named after the test with the full schema applied.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := "file:" + name + "_" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=off"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.New(log.New(io.Discard, "", log.LstdFlags), gormlogger.Config{LogLevel: gormlogger.Silent}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

// SeedSettings writes the restaurant settings singleton.
func SeedSettings(t testing.TB, conn *gorm.DB, taxRate, minOrder, deliveryFee string, loyaltyEnabled bool) {
	t.Helper()
	err := conn.Exec(
		`INSERT INTO restaurant_settings (id, tax_rate, min_order_amount, delivery_fee, loyalty_enabled, points_per_dollar, points_for_free, currency)
		 VALUES (1, ?, ?, ?, ?, 0.5, 100, 'USD')`,
		taxRate, minOrder, deliveryFee, loyaltyEnabled,
	).Error
	if err != nil {
		t.Fatalf("seed settings: %v", err)
	}
}

// BeforeExec runs fn once, ahead of the first raw statement containing fragment,
// on the same connection or transaction. Tests use it to land a competing write
// between a service's read and its guarded update.
func BeforeExec(t testing.TB, conn *gorm.DB, fragment string, fn func(tx *gorm.DB)) {
	t.Helper()
	fired := false
	name := "dbtest:before_exec:" + uuid.NewString()
	err := conn.Callback().Raw().Before("gorm:raw").Register(name, func(db *gorm.DB) {
		if fired || !strings.Contains(db.Statement.SQL.String(), fragment) {
			return
		}
		fired = true
		fn(db.Session(&gorm.Session{NewDB: true}))
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}
	t.Cleanup(func() {
		if !fired {
			t.Errorf("no statement matched %q", fragment)
		}
	})
}
