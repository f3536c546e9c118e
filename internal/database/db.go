package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/dinedesk/dinedesk/internal/config"
	"github.com/dinedesk/dinedesk/pkg/logger"
)

// Database represents a database connection
type Database struct {
	DB     *sqlx.DB
	logger logger.Logger
}

// New creates a new database connection
func New(cfg *config.Config, logger logger.Logger) (*Database, error) {
	db, err := sqlx.Connect("postgres", cfg.GetDBConnString())

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	logger.Info("Connected to database", "host", cfg.DB.Host, "database", cfg.DB.Name)

	return &Database{
		DB:     db,
		logger: logger,
	}, nil
}

// Ping checks the database connection
func (d *Database) Ping(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.DB.Close()
}

// RunMigrations creates the schema. Tables are created idempotently at
// startup; a dedicated migration tool is not used here.
func (d *Database) RunMigrations() error {
	schema := `
	CREATE TABLE IF NOT EXISTS menu_items (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		category VARCHAR(50) NOT NULL,
		price DECIMAL(10, 2) NOT NULL
	);

	CREATE TABLE IF NOT EXISTS orders (
		id BIGSERIAL PRIMARY KEY,
		customer_name VARCHAR(100) NOT NULL,
		phone VARCHAR(30) NOT NULL DEFAULT '',
		email VARCHAR(100) NOT NULL DEFAULT '',
		total_amount DECIMAL(10, 2) NOT NULL,
		payment_method VARCHAR(30) NOT NULL,
		order_type VARCHAR(20) NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
	CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at);

	CREATE TABLE IF NOT EXISTS order_items (
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT NOT NULL REFERENCES orders(id),
		menu_item_id BIGINT NOT NULL REFERENCES menu_items(id),
		name VARCHAR(100) NOT NULL,
		quantity INT NOT NULL,
		unit_price DECIMAL(10, 2) NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id);

	-- Outbox table for relaying order events to Kafka
	CREATE TABLE IF NOT EXISTS outbox_messages (
		id BIGSERIAL PRIMARY KEY,
		aggregate_type VARCHAR(50) NOT NULL,
		aggregate_id VARCHAR(50) NOT NULL,
		event_type VARCHAR(50) NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processed_at TIMESTAMPTZ,
		processing_attempts INT NOT NULL DEFAULT 0,
		last_error TEXT,
		status VARCHAR(20) NOT NULL DEFAULT 'pending'
	);

	CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox_messages(status);
	CREATE INDEX IF NOT EXISTS idx_outbox_aggregate ON outbox_messages(aggregate_type, aggregate_id);

	CREATE TABLE IF NOT EXISTS dead_letter_messages (
		id BIGSERIAL PRIMARY KEY,
		original_message_id BIGINT NOT NULL,
		aggregate_type VARCHAR(50) NOT NULL,
		aggregate_id VARCHAR(50) NOT NULL,
		event_type VARCHAR(50) NOT NULL,
		payload JSONB NOT NULL,
		error_message TEXT NOT NULL,
		failure_reason TEXT NOT NULL,
		retry_count INT NOT NULL DEFAULT 0,
		last_retry_at TIMESTAMPTZ,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		resolved_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_dead_letter_status ON dead_letter_messages(status);
	`

	_, err := d.DB.Exec(schema)

	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := d.seedMenu(); err != nil {
		return err
	}

	d.logger.Info("Database migrations completed successfully")
	return nil
}

// seedMenu inserts the starter menu when the table is empty
func (d *Database) seedMenu() error {
	var count int
	if err := d.DB.Get(&count, `SELECT COUNT(*) FROM menu_items`); err != nil {
		return fmt.Errorf("failed to count menu items: %w", err)
	}

	if count > 0 {
		return nil
	}

	_, err := d.DB.Exec(`
		INSERT INTO menu_items (name, category, price) VALUES
			('Burger', 'Main', 12.50),
			('Salad', 'Main', 8.00),
			('Fries', 'Side', 4.00),
			('Coke', 'Drink', 2.50)
	`)

	if err != nil {
		return fmt.Errorf("failed to seed menu items: %w", err)
	}

	d.logger.Info("Seeded starter menu")
	return nil
}
