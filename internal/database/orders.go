package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jaehoon-lee/infinite-buying-bot/internal/models"
)

// CreateOrder appends a new order record
func (db *DB) CreateOrder(o *models.Order) error {
	query := `
		INSERT INTO orders (
			symbol, side, price, quantity, filled_quantity, filled_price,
			status, cycle_number, tranche_index, broker_order_id, created_at, filled_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
		RETURNING id
	`
	now := time.Now()
	if o.Status == "" {
		o.Status = models.OrderStatusPending
	}

	err := db.conn.QueryRow(query,
		o.Symbol, o.Side, o.Price, o.Quantity, o.FilledQuantity, o.FilledPrice,
		o.Status, o.CycleNumber, o.TrancheIndex, o.BrokerOrderID, now, o.FilledAt,
	).Scan(&o.ID)

	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	o.CreatedAt = now
	return nil
}

// GetOrderByID retrieves an order by ID
func (db *DB) GetOrderByID(id int) (*models.Order, error) {
	query := `
		SELECT id, symbol, side, price, quantity, filled_quantity, filled_price,
		       status, cycle_number, tranche_index, broker_order_id, created_at, filled_at
		FROM orders
		WHERE id = $1
	`
	o, err := scanOrder(db.conn.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order with id %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

// GetOrdersBySymbol retrieves the most recent orders for a symbol
func (db *DB) GetOrdersBySymbol(symbol string, limit int) ([]*models.Order, error) {
	query := `
		SELECT id, symbol, side, price, quantity, filled_quantity, filled_price,
		       status, cycle_number, tranche_index, broker_order_id, created_at, filled_at
		FROM orders
		WHERE symbol = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	return db.queryOrders(query, symbol, limit)
}

// GetPendingOrders retrieves unconfirmed orders for a symbol and side,
// oldest first
func (db *DB) GetPendingOrders(symbol, side string) ([]*models.Order, error) {
	query := `
		SELECT id, symbol, side, price, quantity, filled_quantity, filled_price,
		       status, cycle_number, tranche_index, broker_order_id, created_at, filled_at
		FROM orders
		WHERE symbol = $1 AND side = $2 AND status = $3
		ORDER BY created_at ASC, id ASC
	`
	return db.queryOrders(query, symbol, side, models.OrderStatusPending)
}

// UpdateOrderFill records broker-confirmed fill data for an order
func (db *DB) UpdateOrderFill(o *models.Order) error {
	query := `
		UPDATE orders
		SET filled_quantity = $1, filled_price = $2, status = $3, filled_at = $4
		WHERE id = $5
	`
	result, err := db.conn.Exec(query, o.FilledQuantity, o.FilledPrice, o.Status, o.FilledAt, o.ID)
	if err != nil {
		return fmt.Errorf("failed to update order fill: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("order with id %d not found", o.ID)
	}
	return nil
}

// UpdateOrderStatus changes only the status of an order
func (db *DB) UpdateOrderStatus(id int, status string) error {
	result, err := db.conn.Exec(`UPDATE orders SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("order with id %d not found", id)
	}
	return nil
}

func (db *DB) queryOrders(query string, args ...interface{}) ([]*models.Order, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var filledPrice sql.NullString
	var brokerOrderID sql.NullString
	var filledAt sql.NullTime

	err := row.Scan(
		&o.ID, &o.Symbol, &o.Side, &o.Price, &o.Quantity, &o.FilledQuantity, &filledPrice,
		&o.Status, &o.CycleNumber, &o.TrancheIndex, &brokerOrderID, &o.CreatedAt, &filledAt,
	)
	if err != nil {
		return nil, err
	}

	if filledPrice.Valid {
		d, err := decimal.NewFromString(filledPrice.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse filled_price: %w", err)
		}
		o.FilledPrice = &d
	}
	if brokerOrderID.Valid {
		o.BrokerOrderID = brokerOrderID.String
	}
	if filledAt.Valid {
		o.FilledAt = &filledAt.Time
	}
	return &o, nil
}
