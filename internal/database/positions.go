package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jaehoon-lee/infinite-buying-bot/internal/models"
)

// CreatePosition inserts a new position row
func (db *DB) CreatePosition(p *models.Position) error {
	query := `
		INSERT INTO positions (
			symbol, symbol_name, quantity, avg_price, splits_used,
			cycle_number, current_investment, initial_investment, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		RETURNING id
	`
	now := time.Now()

	err := db.conn.QueryRow(query,
		p.Symbol, p.SymbolName, p.Quantity, p.AvgPrice, p.SplitsUsed,
		p.CycleNumber, p.CurrentInvestment, p.InitialInvestment, now, now,
	).Scan(&p.ID)

	if err != nil {
		return fmt.Errorf("failed to create position: %w", err)
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// GetPositionBySymbol retrieves the position for a symbol, or nil when no
// position exists yet
func (db *DB) GetPositionBySymbol(symbol string) (*models.Position, error) {
	query := `
		SELECT id, symbol, symbol_name, quantity, avg_price, splits_used,
		       cycle_number, current_investment, initial_investment, created_at, updated_at
		FROM positions
		WHERE symbol = $1
	`
	p, err := scanPosition(db.conn.QueryRow(query, symbol))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position for %s: %w", symbol, err)
	}
	return p, nil
}

// GetAllPositions retrieves every position ordered by symbol
func (db *DB) GetAllPositions() ([]*models.Position, error) {
	query := `
		SELECT id, symbol, symbol_name, quantity, avg_price, splits_used,
		       cycle_number, current_investment, initial_investment, created_at, updated_at
		FROM positions
		ORDER BY symbol
	`
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// UpdatePosition writes back all mutable fields of a position
func (db *DB) UpdatePosition(p *models.Position) error {
	query := `
		UPDATE positions
		SET symbol_name = $1, quantity = $2, avg_price = $3, splits_used = $4,
		    cycle_number = $5, current_investment = $6, updated_at = $7
		WHERE id = $8
	`
	now := time.Now()

	result, err := db.conn.Exec(query,
		p.SymbolName, p.Quantity, p.AvgPrice, p.SplitsUsed,
		p.CycleNumber, p.CurrentInvestment, now, p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update position: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("position with id %d not found", p.ID)
	}
	p.UpdatedAt = now
	return nil
}

// CreateOrGetPosition returns the existing position for a symbol or creates
// a fresh one at cycle 1 with the given capital
func (db *DB) CreateOrGetPosition(symbol, symbolName string, initialInvestment decimal.Decimal) (*models.Position, error) {
	existing, err := db.GetPositionBySymbol(symbol)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	p := &models.Position{
		Symbol:            symbol,
		SymbolName:        symbolName,
		Quantity:          0,
		AvgPrice:          nil,
		SplitsUsed:        0,
		CycleNumber:       1,
		CurrentInvestment: initialInvestment,
		InitialInvestment: initialInvestment,
	}
	if err := db.CreatePosition(p); err != nil {
		return nil, err
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner) (*models.Position, error) {
	var p models.Position
	var avgPrice sql.NullString

	err := row.Scan(
		&p.ID, &p.Symbol, &p.SymbolName, &p.Quantity, &avgPrice, &p.SplitsUsed,
		&p.CycleNumber, &p.CurrentInvestment, &p.InitialInvestment, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if avgPrice.Valid {
		d, err := decimal.NewFromString(avgPrice.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse avg_price: %w", err)
		}
		p.AvgPrice = &d
	}
	return &p, nil
}
