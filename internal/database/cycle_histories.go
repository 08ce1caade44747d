package database

import (
	"fmt"
	"time"

	"github.com/jaehoon-lee/infinite-buying-bot/internal/models"
)

// CreateCycleHistory appends a completed cycle record
func (db *DB) CreateCycleHistory(h *models.CycleHistory) error {
	query := `
		INSERT INTO cycle_histories (
			symbol, cycle_number, start_investment, end_proceeds, profit,
			profit_rate, total_trades, started_at, ended_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		RETURNING id
	`
	err := db.conn.QueryRow(query,
		h.Symbol, h.CycleNumber, h.StartInvestment, h.EndProceeds, h.Profit,
		h.ProfitRate, h.TotalTrades, h.StartedAt, h.EndedAt,
	).Scan(&h.ID)

	if err != nil {
		return fmt.Errorf("failed to create cycle history: %w", err)
	}
	return nil
}

// CloseCycle records the completed cycle and writes back the rolled-over
// position in one transaction. A crash between the two writes cannot leave a
// history row without the matching reset, and the unique (symbol,
// cycle_number) constraint makes a replayed close fail instead of inserting
// the same cycle twice.
func (db *DB) CloseCycle(h *models.CycleHistory, p *models.Position) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertQuery := `
		INSERT INTO cycle_histories (
			symbol, cycle_number, start_investment, end_proceeds, profit,
			profit_rate, total_trades, started_at, ended_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		RETURNING id
	`
	err = tx.QueryRow(insertQuery,
		h.Symbol, h.CycleNumber, h.StartInvestment, h.EndProceeds, h.Profit,
		h.ProfitRate, h.TotalTrades, h.StartedAt, h.EndedAt,
	).Scan(&h.ID)
	if err != nil {
		return fmt.Errorf("failed to create cycle history: %w", err)
	}

	updateQuery := `
		UPDATE positions
		SET symbol_name = $1, quantity = $2, avg_price = $3, splits_used = $4,
		    cycle_number = $5, current_investment = $6, updated_at = $7
		WHERE id = $8
	`
	now := time.Now()
	result, err := tx.Exec(updateQuery,
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

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cycle close: %w", err)
	}
	p.UpdatedAt = now
	return nil
}

// GetCycleHistories retrieves completed cycles for a symbol, most recent first
func (db *DB) GetCycleHistories(symbol string, limit int) ([]*models.CycleHistory, error) {
	query := `
		SELECT id, symbol, cycle_number, start_investment, end_proceeds, profit,
		       profit_rate, total_trades, started_at, ended_at
		FROM cycle_histories
		WHERE symbol = $1
		ORDER BY cycle_number DESC
		LIMIT $2
	`
	rows, err := db.conn.Query(query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle histories: %w", err)
	}
	defer rows.Close()

	var histories []*models.CycleHistory
	for rows.Next() {
		var h models.CycleHistory
		err := rows.Scan(
			&h.ID, &h.Symbol, &h.CycleNumber, &h.StartInvestment, &h.EndProceeds, &h.Profit,
			&h.ProfitRate, &h.TotalTrades, &h.StartedAt, &h.EndedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cycle history: %w", err)
		}
		histories = append(histories, &h)
	}
	return histories, rows.Err()
}
