package query

import (
	"context"
	"database/sql"
	"fmt"

	"ContractLedger/internal/core"
	"ContractLedger/internal/ledger"
	"ContractLedger/internal/register"
)

// Service provides read-only access to settlement state. Live balances,
// positions, and prices come from the core's in-memory state; history
// queries read the Postgres projection tables. All responses carry
// as_of_sequence for freshness semantics.
type Service struct {
	core *core.SettlementCore
	db   *sql.DB
}

func NewService(c *core.SettlementCore, db *sql.DB) *Service {
	return &Service{core: c, db: db}
}

// GetBalance returns an address's balance across all categories for one
// collateral property.
func (qs *Service) GetBalance(address string, propertyID uint32) *BalanceResponse {
	spendable := qs.core.GetBalance(address, propertyID, ledger.Spendable)
	open := qs.core.GetBalance(address, propertyID, ledger.OpenContract)
	reserve := qs.core.GetBalance(address, propertyID, ledger.MarginReserve)
	fees := qs.core.GetBalance(address, propertyID, ledger.FeeCache)

	return &BalanceResponse{
		Address:       address,
		PropertyID:    propertyID,
		Spendable:     spendable,
		OpenContract:  open,
		MarginReserve: reserve,
		FeeCache:      fees,
		Total:         spendable + open + reserve + fees,
		AsOfSequence:  qs.core.GetSequence(),
	}
}

// GetPosition returns an address's register state on a contract.
func (qs *Service) GetPosition(address string, contractID uint32) *PositionResponse {
	return &PositionResponse{
		Address:          address,
		ContractID:       contractID,
		Position:         qs.core.GetRecord(address, contractID, register.Position),
		EntryPrice:       qs.core.GetRecord(address, contractID, register.EntryPrice),
		BankruptcyPrice:  qs.core.GetRecord(address, contractID, register.BankruptcyPrice),
		LiquidationPrice: qs.core.GetRecord(address, contractID, register.LiquidationPrice),
		Margin:           qs.core.GetRecord(address, contractID, register.Margin),
		Leverage:         qs.core.GetRecord(address, contractID, register.Leverage),
		UPNL:             qs.core.GetRecord(address, contractID, register.UPNL),
		AsOfSequence:     qs.core.GetSequence(),
	}
}

// GetBook returns top-of-book for a contract.
func (qs *Service) GetBook(contractID uint32) *BookResponse {
	return &BookResponse{
		ContractID:   contractID,
		BestBid:      qs.core.BestBid(contractID),
		BestAsk:      qs.core.BestAsk(contractID),
		AsOfSequence: qs.core.GetSequence(),
	}
}

// GetPrices returns VWAP and TWAP for a contract over a block window.
func (qs *Service) GetPrices(contractID, propertyID uint32, block, window int64) (*PriceResponse, error) {
	vwap, err := qs.core.VWAP(contractID, propertyID, block, window)
	if err != nil {
		return nil, fmt.Errorf("vwap: %w", err)
	}
	twap, err := qs.core.TWAP(contractID, block, window)
	if err != nil {
		return nil, fmt.Errorf("twap: %w", err)
	}
	return &PriceResponse{
		ContractID:   contractID,
		Block:        block,
		Window:       window,
		VWAP:         vwap,
		TWAP:         twap,
		AsOfSequence: qs.core.GetSequence(),
	}, nil
}

// GetTransitionHistory returns position transition history for an address,
// newest first, with cursor-based pagination on sequence.
func (qs *Service) GetTransitionHistory(
	ctx context.Context,
	address string,
	limit int,
	beforeSequence *int64,
) ([]TransitionResponse, error) {
	query := `
		SELECT sequence, address, contract_id, transition, amount, price, fee, block
		FROM projections.position_transitions
		WHERE address = $1
	`
	args := []interface{}{address}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []TransitionResponse
	for rows.Next() {
		var h TransitionResponse
		var contractID int64
		if err := rows.Scan(
			&h.Sequence, &h.Address, &contractID, &h.Transition,
			&h.Amount, &h.Price, &h.Fee, &h.Block,
		); err != nil {
			return nil, err
		}
		h.ContractID = uint32(contractID)
		history = append(history, h)
	}
	return history, rows.Err()
}

// GetContractStats returns aggregate execution stats for a contract.
func (qs *Service) GetContractStats(ctx context.Context, contractID uint32) (*ContractStatsResponse, error) {
	var s ContractStatsResponse
	var cid int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT contract_id, last_price, last_block, executed_amount, executions, last_sequence
		FROM projections.contract_stats
		WHERE contract_id = $1
	`, int64(contractID)).Scan(&cid, &s.LastPrice, &s.LastBlock, &s.ExecutedAmount, &s.Executions, &s.LastSequence)
	if err == sql.ErrNoRows {
		return &ContractStatsResponse{ContractID: contractID}, nil
	}
	if err != nil {
		return nil, err
	}
	s.ContractID = uint32(cid)
	return &s, nil
}

// VerifyIntegrity checks hash chain continuity over the persisted execution
// log.
func (qs *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM cledger.executions e1
		JOIN cledger.executions e2 ON e2.sequence = (
			SELECT MAX(sequence) FROM cledger.executions WHERE sequence < e1.sequence
		)
		WHERE e1.prev_hash != e2.state_hash
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var latest sql.NullInt64
	if err := qs.db.QueryRowContext(ctx,
		`SELECT MAX(sequence) FROM cledger.executions`,
	).Scan(&latest); err != nil {
		return nil, err
	}
	if latest.Valid {
		report.LatestSequence = latest.Int64
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0
	return report, nil
}
