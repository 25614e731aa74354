package database

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/victoralfred/credit_sim/internal/domain/credit"
)

// PortfolioRepository reads CDS portfolio composition from PostgreSQL
type PortfolioRepository struct {
	db *pgxpool.Pool
}

// NewPortfolioRepository creates a new portfolio repository
func NewPortfolioRepository(db *pgxpool.Pool) *PortfolioRepository {
	return &PortfolioRepository{db: db}
}

// ActiveConstituents lists the active trades of a portfolio ordered by constituent ID
func (r *PortfolioRepository) ActiveConstituents(ctx context.Context, portfolioID int64) ([]credit.Constituent, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM cds_portfolios WHERE id = $1)`, portfolioID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to look up portfolio %d: %w", portfolioID, err)
	}
	if !exists {
		return nil, credit.NewRiskError(credit.ErrPortfolioNotFound,
			fmt.Sprintf("portfolio %d not found", portfolioID), "active_constituents").
			WithDetails("portfolio_id", portfolioID)
	}

	query := `
		SELECT t.reference_entity, COALESCE(t.sector, ''),
		       t.notional_amount::text, t.spread::text, t.recovery_rate::text
		FROM cds_portfolio_constituents c
		JOIN cds_trades t ON t.id = c.trade_id
		WHERE c.portfolio_id = $1 AND c.active
		ORDER BY c.id
	`

	rows, err := r.db.Query(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query constituents: %w", err)
	}
	defer rows.Close()

	var constituents []credit.Constituent
	for rows.Next() {
		var (
			c                credit.Constituent
			notional, spread string
			recovery         *string
		)
		if err := rows.Scan(&c.ReferenceEntity, &c.Sector, &notional, &spread, &recovery); err != nil {
			return nil, fmt.Errorf("failed to scan constituent: %w", err)
		}
		if c.Notional, err = decimal.NewFromString(notional); err != nil {
			return nil, fmt.Errorf("invalid notional %q for %s: %w", notional, c.ReferenceEntity, err)
		}
		if c.SpreadBps, err = decimal.NewFromString(spread); err != nil {
			return nil, fmt.Errorf("invalid spread %q for %s: %w", spread, c.ReferenceEntity, err)
		}
		if recovery != nil {
			rr, err := strconv.ParseFloat(*recovery, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid recovery %q for %s: %w", *recovery, c.ReferenceEntity, err)
			}
			c.Recovery = &rr
		}
		constituents = append(constituents, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating constituents: %w", err)
	}

	return constituents, nil
}

// CreatePortfolio inserts an empty portfolio and returns its ID
func (r *PortfolioRepository) CreatePortfolio(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO cds_portfolios (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create portfolio: %w", err)
	}
	return id, nil
}

// AddConstituent books a trade and attaches it to a portfolio as an active constituent
func (r *PortfolioRepository) AddConstituent(ctx context.Context, portfolioID int64, c credit.Constituent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var sector *string
	if c.Sector != "" {
		sector = &c.Sector
	}

	var tradeID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO cds_trades (reference_entity, sector, notional_amount, spread, recovery_rate)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5)
		RETURNING id
	`, c.ReferenceEntity, sector, c.Notional.String(), c.SpreadBps.String(), c.Recovery).Scan(&tradeID)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO cds_portfolio_constituents (portfolio_id, trade_id) VALUES ($1, $2)`,
		portfolioID, tradeID)
	if err != nil {
		return fmt.Errorf("failed to insert constituent: %w", err)
	}

	return tx.Commit(ctx)
}

// Deactivate marks every constituent of a portfolio referencing entity as inactive
func (r *PortfolioRepository) Deactivate(ctx context.Context, portfolioID int64, entity string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE cds_portfolio_constituents c SET active = FALSE
		FROM cds_trades t
		WHERE t.id = c.trade_id AND c.portfolio_id = $1 AND t.reference_entity = $2
	`, portfolioID, entity)
	if err != nil {
		return fmt.Errorf("failed to deactivate %s: %w", entity, err)
	}
	return nil
}
