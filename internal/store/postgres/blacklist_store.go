package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// BlacklistStore implements domain.BlacklistStore using PostgreSQL. The
// table always mirrors the trader's full in-memory state.
type BlacklistStore struct {
	pool *pgxpool.Pool
}

// NewBlacklistStore creates a new BlacklistStore backed by the given pool.
func NewBlacklistStore(pool *pgxpool.Pool) *BlacklistStore {
	return &BlacklistStore{pool: pool}
}

const blacklistSelectCols = `symbol, base_asset, close, take_profit_count,
	stop_loss_count, profit_count, loss_count, entered_at`

// Save replaces the stored state with entries in a single transaction.
func (s *BlacklistStore) Save(ctx context.Context, entries []domain.BlacklistEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin blacklist save: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM blacklist`); err != nil {
		return fmt.Errorf("postgres: clear blacklist: %w", err)
	}

	if len(entries) > 0 {
		batch := &pgx.Batch{}
		const query = `
			INSERT INTO blacklist (
				symbol, base_asset, close, take_profit_count,
				stop_loss_count, profit_count, loss_count, entered_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (base_asset) DO UPDATE SET
				symbol = EXCLUDED.symbol,
				close = EXCLUDED.close,
				take_profit_count = EXCLUDED.take_profit_count,
				stop_loss_count = EXCLUDED.stop_loss_count,
				profit_count = EXCLUDED.profit_count,
				loss_count = EXCLUDED.loss_count,
				entered_at = EXCLUDED.entered_at`
		for _, e := range entries {
			batch.Queue(query,
				e.Symbol, e.BaseAsset, e.Close, e.TakeProfitCount,
				e.StopLossCount, e.ProfitCount, e.LossCount, e.EnteredAt,
			)
		}
		br := tx.SendBatch(ctx, batch)
		for i := range entries {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("postgres: insert blacklist item %d: %w", i, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("postgres: close blacklist batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit blacklist save: %w", err)
	}
	return nil
}

// Load returns entries entered at or after since, oldest first.
func (s *BlacklistStore) Load(ctx context.Context, since time.Time) ([]domain.BlacklistEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+blacklistSelectCols+` FROM blacklist WHERE entered_at >= $1 ORDER BY entered_at ASC`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: load blacklist: %w", err)
	}
	defer rows.Close()

	var entries []domain.BlacklistEntry
	for rows.Next() {
		var e domain.BlacklistEntry
		if err := rows.Scan(
			&e.Symbol, &e.BaseAsset, &e.Close, &e.TakeProfitCount,
			&e.StopLossCount, &e.ProfitCount, &e.LossCount, &e.EnteredAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan blacklist: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ domain.BlacklistStore = (*BlacklistStore)(nil)
