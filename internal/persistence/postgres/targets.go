package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"example.com/salestrack/internal/domain"
	"example.com/salestrack/internal/observability"
	"example.com/salestrack/pkg/events"
)

const targetColumns = `id, user_id::text, year_month, target_acquisition, created_at, updated_at`

func scanTarget(row rowScanner) (domain.MonthlyTarget, error) {
	var (
		target domain.MonthlyTarget
		ym     string
	)
	if err := row.Scan(&target.ID, &target.UserID, &ym, &target.TargetAcquisition, &target.CreatedAt, &target.UpdatedAt); err != nil {
		return domain.MonthlyTarget{}, err
	}
	parsed, err := domain.ParseYearMonth(strings.TrimSpace(ym))
	if err != nil {
		return domain.MonthlyTarget{}, err
	}
	target.YearMonth = parsed
	return target, nil
}

// FindTarget implements domain.TargetRepository without writing.
func (r *Repository) FindTarget(ctx context.Context, userID string, ym domain.YearMonth) (*domain.MonthlyTarget, error) {
	query := `SELECT ` + targetColumns + ` FROM monthly_targets WHERE user_id=$1 AND year_month=$2`

	target, err := scanTarget(r.pool.QueryRow(ctx, query, userID, ym.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &target, nil
}

// GetOrCreateTarget inserts a zero target when none exists. Concurrent callers race on
// the (user_id, year_month) unique key, so exactly one row is ever created.
func (r *Repository) GetOrCreateTarget(ctx context.Context, userID string, ym domain.YearMonth) (domain.MonthlyTarget, error) {
	insert := `INSERT INTO monthly_targets (user_id, year_month, target_acquisition)
        VALUES ($1, $2, 0)
        ON CONFLICT (user_id, year_month) DO NOTHING
        RETURNING ` + targetColumns

	target, err := scanTarget(r.pool.QueryRow(ctx, insert, userID, ym.String()))
	switch {
	case err == nil:
		observability.TargetCreated()
		return target, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return domain.MonthlyTarget{}, err
	}

	existing, err := r.FindTarget(ctx, userID, ym)
	if err != nil {
		return domain.MonthlyTarget{}, err
	}
	if existing == nil {
		return domain.MonthlyTarget{}, pgx.ErrNoRows
	}
	return *existing, nil
}

// UpsertTarget sets the target value and queues a target.updated event.
func (r *Repository) UpsertTarget(ctx context.Context, userID string, ym domain.YearMonth, value int64) (domain.MonthlyTarget, error) {
	stmt := `INSERT INTO monthly_targets (user_id, year_month, target_acquisition)
        VALUES ($1, $2, $3)
        ON CONFLICT (user_id, year_month)
        DO UPDATE SET target_acquisition = EXCLUDED.target_acquisition, updated_at = NOW()
        RETURNING ` + targetColumns + `, (xmax = 0) AS inserted`

	var (
		target   domain.MonthlyTarget
		inserted bool
	)
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var stored string
		if err := tx.QueryRow(ctx, stmt, userID, ym.String(), value).Scan(
			&target.ID, &target.UserID, &stored, &target.TargetAcquisition, &target.CreatedAt, &target.UpdatedAt, &inserted,
		); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, outboxEvent{
			UserID:      userID,
			AggregateID: target.ID,
			EventType:   events.TypeTargetUpdated,
			OccurredAt:  target.UpdatedAt,
			Payload: events.TargetUpdated{
				TargetID:          target.ID,
				UserID:            userID,
				YearMonth:         ym.String(),
				TargetAcquisition: target.TargetAcquisition,
				OccurredAt:        target.UpdatedAt,
			},
		})
	})
	if err != nil {
		return domain.MonthlyTarget{}, err
	}
	target.YearMonth = ym
	if inserted {
		observability.TargetCreated()
	}
	return target, nil
}
