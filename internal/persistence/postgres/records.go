package postgres

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/salestrack/internal/domain"
	"example.com/salestrack/internal/observability"
	"example.com/salestrack/pkg/events"
)

const recordColumns = `id, user_id::text, input_name, record_date, operation_date,
        call_count, catch_count, re_call_count, prospective_count,
        approach_ng_count, product_explanation_ng_count, acquisition_count,
        created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.ActivityRecord, error) {
	var rec domain.ActivityRecord
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.InputName, &rec.RecordDate, &rec.OperationDate,
		&rec.CallCount, &rec.CatchCount, &rec.ReCallCount, &rec.ProspectiveCount,
		&rec.ApproachNGCount, &rec.ProductExplanationNGCount, &rec.AcquisitionCount,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return domain.ActivityRecord{}, err
	}
	rec.RecordDate = domain.DateOf(rec.RecordDate, nil)
	rec.OperationDate = domain.DateOf(rec.OperationDate, nil)
	return rec, nil
}

func recordEvent(rec domain.ActivityRecord, occurredAt time.Time) events.RecordChanged {
	return events.RecordChanged{
		RecordID:                  rec.ID,
		UserID:                    rec.UserID,
		InputName:                 rec.InputName,
		RecordDate:                rec.RecordDate.Format(time.DateOnly),
		OperationDate:             rec.OperationDate.Format(time.DateOnly),
		CallCount:                 rec.CallCount,
		CatchCount:                rec.CatchCount,
		ReCallCount:               rec.ReCallCount,
		ProspectiveCount:          rec.ProspectiveCount,
		ApproachNGCount:           rec.ApproachNGCount,
		ProductExplanationNGCount: rec.ProductExplanationNGCount,
		AcquisitionCount:          rec.AcquisitionCount,
		OccurredAt:                occurredAt,
	}
}

// CreateRecord persists the record and queues a record.created event in one transaction.
func (r *Repository) CreateRecord(ctx context.Context, record domain.ActivityRecord) (domain.ActivityRecord, error) {
	if record.OperationDate.IsZero() {
		record.OperationDate = record.RecordDate
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = r.now().UTC()
		record.UpdatedAt = record.CreatedAt
	}

	const stmt = `INSERT INTO activity_records (user_id, input_name, record_date, operation_date,
        call_count, catch_count, re_call_count, prospective_count,
        approach_ng_count, product_explanation_ng_count, acquisition_count, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING id`

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, stmt,
			record.UserID, record.InputName, record.RecordDate, record.OperationDate,
			record.CallCount, record.CatchCount, record.ReCallCount, record.ProspectiveCount,
			record.ApproachNGCount, record.ProductExplanationNGCount, record.AcquisitionCount,
			record.CreatedAt, record.UpdatedAt,
		).Scan(&record.ID); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, outboxEvent{
			UserID:      record.UserID,
			AggregateID: record.ID,
			EventType:   events.TypeRecordCreated,
			OccurredAt:  record.CreatedAt,
			Payload:     recordEvent(record, record.CreatedAt),
		})
	})
	if err != nil {
		return domain.ActivityRecord{}, err
	}
	observability.RecordPersisted(record.UpdatedAt)
	return record, nil
}

// GetRecord implements domain.RecordRepository.
func (r *Repository) GetRecord(ctx context.Context, userID string, id int64) (*domain.ActivityRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM activity_records WHERE user_id=$1 AND id=$2`

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, userID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRecords returns the user's records ordered by record date then id, newest first.
func (r *Repository) ListRecords(ctx context.Context, userID string, filter domain.RecordFilter) ([]domain.ActivityRecord, *domain.Cursor, error) {
	args := []any{userID, filter.Limit}
	query := `SELECT ` + recordColumns + ` FROM activity_records WHERE user_id=$1`

	if filter.Date != nil {
		args = append(args, *filter.Date)
		query += ` AND record_date = $3`
	}
	if c := filter.Cursor; c != nil {
		n := len(args)
		args = append(args, c.RecordDate, c.ID)
		query += ` AND (record_date, id) < ($` + strconv.Itoa(n+1) + `, $` + strconv.Itoa(n+2) + `)`
	}
	query += ` ORDER BY record_date DESC, id DESC LIMIT $2`

	results, err := r.queryRecords(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if filter.Limit > 0 && len(results) == filter.Limit {
		last := results[len(results)-1]
		next = &domain.Cursor{RecordDate: last.RecordDate, ID: last.ID}
	}
	return results, next, nil
}

// UpdateRecord rewrites the record and queues a record.updated event.
func (r *Repository) UpdateRecord(ctx context.Context, record domain.ActivityRecord) error {
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = r.now().UTC()
	}

	const stmt = `UPDATE activity_records SET record_date=$3, operation_date=$4,
        call_count=$5, catch_count=$6, re_call_count=$7, prospective_count=$8,
        approach_ng_count=$9, product_explanation_ng_count=$10, acquisition_count=$11, updated_at=$12
        WHERE id=$1 AND user_id=$2`

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, stmt,
			record.ID, record.UserID, record.RecordDate, record.OperationDate,
			record.CallCount, record.CatchCount, record.ReCallCount, record.ProspectiveCount,
			record.ApproachNGCount, record.ProductExplanationNGCount, record.AcquisitionCount,
			record.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrRecordNotFound
		}
		return insertOutbox(ctx, tx, outboxEvent{
			UserID:      record.UserID,
			AggregateID: record.ID,
			EventType:   events.TypeRecordUpdated,
			OccurredAt:  record.UpdatedAt,
			Payload:     recordEvent(record, record.UpdatedAt),
		})
	})
	if err != nil {
		return err
	}
	observability.RecordPersisted(record.UpdatedAt)
	return nil
}

// SumCounters implements domain.RecordRepository.
func (r *Repository) SumCounters(ctx context.Context, userID string, from, to time.Time) (domain.Counters, error) {
	const query = `SELECT
        COALESCE(SUM(call_count), 0),
        COALESCE(SUM(catch_count), 0),
        COALESCE(SUM(re_call_count), 0),
        COALESCE(SUM(prospective_count), 0),
        COALESCE(SUM(approach_ng_count), 0),
        COALESCE(SUM(product_explanation_ng_count), 0),
        COALESCE(SUM(acquisition_count), 0)
        FROM activity_records
        WHERE user_id=$1 AND record_date >= $2 AND record_date < $3`

	var c domain.Counters
	err := r.pool.QueryRow(ctx, query, userID, from, to).Scan(
		&c.CallCount, &c.CatchCount, &c.ReCallCount, &c.ProspectiveCount,
		&c.ApproachNGCount, &c.ProductExplanationNGCount, &c.AcquisitionCount,
	)
	return c, err
}

// RecordsBetween implements domain.RecordRepository.
func (r *Repository) RecordsBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.ActivityRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM activity_records
        WHERE user_id=$1 AND record_date >= $2 AND record_date < $3
        ORDER BY record_date, id`
	return r.queryRecords(ctx, query, userID, from, to)
}

func (r *Repository) queryRecords(ctx context.Context, query string, args ...any) ([]domain.ActivityRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.ActivityRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}
