// internal/repository/capture_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"comm-debugger/internal/database"
	"comm-debugger/internal/model"
)

// captureRepository implements CaptureRepository on Postgres
type captureRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewCaptureRepository creates a new capture repository
func NewCaptureRepository(db *database.DB, logger *zap.Logger) CaptureRepository {
	return &captureRepository{
		db:     db,
		logger: logger.With(zap.String("component", "capture_repository")),
	}
}

// Save stores one record
func (r *captureRepository) Save(ctx context.Context, record *model.CaptureRecord) error {
	query := `
		INSERT INTO captures (
			id, channel_id, kind, event_type, direction, peer,
			payload, severity, code, description, captured_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.ChannelID, record.Kind, record.Type,
		nullString(string(record.Direction)), nullString(record.Peer),
		record.Payload, nullString(string(record.Severity)),
		nullString(record.Code), nullString(record.Description),
		record.CapturedAt,
	)
	if err != nil {
		r.logFailure("Failed to save capture", err)
		return fmt.Errorf("failed to save capture: %w", err)
	}

	return nil
}

// SaveBatch stores records in one transaction using COPY
func (r *captureRepository) SaveBatch(ctx context.Context, records []*model.CaptureRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("captures",
		"id", "channel_id", "kind", "event_type", "direction", "peer",
		"payload", "severity", "code", "description", "captured_at",
	))
	if err != nil {
		r.logFailure("Failed to prepare capture copy", err)
		return fmt.Errorf("failed to prepare copy: %w", err)
	}

	for _, record := range records {
		_, err := stmt.ExecContext(ctx,
			record.ID, record.ChannelID, string(record.Kind), string(record.Type),
			nullString(string(record.Direction)), nullString(record.Peer),
			record.Payload, nullString(string(record.Severity)),
			nullString(record.Code), nullString(record.Description),
			record.CapturedAt,
		)
		if err != nil {
			stmt.Close()
			r.logFailure("Failed to copy capture", err)
			return fmt.Errorf("failed to copy capture %s: %w", record.ID, err)
		}
	}

	// flush the COPY buffer
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		r.logFailure("Failed to flush capture copy", err)
		return fmt.Errorf("failed to flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close copy statement: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit captures: %w", err)
	}

	r.logger.Debug("Saved capture batch", zap.Int("count", len(records)))
	return nil
}

// List retrieves captures newest first
func (r *captureRepository) List(ctx context.Context, filter *CaptureFilter) ([]*model.CaptureRecord, error) {
	query, args := buildListQuery(filter)

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logFailure("Failed to list captures", err)
		return nil, fmt.Errorf("failed to list captures: %w", err)
	}
	defer rows.Close()

	var records []*model.CaptureRecord
	for rows.Next() {
		record, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate captures: %w", err)
	}

	r.logger.Debug("Listed captures",
		zap.Int("count", len(records)),
		zap.Duration("duration", time.Since(start)),
	)

	return records, nil
}

// Count returns the number of stored captures
func (r *captureRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM captures`).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count captures: %w", err)
	}
	return total, nil
}

// DeleteOlderThan removes old capture records
func (r *captureRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `DELETE FROM captures WHERE captured_at < $1`

	result, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old captures: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	r.logger.Info("Deleted old captures",
		zap.Int64("rows_deleted", rowsAffected),
		zap.Time("older_than", olderThan),
	)

	return rowsAffected, nil
}

func (r *captureRepository) logFailure(msg string, err error) {
	fields := []zap.Field{zap.Error(err)}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		fields = append(fields,
			zap.String("pg_code", string(pqErr.Code)),
			zap.String("pg_error", pqErr.Code.Name()),
		)
	}

	r.logger.Error(msg, fields...)
}

func buildListQuery(filter *CaptureFilter) (string, []interface{}) {
	whereConditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if filter != nil {
		if filter.ChannelID != nil {
			whereConditions = append(whereConditions, fmt.Sprintf("channel_id = $%d", argIndex))
			args = append(args, *filter.ChannelID)
			argIndex++
		}

		if filter.Kind != nil {
			whereConditions = append(whereConditions, fmt.Sprintf("kind = $%d", argIndex))
			args = append(args, string(*filter.Kind))
			argIndex++
		}

		if filter.Type != nil {
			whereConditions = append(whereConditions, fmt.Sprintf("event_type = $%d", argIndex))
			args = append(args, string(*filter.Type))
			argIndex++
		}

		if filter.Since != nil {
			whereConditions = append(whereConditions, fmt.Sprintf("captured_at >= $%d", argIndex))
			args = append(args, *filter.Since)
			argIndex++
		}
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = "WHERE " + strings.Join(whereConditions, " AND ") + " "
	}

	query := fmt.Sprintf(`SELECT id, channel_id, kind, event_type, direction, peer,
		payload, severity, code, description, captured_at
		FROM captures %sORDER BY captured_at DESC LIMIT $%d`, whereClause, argIndex)
	args = append(args, filter.EffectiveLimit())

	return query, args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCapture(row rowScanner) (*model.CaptureRecord, error) {
	var (
		record                                       model.CaptureRecord
		kind, eventType                              string
		direction, peer, severity, code, description sql.NullString
	)

	err := row.Scan(
		&record.ID, &record.ChannelID, &kind, &eventType,
		&direction, &peer, &record.Payload, &severity,
		&code, &description, &record.CapturedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan capture: %w", err)
	}

	record.Kind = model.TransportKind(kind)
	record.Type = model.EventType(eventType)
	record.Direction = model.Direction(direction.String)
	record.Peer = peer.String
	record.Severity = model.ErrorSeverity(severity.String)
	record.Code = code.String
	record.Description = description.String

	return &record, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
