package postgres

import (
	"context"
	"time"

	"serialrent-backend/internal/domain"
	"serialrent-backend/internal/repository"
)

type scanLogRepository struct {
	db DBTX
}

func NewScanLogRepository(db DBTX) repository.ScanLogRepository {
	return &scanLogRepository{db: db}
}

func (r *scanLogRepository) Create(ctx context.Context, l *domain.ScanLog) error {
	query := `INSERT INTO scan_logs (id, serial_id, token, action, level, message, actor, line_item_id, previous_state, new_state, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, query, l.ID, l.SerialID, l.Token, l.Action, l.Level, l.Message, l.Actor, l.LineItemID,
		l.PreviousState, l.NewState, l.CreatedAt)
	return err
}

func (r *scanLogRepository) ListBySerial(ctx context.Context, serialID int32, limit int) ([]domain.ScanLog, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, serial_id, token, action, level, message, actor, line_item_id, previous_state, new_state, created_at
	          FROM scan_logs WHERE serial_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, serialID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.ScanLog
	for rows.Next() {
		var l domain.ScanLog
		if err := rows.Scan(&l.ID, &l.SerialID, &l.Token, &l.Action, &l.Level, &l.Message, &l.Actor, &l.LineItemID,
			&l.PreviousState, &l.NewState, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
