package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/shopspring/decimal"

	"serialrent-backend/internal/domain"
	"serialrent-backend/internal/logger"
	"serialrent-backend/internal/repository"
)

const dialectPostgres = "postgres"

var ErrBuildingQueryFailed = errors.New("building history query failed")

type historyRepository struct {
	db DBTX
}

func NewHistoryRepository(db DBTX) repository.HistoryRepository {
	return &historyRepository{db: db}
}

var historySelect = []any{
	goqu.I("h.id"), goqu.I("h.serial_id"), goqu.I("h.from_state"), goqu.I("h.to_state"), goqu.I("h.line_item_id"),
	goqu.I("h.actor"), goqu.I("h.note"), goqu.I("h.condition"), goqu.I("h.fee"), goqu.I("h.severity"), goqu.I("h.created_at"),
}

func scanHistory(row rowScanner, e *domain.StatusHistoryEntry) error {
	var fee decimal.NullDecimal
	if err := row.Scan(&e.ID, &e.SerialID, &e.FromState, &e.ToState, &e.LineItemID, &e.Actor, &e.Note, &e.Condition,
		&fee, &e.Severity, &e.CreatedAt); err != nil {
		return err
	}
	if fee.Valid {
		e.Fee = &fee.Decimal
	}
	return nil
}

// Append inserts an entry. There is no update or delete counterpart.
func (r *historyRepository) Append(ctx context.Context, e *domain.StatusHistoryEntry) error {
	logger.EnterMethod("historyRepository.Append", "serialID", e.SerialID, "from", e.FromState, "to", e.ToState)

	query := `INSERT INTO status_history (serial_id, from_state, to_state, line_item_id, actor, note, condition, fee, severity, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	var fee decimal.NullDecimal
	if e.Fee != nil {
		fee = decimal.NullDecimal{Decimal: *e.Fee, Valid: true}
	}
	err := r.db.QueryRowContext(ctx, query, e.SerialID, e.FromState, e.ToState, e.LineItemID, e.Actor, e.Note, e.Condition,
		fee, e.Severity, e.CreatedAt).Scan(&e.ID)
	if err != nil {
		logger.ExitMethodWithError("historyRepository.Append", err, "serialID", e.SerialID)
		return err
	}

	logger.ExitMethod("historyRepository.Append", "entryID", e.ID)
	return nil
}

func (r *historyRepository) ListBySerial(ctx context.Context, serialID int32) ([]domain.StatusHistoryEntry, error) {
	return r.Search(ctx, domain.HistoryFilter{SerialID: serialID})
}

func (r *historyRepository) CountBySerial(ctx context.Context, serialID int32) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM status_history WHERE serial_id = $1`, serialID).Scan(&n)
	return n, err
}

func (r *historyRepository) Search(ctx context.Context, f domain.HistoryFilter) ([]domain.StatusHistoryEntry, error) {
	query, args, err := buildHistoryQuery(f)
	if err != nil {
		return nil, err
	}

	logger.DatabaseCall("historyRepository.Search", query)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.DatabaseResult("historyRepository.Search", 0, err)
		return nil, err
	}
	defer rows.Close()

	var entries []domain.StatusHistoryEntry
	for rows.Next() {
		var e domain.StatusHistoryEntry
		if err := scanHistory(rows, &e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	logger.DatabaseResult("historyRepository.Search", int64(len(entries)), rows.Err())
	return entries, rows.Err()
}

func buildHistoryQuery(f domain.HistoryFilter) (string, []any, error) {
	ds := goqu.Dialect(dialectPostgres).
		From(goqu.T("status_history").As("h")).
		Select(historySelect...).
		Prepared(true)

	if f.SerialID != 0 {
		ds = ds.Where(goqu.I("h.serial_id").Eq(f.SerialID))
	}
	if f.EquipmentID != 0 {
		ds = ds.Join(goqu.T("serial_units").As("s"), goqu.On(goqu.I("s.id").Eq(goqu.I("h.serial_id")))).
			Where(goqu.I("s.equipment_id").Eq(f.EquipmentID))
	}
	if f.LineItemID != 0 {
		ds = ds.Where(goqu.I("h.line_item_id").Eq(f.LineItemID))
	}
	if f.ToState != "" {
		ds = ds.Where(goqu.I("h.to_state").Eq(string(f.ToState)))
	}
	if f.Actor != "" {
		ds = ds.Where(goqu.I("h.actor").Eq(f.Actor))
	}
	if f.From != nil {
		ds = ds.Where(goqu.I("h.created_at").Gte(*f.From))
	}
	if f.To != nil {
		ds = ds.Where(goqu.I("h.created_at").Lt(*f.To))
	}
	ds = ds.Order(goqu.I("h.id").Asc())
	if f.Limit > 0 {
		ds = ds.Limit(uint(f.Limit))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return "", nil, errors.Join(ErrBuildingQueryFailed, err)
	}
	return query, args, nil
}
