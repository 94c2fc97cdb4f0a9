package postgres

import (
	"context"
	"time"

	"github.com/lib/pq"

	"serialrent-backend/internal/domain"
	"serialrent-backend/internal/logger"
	"serialrent-backend/internal/repository"
)

type serialRepository struct {
	db DBTX
}

func NewSerialRepository(db DBTX) repository.SerialRepository {
	return &serialRepository{db: db}
}

const serialColumns = `id, code, equipment_id, state, current_line_item_id, notes, active, created_at, updated_at`

func scanSerial(row rowScanner, s *domain.SerialUnit) error {
	return row.Scan(&s.ID, &s.Code, &s.EquipmentID, &s.State, &s.CurrentLineItemID, &s.Notes, &s.Active, &s.CreatedAt, &s.UpdatedAt)
}

func (r *serialRepository) Create(ctx context.Context, s *domain.SerialUnit) error {
	logger.EnterMethod("serialRepository.Create", "code", s.Code, "equipmentID", s.EquipmentID)

	query := `INSERT INTO serial_units (code, equipment_id, state, notes, active, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	now := time.Now()
	s.CreatedAt, s.UpdatedAt = now, now
	err := r.db.QueryRowContext(ctx, query, s.Code, s.EquipmentID, s.State, s.Notes, s.Active, now, now).Scan(&s.ID)
	if err != nil {
		logger.ExitMethodWithError("serialRepository.Create", err, "code", s.Code)
		return err
	}

	logger.ExitMethod("serialRepository.Create", "serialID", s.ID)
	return nil
}

func (r *serialRepository) GetByID(ctx context.Context, id int32) (*domain.SerialUnit, error) {
	s := &domain.SerialUnit{}
	query := `SELECT ` + serialColumns + ` FROM serial_units WHERE id = $1`
	if err := scanSerial(r.db.QueryRowContext(ctx, query, id), s); err != nil {
		return nil, notFound(err, "serial", id)
	}
	return s, nil
}

func (r *serialRepository) GetByCode(ctx context.Context, code string) (*domain.SerialUnit, error) {
	s := &domain.SerialUnit{}
	query := `SELECT ` + serialColumns + ` FROM serial_units WHERE code = $1`
	if err := scanSerial(r.db.QueryRowContext(ctx, query, code), s); err != nil {
		return nil, notFoundByKey(err, "serial", code)
	}
	return s, nil
}

func (r *serialRepository) ListByEquipment(ctx context.Context, equipmentID int32) ([]domain.SerialUnit, error) {
	query := `SELECT ` + serialColumns + ` FROM serial_units WHERE equipment_id = $1 ORDER BY code`
	return r.list(ctx, query, equipmentID)
}

func (r *serialRepository) LockByEquipment(ctx context.Context, equipmentID int32) ([]domain.SerialUnit, error) {
	logger.EnterMethod("serialRepository.LockByEquipment", "equipmentID", equipmentID)

	query := `SELECT ` + serialColumns + ` FROM serial_units WHERE equipment_id = $1 ORDER BY code FOR UPDATE`
	serials, err := r.list(ctx, query, equipmentID)
	if err != nil {
		logger.ExitMethodWithError("serialRepository.LockByEquipment", err, "equipmentID", equipmentID)
		return nil, err
	}

	logger.ExitMethod("serialRepository.LockByEquipment", "equipmentID", equipmentID, "locked", len(serials))
	return serials, nil
}

func (r *serialRepository) LockByIDs(ctx context.Context, ids []int32) ([]domain.SerialUnit, error) {
	query := `SELECT ` + serialColumns + ` FROM serial_units WHERE id = ANY($1) ORDER BY code FOR UPDATE`
	return r.list(ctx, query, pq.Array(ids))
}

func (r *serialRepository) list(ctx context.Context, query string, args ...any) ([]domain.SerialUnit, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var serials []domain.SerialUnit
	for rows.Next() {
		var s domain.SerialUnit
		if err := scanSerial(rows, &s); err != nil {
			return nil, err
		}
		serials = append(serials, s)
	}
	return serials, rows.Err()
}

func (r *serialRepository) Update(ctx context.Context, s *domain.SerialUnit) error {
	query := `UPDATE serial_units SET state=$1, current_line_item_id=$2, notes=$3, active=$4, updated_at=$5 WHERE id=$6`
	s.UpdatedAt = time.Now()
	res, err := r.db.ExecContext(ctx, query, s.State, s.CurrentLineItemID, s.Notes, s.Active, s.UpdatedAt, s.ID)
	if err != nil {
		return err
	}
	return checkAffected(res, "serial", s.ID)
}

func (r *serialRepository) Delete(ctx context.Context, id int32) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM serial_units WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkAffected(res, "serial", id)
}

func (r *serialRepository) ExistingCodes(ctx context.Context, codes []string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT code FROM serial_units WHERE code = ANY($1)`, pq.Array(codes))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var existing []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		existing = append(existing, code)
	}
	return existing, rows.Err()
}

func (r *serialRepository) CountAvailableByEquipment(ctx context.Context) (map[int32]int, error) {
	query := `SELECT e.id, COUNT(s.id) FILTER (WHERE s.state = $1 AND s.active)
	          FROM equipment e LEFT JOIN serial_units s ON s.equipment_id = e.id
	          WHERE e.active AND e.tracks_serials
	          GROUP BY e.id`
	rows, err := r.db.QueryContext(ctx, query, domain.SerialStateAvailable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int32]int)
	for rows.Next() {
		var id int32
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
