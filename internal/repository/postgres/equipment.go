package postgres

import (
	"context"
	"time"

	"serialrent-backend/internal/domain"
	"serialrent-backend/internal/repository"
)

type categoryRepository struct {
	db DBTX
}

func NewCategoryRepository(db DBTX) repository.CategoryRepository {
	return &categoryRepository{db: db}
}

func (r *categoryRepository) Create(ctx context.Context, c *domain.Category) error {
	query := `INSERT INTO equipment_categories (name, parent_id, created_at) VALUES ($1, $2, $3) RETURNING id, created_at`
	return r.db.QueryRowContext(ctx, query, c.Name, c.ParentID, time.Now()).Scan(&c.ID, &c.CreatedAt)
}

func (r *categoryRepository) GetByID(ctx context.Context, id int32) (*domain.Category, error) {
	c := &domain.Category{}
	query := `SELECT id, name, parent_id, created_at FROM equipment_categories WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Name, &c.ParentID, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err, "category", id)
	}
	return c, nil
}

func (r *categoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	query := `SELECT id, name, parent_id, created_at FROM equipment_categories ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.ParentID, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

type equipmentRepository struct {
	db DBTX
}

func NewEquipmentRepository(db DBTX) repository.EquipmentRepository {
	return &equipmentRepository{db: db}
}

const equipmentColumns = `id, code, name, description, category_id, daily_rate, weekly_rate, monthly_rate, item_value,
	tracks_serials, auto_generate_serials, active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEquipment(row rowScanner, e *domain.Equipment) error {
	return row.Scan(&e.ID, &e.Code, &e.Name, &e.Description, &e.CategoryID, &e.DailyRate, &e.WeeklyRate, &e.MonthlyRate,
		&e.ItemValue, &e.TracksSerials, &e.AutoGenerateSerials, &e.Active, &e.CreatedAt, &e.UpdatedAt)
}

func (r *equipmentRepository) Create(ctx context.Context, e *domain.Equipment) error {
	query := `INSERT INTO equipment (code, name, description, category_id, daily_rate, weekly_rate, monthly_rate, item_value,
	          tracks_serials, auto_generate_serials, active, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) RETURNING id`
	now := time.Now()
	e.CreatedAt, e.UpdatedAt = now, now
	return r.db.QueryRowContext(ctx, query, e.Code, e.Name, e.Description, e.CategoryID, e.DailyRate, e.WeeklyRate, e.MonthlyRate,
		e.ItemValue, e.TracksSerials, e.AutoGenerateSerials, e.Active, now, now).Scan(&e.ID)
}

func (r *equipmentRepository) GetByID(ctx context.Context, id int32) (*domain.Equipment, error) {
	e := &domain.Equipment{}
	query := `SELECT ` + equipmentColumns + ` FROM equipment WHERE id = $1`
	if err := scanEquipment(r.db.QueryRowContext(ctx, query, id), e); err != nil {
		return nil, notFound(err, "equipment", id)
	}
	return e, nil
}

func (r *equipmentRepository) GetByCode(ctx context.Context, code string) (*domain.Equipment, error) {
	e := &domain.Equipment{}
	query := `SELECT ` + equipmentColumns + ` FROM equipment WHERE code = $1`
	if err := scanEquipment(r.db.QueryRowContext(ctx, query, code), e); err != nil {
		return nil, notFoundByKey(err, "equipment", code)
	}
	return e, nil
}

func (r *equipmentRepository) Update(ctx context.Context, e *domain.Equipment) error {
	query := `UPDATE equipment SET name=$1, description=$2, category_id=$3, daily_rate=$4, weekly_rate=$5, monthly_rate=$6,
	          item_value=$7, auto_generate_serials=$8, active=$9, updated_at=$10 WHERE id=$11`
	e.UpdatedAt = time.Now()
	res, err := r.db.ExecContext(ctx, query, e.Name, e.Description, e.CategoryID, e.DailyRate, e.WeeklyRate, e.MonthlyRate,
		e.ItemValue, e.AutoGenerateSerials, e.Active, e.UpdatedAt, e.ID)
	if err != nil {
		return err
	}
	return checkAffected(res, "equipment", e.ID)
}

func (r *equipmentRepository) List(ctx context.Context, activeOnly bool) ([]domain.Equipment, error) {
	query := `SELECT ` + equipmentColumns + ` FROM equipment`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY code`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []domain.Equipment
	for rows.Next() {
		var e domain.Equipment
		if err := scanEquipment(rows, &e); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}
