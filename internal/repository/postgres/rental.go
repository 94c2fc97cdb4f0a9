package postgres

import (
	"context"
	"time"

	"github.com/lib/pq"

	"serialrent-backend/internal/domain"
	"serialrent-backend/internal/repository"
)

type rentalRepository struct {
	db DBTX
}

func NewRentalRepository(db DBTX) repository.RentalRepository {
	return &rentalRepository{db: db}
}

const projectColumns = `id, reference, customer_name, customer_email, start_date, end_date, discount, late_fee_enabled, notes, created_at, updated_at`

func scanProject(row rowScanner, p *domain.RentalProject) error {
	return row.Scan(&p.ID, &p.Reference, &p.CustomerName, &p.CustomerEmail, &p.StartDate, &p.EndDate, &p.Discount,
		&p.LateFeeEnabled, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
}

const itemColumns = `i.id, i.project_id, i.equipment_id, i.quantity, i.start_date, i.end_date, i.state, i.rental_amount,
	i.late_fee, i.damage_fee, i.discount, i.fees_computed, i.return_date, i.invoice_ref, i.created_at, i.updated_at,
	ARRAY(SELECT s.serial_id FROM line_item_serials s WHERE s.line_item_id = i.id ORDER BY s.serial_id)`

func scanItem(row rowScanner, it *domain.RentalLineItem) error {
	var serialIDs pq.Int32Array
	err := row.Scan(&it.ID, &it.ProjectID, &it.EquipmentID, &it.Quantity, &it.StartDate, &it.EndDate, &it.State, &it.RentalAmount,
		&it.LateFee, &it.DamageFee, &it.Discount, &it.FeesComputed, &it.ReturnDate, &it.InvoiceRef, &it.CreatedAt, &it.UpdatedAt, &serialIDs)
	if err != nil {
		return err
	}
	it.SerialIDs = []int32(serialIDs)
	return nil
}

func (r *rentalRepository) CreateProject(ctx context.Context, p *domain.RentalProject) error {
	query := `INSERT INTO rental_projects (reference, customer_name, customer_email, start_date, end_date, discount, late_fee_enabled, notes, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	return r.db.QueryRowContext(ctx, query, p.Reference, p.CustomerName, p.CustomerEmail, p.StartDate, p.EndDate, p.Discount,
		p.LateFeeEnabled, p.Notes, now, now).Scan(&p.ID)
}

func (r *rentalRepository) GetProject(ctx context.Context, id int32) (*domain.RentalProject, error) {
	p := &domain.RentalProject{}
	query := `SELECT ` + projectColumns + ` FROM rental_projects WHERE id = $1`
	if err := scanProject(r.db.QueryRowContext(ctx, query, id), p); err != nil {
		return nil, notFound(err, "project", id)
	}
	return p, nil
}

func (r *rentalRepository) ListProjects(ctx context.Context) ([]domain.RentalProject, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM rental_projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []domain.RentalProject
	for rows.Next() {
		var p domain.RentalProject
		if err := scanProject(rows, &p); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// DeleteProject removes the project; items and their allocations cascade.
func (r *rentalRepository) DeleteProject(ctx context.Context, id int32) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rental_projects WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkAffected(res, "project", id)
}

func (r *rentalRepository) CreateItem(ctx context.Context, it *domain.RentalLineItem) error {
	query := `INSERT INTO rental_line_items (project_id, equipment_id, quantity, start_date, end_date, state, rental_amount, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	now := time.Now()
	it.CreatedAt, it.UpdatedAt = now, now
	return r.db.QueryRowContext(ctx, query, it.ProjectID, it.EquipmentID, it.Quantity, it.StartDate, it.EndDate, it.State,
		it.RentalAmount, now, now).Scan(&it.ID)
}

func (r *rentalRepository) GetItem(ctx context.Context, id int32) (*domain.RentalLineItem, error) {
	it := &domain.RentalLineItem{}
	query := `SELECT ` + itemColumns + ` FROM rental_line_items i WHERE i.id = $1`
	if err := scanItem(r.db.QueryRowContext(ctx, query, id), it); err != nil {
		return nil, notFound(err, "line item", id)
	}
	return it, nil
}

func (r *rentalRepository) LockItem(ctx context.Context, id int32) (*domain.RentalLineItem, error) {
	it := &domain.RentalLineItem{}
	query := `SELECT ` + itemColumns + ` FROM rental_line_items i WHERE i.id = $1 FOR UPDATE OF i`
	if err := scanItem(r.db.QueryRowContext(ctx, query, id), it); err != nil {
		return nil, notFound(err, "line item", id)
	}
	return it, nil
}

func (r *rentalRepository) UpdateItem(ctx context.Context, it *domain.RentalLineItem) error {
	query := `UPDATE rental_line_items SET quantity=$1, start_date=$2, end_date=$3, state=$4, rental_amount=$5, late_fee=$6,
	          damage_fee=$7, discount=$8, fees_computed=$9, return_date=$10, invoice_ref=$11, updated_at=$12 WHERE id=$13`
	it.UpdatedAt = time.Now()
	res, err := r.db.ExecContext(ctx, query, it.Quantity, it.StartDate, it.EndDate, it.State, it.RentalAmount, it.LateFee,
		it.DamageFee, it.Discount, it.FeesComputed, it.ReturnDate, it.InvoiceRef, it.UpdatedAt, it.ID)
	if err != nil {
		return err
	}
	return checkAffected(res, "line item", it.ID)
}

func (r *rentalRepository) ListItemsByProject(ctx context.Context, projectID int32) ([]domain.RentalLineItem, error) {
	query := `SELECT ` + itemColumns + ` FROM rental_line_items i WHERE i.project_id = $1 ORDER BY i.id`
	return r.listItems(ctx, query, projectID)
}

// LockItemsByProject takes the item row locks that Allocate and Start also take, so
// callers see items in their committed state.
func (r *rentalRepository) LockItemsByProject(ctx context.Context, projectID int32) ([]domain.RentalLineItem, error) {
	query := `SELECT ` + itemColumns + ` FROM rental_line_items i WHERE i.project_id = $1 ORDER BY i.id FOR UPDATE OF i`
	return r.listItems(ctx, query, projectID)
}

func (r *rentalRepository) ListOverdue(ctx context.Context, asOf time.Time) ([]domain.RentalLineItem, error) {
	query := `SELECT ` + itemColumns + ` FROM rental_line_items i WHERE i.state = $1 AND i.end_date < $2 ORDER BY i.end_date, i.id`
	return r.listItems(ctx, query, domain.LineItemStateOngoing, domain.Day(asOf))
}

func (r *rentalRepository) ListDueBetween(ctx context.Context, from, to time.Time) ([]domain.RentalLineItem, error) {
	query := `SELECT ` + itemColumns + ` FROM rental_line_items i WHERE i.state = $1 AND i.end_date BETWEEN $2 AND $3 ORDER BY i.end_date, i.id`
	return r.listItems(ctx, query, domain.LineItemStateOngoing, domain.Day(from), domain.Day(to))
}

func (r *rentalRepository) listItems(ctx context.Context, query string, args ...any) ([]domain.RentalLineItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.RentalLineItem
	for rows.Next() {
		var it domain.RentalLineItem
		if err := scanItem(rows, &it); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// SetItemSerials replaces the item's allocation with serialIDs.
func (r *rentalRepository) SetItemSerials(ctx context.Context, itemID int32, serialIDs []int32) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM line_item_serials WHERE line_item_id = $1`, itemID); err != nil {
		return err
	}
	if len(serialIDs) == 0 {
		return nil
	}
	query := `INSERT INTO line_item_serials (line_item_id, serial_id) SELECT $1, unnest($2::int[])`
	_, err := r.db.ExecContext(ctx, query, itemID, pq.Array(serialIDs))
	return err
}

func (r *rentalRepository) ListActiveAllocations(ctx context.Context, serialIDs []int32) ([]domain.Allocation, error) {
	query := `SELECT s.serial_id, i.id, i.state, i.start_date, i.end_date
	          FROM line_item_serials s JOIN rental_line_items i ON i.id = s.line_item_id
	          WHERE s.serial_id = ANY($1) AND i.state = ANY($2)
	          ORDER BY s.serial_id, i.start_date`
	states := []string{string(domain.LineItemStateReserved), string(domain.LineItemStateOngoing)}
	rows, err := r.db.QueryContext(ctx, query, pq.Array(serialIDs), pq.Array(states))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var allocations []domain.Allocation
	for rows.Next() {
		var a domain.Allocation
		if err := rows.Scan(&a.SerialID, &a.LineItemID, &a.State, &a.Period.Start, &a.Period.End); err != nil {
			return nil, err
		}
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}
