package memory

import (
	"context"
	"sort"
	"time"

	"serialrent-backend/internal/domain"
)

type rentalRepo struct{ *binding }

func (r *rentalRepo) CreateProject(ctx context.Context, p *domain.RentalProject) error {
	return r.do(func(st *state) error {
		p.ID = st.nextID()
		p.CreatedAt, p.UpdatedAt = r.now(), r.now()
		stored := *p
		stored.Items = nil
		st.projects[p.ID] = stored
		return nil
	})
}

func (r *rentalRepo) GetProject(ctx context.Context, id int32) (*domain.RentalProject, error) {
	var out *domain.RentalProject
	err := r.do(func(st *state) error {
		p, ok := st.projects[id]
		if !ok {
			return domain.NotFound("project", id)
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *rentalRepo) ListProjects(ctx context.Context) ([]domain.RentalProject, error) {
	var out []domain.RentalProject
	err := r.do(func(st *state) error {
		for _, p := range st.projects {
			out = append(out, p)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, err
}

func (r *rentalRepo) DeleteProject(ctx context.Context, id int32) error {
	return r.do(func(st *state) error {
		if _, ok := st.projects[id]; !ok {
			return domain.NotFound("project", id)
		}
		delete(st.projects, id)
		for itemID, it := range st.items {
			if it.ProjectID == id {
				delete(st.items, itemID)
			}
		}
		return nil
	})
}

func (r *rentalRepo) CreateItem(ctx context.Context, it *domain.RentalLineItem) error {
	return r.do(func(st *state) error {
		if _, ok := st.projects[it.ProjectID]; !ok {
			return domain.NotFound("project", it.ProjectID)
		}
		it.ID = st.nextID()
		it.CreatedAt, it.UpdatedAt = r.now(), r.now()
		st.items[it.ID] = copyItem(*it)
		return nil
	})
}

func (r *rentalRepo) GetItem(ctx context.Context, id int32) (*domain.RentalLineItem, error) {
	var out *domain.RentalLineItem
	err := r.do(func(st *state) error {
		it, ok := st.items[id]
		if !ok {
			return domain.NotFound("line item", id)
		}
		c := copyItem(it)
		out = &c
		return nil
	})
	return out, err
}

func (r *rentalRepo) LockItem(ctx context.Context, id int32) (*domain.RentalLineItem, error) {
	return r.GetItem(ctx, id)
}

func (r *rentalRepo) UpdateItem(ctx context.Context, it *domain.RentalLineItem) error {
	return r.do(func(st *state) error {
		existing, ok := st.items[it.ID]
		if !ok {
			return domain.NotFound("line item", it.ID)
		}
		it.UpdatedAt = r.now()
		updated := copyItem(*it)
		// allocation is owned by SetItemSerials
		updated.SerialIDs = existing.SerialIDs
		st.items[it.ID] = updated
		return nil
	})
}

func (r *rentalRepo) ListItemsByProject(ctx context.Context, projectID int32) ([]domain.RentalLineItem, error) {
	return r.listItems(func(it domain.RentalLineItem) bool { return it.ProjectID == projectID })
}

func (r *rentalRepo) LockItemsByProject(ctx context.Context, projectID int32) ([]domain.RentalLineItem, error) {
	return r.ListItemsByProject(ctx, projectID)
}

func (r *rentalRepo) ListOverdue(ctx context.Context, asOf time.Time) ([]domain.RentalLineItem, error) {
	day := domain.Day(asOf)
	return r.listItems(func(it domain.RentalLineItem) bool {
		return it.State == domain.LineItemStateOngoing && domain.Day(it.EndDate).Before(day)
	})
}

func (r *rentalRepo) ListDueBetween(ctx context.Context, from, to time.Time) ([]domain.RentalLineItem, error) {
	lo, hi := domain.Day(from), domain.Day(to)
	return r.listItems(func(it domain.RentalLineItem) bool {
		end := domain.Day(it.EndDate)
		return it.State == domain.LineItemStateOngoing && !end.Before(lo) && !end.After(hi)
	})
}

func (r *rentalRepo) listItems(match func(domain.RentalLineItem) bool) ([]domain.RentalLineItem, error) {
	var out []domain.RentalLineItem
	err := r.do(func(st *state) error {
		for _, it := range st.items {
			if match(it) {
				out = append(out, copyItem(it))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r *rentalRepo) SetItemSerials(ctx context.Context, itemID int32, serialIDs []int32) error {
	return r.do(func(st *state) error {
		it, ok := st.items[itemID]
		if !ok {
			return domain.NotFound("line item", itemID)
		}
		ids := append([]int32(nil), serialIDs...)
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		it.SerialIDs = ids
		st.items[itemID] = it
		return nil
	})
}

func (r *rentalRepo) ListActiveAllocations(ctx context.Context, serialIDs []int32) ([]domain.Allocation, error) {
	want := make(map[int32]bool, len(serialIDs))
	for _, id := range serialIDs {
		want[id] = true
	}
	var out []domain.Allocation
	err := r.do(func(st *state) error {
		for _, it := range st.items {
			if !it.State.Active() {
				continue
			}
			for _, sid := range it.SerialIDs {
				if want[sid] {
					out = append(out, domain.Allocation{SerialID: sid, LineItemID: it.ID, State: it.State, Period: it.Period()})
				}
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].SerialID != out[j].SerialID {
			return out[i].SerialID < out[j].SerialID
		}
		return out[i].Period.Start.Before(out[j].Period.Start)
	})
	return out, err
}

func copyItem(it domain.RentalLineItem) domain.RentalLineItem {
	it.SerialIDs = append([]int32(nil), it.SerialIDs...)
	if it.ReturnDate != nil {
		d := *it.ReturnDate
		it.ReturnDate = &d
	}
	return it
}
