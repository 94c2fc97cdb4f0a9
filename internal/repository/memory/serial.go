package memory

import (
	"context"
	"sort"

	"serialrent-backend/internal/domain"
)

type serialRepo struct{ *binding }

func (r *serialRepo) Create(ctx context.Context, s *domain.SerialUnit) error {
	return r.do(func(st *state) error {
		for _, existing := range st.serials {
			if existing.Code == s.Code {
				return domain.InvalidArgument("serial code %q already exists", s.Code)
			}
		}
		s.ID = st.nextID()
		s.CreatedAt, s.UpdatedAt = r.now(), r.now()
		st.serials[s.ID] = *s
		return nil
	})
}

func (r *serialRepo) GetByID(ctx context.Context, id int32) (*domain.SerialUnit, error) {
	var out *domain.SerialUnit
	err := r.do(func(st *state) error {
		s, ok := st.serials[id]
		if !ok {
			return domain.NotFound("serial", id)
		}
		out = &s
		return nil
	})
	return out, err
}

func (r *serialRepo) GetByCode(ctx context.Context, code string) (*domain.SerialUnit, error) {
	var out *domain.SerialUnit
	err := r.do(func(st *state) error {
		for _, s := range st.serials {
			if s.Code == code {
				out = &s
				return nil
			}
		}
		return domain.NotFoundByKey("serial", code)
	})
	return out, err
}

func (r *serialRepo) ListByEquipment(ctx context.Context, equipmentID int32) ([]domain.SerialUnit, error) {
	var out []domain.SerialUnit
	err := r.do(func(st *state) error {
		for _, s := range st.serials {
			if s.EquipmentID == equipmentID {
				out = append(out, s)
			}
		}
		return nil
	})
	sortByCode(out)
	return out, err
}

// LockByEquipment needs no extra locking: transactions already hold the store lock.
func (r *serialRepo) LockByEquipment(ctx context.Context, equipmentID int32) ([]domain.SerialUnit, error) {
	return r.ListByEquipment(ctx, equipmentID)
}

func (r *serialRepo) LockByIDs(ctx context.Context, ids []int32) ([]domain.SerialUnit, error) {
	var out []domain.SerialUnit
	err := r.do(func(st *state) error {
		for _, id := range ids {
			if s, ok := st.serials[id]; ok {
				out = append(out, s)
			}
		}
		return nil
	})
	sortByCode(out)
	return out, err
}

func (r *serialRepo) Update(ctx context.Context, s *domain.SerialUnit) error {
	return r.do(func(st *state) error {
		if _, ok := st.serials[s.ID]; !ok {
			return domain.NotFound("serial", s.ID)
		}
		s.UpdatedAt = r.now()
		st.serials[s.ID] = *s
		return nil
	})
}

func (r *serialRepo) Delete(ctx context.Context, id int32) error {
	return r.do(func(st *state) error {
		if _, ok := st.serials[id]; !ok {
			return domain.NotFound("serial", id)
		}
		delete(st.serials, id)
		return nil
	})
}

func (r *serialRepo) ExistingCodes(ctx context.Context, codes []string) ([]string, error) {
	want := make(map[string]bool, len(codes))
	for _, c := range codes {
		want[c] = true
	}
	var out []string
	err := r.do(func(st *state) error {
		for _, s := range st.serials {
			if want[s.Code] {
				out = append(out, s.Code)
			}
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

func (r *serialRepo) CountAvailableByEquipment(ctx context.Context) (map[int32]int, error) {
	counts := map[int32]int{}
	err := r.do(func(st *state) error {
		for _, e := range st.equipment {
			if e.Active && e.TracksSerials {
				counts[e.ID] = 0
			}
		}
		for _, s := range st.serials {
			if _, tracked := counts[s.EquipmentID]; tracked && s.Active && s.State == domain.SerialStateAvailable {
				counts[s.EquipmentID]++
			}
		}
		return nil
	})
	return counts, err
}

func sortByCode(serials []domain.SerialUnit) {
	sort.Slice(serials, func(i, j int) bool { return serials[i].Code < serials[j].Code })
}
