// Package memory is a transactional in-memory repository used by tests and the
// "memory" storage mode. Transactions are serialised by one mutex and committed
// by swapping in a cloned state.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"serialrent-backend/internal/domain"
	"serialrent-backend/internal/repository"
)

type state struct {
	categories map[int32]domain.Category
	equipment  map[int32]domain.Equipment
	serials    map[int32]domain.SerialUnit
	projects   map[int32]domain.RentalProject
	items      map[int32]domain.RentalLineItem
	history    []domain.StatusHistoryEntry
	scanLogs   []domain.ScanLog
	seq        int64
}

func newState() *state {
	return &state{
		categories: map[int32]domain.Category{},
		equipment:  map[int32]domain.Equipment{},
		serials:    map[int32]domain.SerialUnit{},
		projects:   map[int32]domain.RentalProject{},
		items:      map[int32]domain.RentalLineItem{},
	}
}

func (s *state) nextID() int32 {
	s.seq++
	return int32(s.seq)
}

func (s *state) clone() *state {
	c := &state{
		categories: make(map[int32]domain.Category, len(s.categories)),
		equipment:  make(map[int32]domain.Equipment, len(s.equipment)),
		serials:    make(map[int32]domain.SerialUnit, len(s.serials)),
		projects:   make(map[int32]domain.RentalProject, len(s.projects)),
		items:      make(map[int32]domain.RentalLineItem, len(s.items)),
		history:    append([]domain.StatusHistoryEntry(nil), s.history...),
		scanLogs:   append([]domain.ScanLog(nil), s.scanLogs...),
		seq:        s.seq,
	}
	for k, v := range s.categories {
		c.categories[k] = v
	}
	for k, v := range s.equipment {
		c.equipment[k] = v
	}
	for k, v := range s.serials {
		c.serials[k] = v
	}
	for k, v := range s.projects {
		c.projects[k] = v
	}
	for k, v := range s.items {
		v.SerialIDs = append([]int32(nil), v.SerialIDs...)
		c.items[k] = v
	}
	return c
}

type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{state: newState(), now: time.Now}
}

func (s *Store) Repos() repository.Repositories {
	return s.repos(nil)
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, s.repos(work)); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) repos(tx *state) repository.Repositories {
	b := &binding{store: s, tx: tx}
	return repository.Repositories{
		Categories: &categoryRepo{b},
		Equipment:  &equipmentRepo{b},
		Serials:    &serialRepo{b},
		Rentals:    &rentalRepo{b},
		History:    &historyRepo{b},
		ScanLogs:   &scanLogRepo{b},
	}
}

// binding routes a repository call to the transaction's working copy, or to the
// live state under the store lock.
type binding struct {
	store *Store
	tx    *state
}

func (b *binding) do(fn func(st *state) error) error {
	if b.tx != nil {
		return fn(b.tx)
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	return fn(b.store.state)
}

func (b *binding) now() time.Time {
	return b.store.now()
}

type categoryRepo struct{ *binding }

func (r *categoryRepo) Create(ctx context.Context, c *domain.Category) error {
	return r.do(func(st *state) error {
		c.ID = st.nextID()
		c.CreatedAt = r.now()
		st.categories[c.ID] = *c
		return nil
	})
}

func (r *categoryRepo) GetByID(ctx context.Context, id int32) (*domain.Category, error) {
	var out *domain.Category
	err := r.do(func(st *state) error {
		c, ok := st.categories[id]
		if !ok {
			return domain.NotFound("category", id)
		}
		out = &c
		return nil
	})
	return out, err
}

func (r *categoryRepo) List(ctx context.Context) ([]domain.Category, error) {
	var out []domain.Category
	err := r.do(func(st *state) error {
		for _, c := range st.categories {
			out = append(out, c)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

type equipmentRepo struct{ *binding }

func (r *equipmentRepo) Create(ctx context.Context, e *domain.Equipment) error {
	return r.do(func(st *state) error {
		for _, existing := range st.equipment {
			if existing.Code == e.Code {
				return domain.InvalidArgument("equipment code %q already exists", e.Code)
			}
		}
		e.ID = st.nextID()
		e.CreatedAt, e.UpdatedAt = r.now(), r.now()
		st.equipment[e.ID] = *e
		return nil
	})
}

func (r *equipmentRepo) GetByID(ctx context.Context, id int32) (*domain.Equipment, error) {
	var out *domain.Equipment
	err := r.do(func(st *state) error {
		e, ok := st.equipment[id]
		if !ok {
			return domain.NotFound("equipment", id)
		}
		out = &e
		return nil
	})
	return out, err
}

func (r *equipmentRepo) GetByCode(ctx context.Context, code string) (*domain.Equipment, error) {
	var out *domain.Equipment
	err := r.do(func(st *state) error {
		for _, e := range st.equipment {
			if e.Code == code {
				out = &e
				return nil
			}
		}
		return domain.NotFoundByKey("equipment", code)
	})
	return out, err
}

func (r *equipmentRepo) Update(ctx context.Context, e *domain.Equipment) error {
	return r.do(func(st *state) error {
		if _, ok := st.equipment[e.ID]; !ok {
			return domain.NotFound("equipment", e.ID)
		}
		e.UpdatedAt = r.now()
		st.equipment[e.ID] = *e
		return nil
	})
}

func (r *equipmentRepo) List(ctx context.Context, activeOnly bool) ([]domain.Equipment, error) {
	var out []domain.Equipment
	err := r.do(func(st *state) error {
		for _, e := range st.equipment {
			if activeOnly && !e.Active {
				continue
			}
			out = append(out, e)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, err
}
