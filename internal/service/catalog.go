package service

import (
	"context"
	"fmt"
	"strings"

	"serialrent-backend/internal/domain"
	"serialrent-backend/internal/logger"
	"serialrent-backend/internal/repository"
)

const categoryPathSeparator = " / "

type catalogService struct {
	store repository.Store
}

func NewCatalogService(store repository.Store) CatalogService {
	return &catalogService{store: store}
}

func (s *catalogService) CreateCategory(ctx context.Context, name string, parentID *int32) (*domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.InvalidArgument("category name is required")
	}

	var category *domain.Category
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		all, err := repos.Categories.List(ctx)
		if err != nil {
			return err
		}
		if parentID != nil {
			if _, err := repos.Categories.GetByID(ctx, *parentID); err != nil {
				return err
			}
		}
		for _, c := range all {
			if strings.EqualFold(c.Name, name) && sameParent(c.ParentID, parentID) {
				return domain.InvalidArgument("category %q already exists here", name)
			}
		}

		category = &domain.Category{Name: name, ParentID: parentID}
		if err := repos.Categories.Create(ctx, category); err != nil {
			return err
		}
		category.Path = categoryPath(append(all, *category), category.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

func (s *catalogService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	all, err := s.store.Repos().Categories.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		all[i].Path = categoryPath(all, all[i].ID)
	}
	return all, nil
}

func (s *catalogService) CreateEquipment(ctx context.Context, equipment *domain.Equipment) error {
	equipment.Code = strings.TrimSpace(equipment.Code)
	if err := equipment.Validate(); err != nil {
		return err
	}

	return s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if equipment.CategoryID != nil {
			if _, err := repos.Categories.GetByID(ctx, *equipment.CategoryID); err != nil {
				return err
			}
		}
		if _, err := repos.Equipment.GetByCode(ctx, equipment.Code); err == nil {
			return domain.InvalidArgument("equipment code %q already exists", equipment.Code)
		} else if !isNotFound(err) {
			return err
		}
		equipment.Active = true
		if err := repos.Equipment.Create(ctx, equipment); err != nil {
			return err
		}
		logger.Info("Equipment created", "equipmentID", equipment.ID, "code", equipment.Code)
		return nil
	})
}

// UpdateEquipment edits rates and descriptive fields. Code and serial tracking are
// frozen once units exist, since serial codes and allocations depend on them.
func (s *catalogService) UpdateEquipment(ctx context.Context, equipment *domain.Equipment) error {
	if err := equipment.Validate(); err != nil {
		return err
	}

	return s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		current, err := repos.Equipment.GetByID(ctx, equipment.ID)
		if err != nil {
			return err
		}
		if equipment.CategoryID != nil {
			if _, err := repos.Categories.GetByID(ctx, *equipment.CategoryID); err != nil {
				return err
			}
		}
		serials, err := repos.Serials.ListByEquipment(ctx, equipment.ID)
		if err != nil {
			return err
		}
		if len(serials) > 0 && (current.Code != equipment.Code || current.TracksSerials != equipment.TracksSerials) {
			return domain.InvalidState(fmt.Sprintf("equipment %s has %d serials; code and tracking cannot change", current.Code, len(serials)), current.ID)
		}
		equipment.CreatedAt = current.CreatedAt
		return repos.Equipment.Update(ctx, equipment)
	})
}

func (s *catalogService) GetEquipment(ctx context.Context, id int32) (*domain.Equipment, error) {
	return s.store.Repos().Equipment.GetByID(ctx, id)
}

func (s *catalogService) ListEquipment(ctx context.Context, activeOnly bool) ([]domain.Equipment, error) {
	return s.store.Repos().Equipment.List(ctx, activeOnly)
}

// categoryPath joins ancestor names root first. A parent loop in stored data ends the walk.
func categoryPath(all []domain.Category, id int32) string {
	byID := make(map[int32]domain.Category, len(all))
	for _, c := range all {
		byID[c.ID] = c
	}

	var names []string
	seen := map[int32]bool{}
	for cur, ok := byID[id]; ok && !seen[cur.ID]; {
		seen[cur.ID] = true
		names = append(names, cur.Name)
		if cur.ParentID == nil {
			break
		}
		cur, ok = byID[*cur.ParentID]
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, categoryPathSeparator)
}

func sameParent(a, b *int32) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
