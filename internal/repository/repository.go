package repository

import (
	"context"
	"time"

	"serialrent-backend/internal/domain"
)

type CategoryRepository interface {
	Create(ctx context.Context, category *domain.Category) error
	GetByID(ctx context.Context, id int32) (*domain.Category, error)
	List(ctx context.Context) ([]domain.Category, error)
}

type EquipmentRepository interface {
	Create(ctx context.Context, equipment *domain.Equipment) error
	GetByID(ctx context.Context, id int32) (*domain.Equipment, error)
	GetByCode(ctx context.Context, code string) (*domain.Equipment, error)
	Update(ctx context.Context, equipment *domain.Equipment) error
	List(ctx context.Context, activeOnly bool) ([]domain.Equipment, error)
}

type SerialRepository interface {
	Create(ctx context.Context, serial *domain.SerialUnit) error
	GetByID(ctx context.Context, id int32) (*domain.SerialUnit, error)
	GetByCode(ctx context.Context, code string) (*domain.SerialUnit, error)
	// ListByEquipment returns the equipment's units ordered by serial code.
	ListByEquipment(ctx context.Context, equipmentID int32) ([]domain.SerialUnit, error)
	// LockByEquipment is ListByEquipment holding row locks until the transaction ends.
	LockByEquipment(ctx context.Context, equipmentID int32) ([]domain.SerialUnit, error)
	LockByIDs(ctx context.Context, ids []int32) ([]domain.SerialUnit, error)
	Update(ctx context.Context, serial *domain.SerialUnit) error
	Delete(ctx context.Context, id int32) error
	ExistingCodes(ctx context.Context, codes []string) ([]string, error)
	CountAvailableByEquipment(ctx context.Context) (map[int32]int, error)
}

type RentalRepository interface {
	CreateProject(ctx context.Context, project *domain.RentalProject) error
	GetProject(ctx context.Context, id int32) (*domain.RentalProject, error)
	ListProjects(ctx context.Context) ([]domain.RentalProject, error)
	DeleteProject(ctx context.Context, id int32) error

	CreateItem(ctx context.Context, item *domain.RentalLineItem) error
	GetItem(ctx context.Context, id int32) (*domain.RentalLineItem, error)
	LockItem(ctx context.Context, id int32) (*domain.RentalLineItem, error)
	UpdateItem(ctx context.Context, item *domain.RentalLineItem) error
	ListItemsByProject(ctx context.Context, projectID int32) ([]domain.RentalLineItem, error)
	// LockItemsByProject row-locks every item of the project in id order.
	LockItemsByProject(ctx context.Context, projectID int32) ([]domain.RentalLineItem, error)
	SetItemSerials(ctx context.Context, itemID int32, serialIDs []int32) error
	// ListActiveAllocations returns holds of Reserved or Ongoing items on the given serials.
	ListActiveAllocations(ctx context.Context, serialIDs []int32) ([]domain.Allocation, error)
	ListOverdue(ctx context.Context, asOf time.Time) ([]domain.RentalLineItem, error)
	ListDueBetween(ctx context.Context, from, to time.Time) ([]domain.RentalLineItem, error)
}

type HistoryRepository interface {
	Append(ctx context.Context, entry *domain.StatusHistoryEntry) error
	ListBySerial(ctx context.Context, serialID int32) ([]domain.StatusHistoryEntry, error)
	CountBySerial(ctx context.Context, serialID int32) (int, error)
	Search(ctx context.Context, filter domain.HistoryFilter) ([]domain.StatusHistoryEntry, error)
}

type ScanLogRepository interface {
	Create(ctx context.Context, log *domain.ScanLog) error
	ListBySerial(ctx context.Context, serialID int32, limit int) ([]domain.ScanLog, error)
}

// Repositories groups the repositories bound to one connection or transaction.
type Repositories struct {
	Categories CategoryRepository
	Equipment  EquipmentRepository
	Serials    SerialRepository
	Rentals    RentalRepository
	History    HistoryRepository
	ScanLogs   ScanLogRepository
}

// Store hands out repositories and runs units of work atomically.
type Store interface {
	Repos() Repositories
	// WithinTx runs fn in one transaction. fn's error rolls everything back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
