package service

import (
	"context"
	"time"

	"serialrent-backend/internal/domain"
)

type CatalogService interface {
	CreateCategory(ctx context.Context, name string, parentID *int32) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateEquipment(ctx context.Context, equipment *domain.Equipment) error
	UpdateEquipment(ctx context.Context, equipment *domain.Equipment) error
	GetEquipment(ctx context.Context, id int32) (*domain.Equipment, error)
	ListEquipment(ctx context.Context, activeOnly bool) ([]domain.Equipment, error)
}

// SerialRegistry owns serial units and is the only writer of their state.
type SerialRegistry interface {
	GetSerial(ctx context.Context, id int32) (*domain.SerialUnit, error)
	GetSerialByCode(ctx context.Context, code string) (*domain.SerialUnit, error)
	ListSerials(ctx context.Context, equipmentID int32) ([]domain.SerialUnit, error)
	GetState(ctx context.Context, id int32) (domain.SerialState, error)
	SetState(ctx context.Context, id int32, to domain.SerialState, actor, note string) (*domain.StatusHistoryEntry, error)
	ListAvailable(ctx context.Context, equipmentID int32, period domain.DateRange) ([]domain.SerialUnit, error)
	CheckAvailability(ctx context.Context, equipmentID int32, period domain.DateRange, quantity int) (*domain.Availability, error)
	ProtectFromDelete(ctx context.Context, id int32) (bool, error)

	CreateSerial(ctx context.Context, equipmentID int32, code, notes string) (*domain.SerialUnit, error)
	GenerateSerials(ctx context.Context, req domain.GenerateSerialsRequest) (*domain.GenerateSerialsResult, error)
	DeleteSerial(ctx context.Context, id int32) error
	RetireSerial(ctx context.Context, id int32, actor, note string) (*domain.StatusHistoryEntry, error)
	// SmartDelete removes a unit with no history and retires one that has any.
	SmartDelete(ctx context.Context, id int32, actor string) (domain.DeleteOutcome, error)

	History(ctx context.Context, id int32) ([]domain.StatusHistoryEntry, error)
	SearchHistory(ctx context.Context, filter domain.HistoryFilter) ([]domain.StatusHistoryEntry, error)
	IssueTag(ctx context.Context, id int32) (string, error)
	ResolveTag(ctx context.Context, token string) (*domain.SerialUnit, error)
}

// AllocationEngine binds serials to line items and releases them again.
type AllocationEngine interface {
	// Allocate moves a Draft item to Reserved, holding quantity serials for its period.
	// explicit may name up to quantity serials; the rest are chosen by ascending code.
	Allocate(ctx context.Context, lineItemID int32, explicit []int32, actor string) (*TransitionResult, error)
	// Release returns a Reserved item to Draft and frees its serials.
	Release(ctx context.Context, lineItemID int32, actor string) (*TransitionResult, error)
}

type ReturnAssessment interface {
	ProcessReturn(ctx context.Context, req domain.ReturnRequest) (*domain.ReturnResult, error)
}

type LifecycleService interface {
	CreateProject(ctx context.Context, req domain.NewProjectRequest) (*domain.RentalProject, error)
	GetProject(ctx context.Context, id int32) (*domain.RentalProject, error)
	ListProjects(ctx context.Context) ([]domain.RentalProject, error)
	CancelProject(ctx context.Context, id int32, actor string) error
	AddItem(ctx context.Context, req domain.NewLineItemRequest) (*domain.RentalLineItem, error)
	GetItem(ctx context.Context, id int32) (*domain.RentalLineItem, error)

	// Transition drives a line item to target, dispatching to the operation that owns the step.
	Transition(ctx context.Context, lineItemID int32, target domain.LineItemState, opts TransitionOptions) (*TransitionResult, error)
	Reserve(ctx context.Context, lineItemID int32, explicit []int32, actor string) (*TransitionResult, error)
	Start(ctx context.Context, lineItemID int32, actor string, now time.Time) (*TransitionResult, error)
	Return(ctx context.Context, req domain.ReturnRequest) (*TransitionResult, error)
	Invoice(ctx context.Context, lineItemID int32, actor string) (*TransitionResult, error)
	Cancel(ctx context.Context, lineItemID int32, actor string) (*TransitionResult, error)

	ReserveProject(ctx context.Context, projectID int32, actor string) (*ProjectTransitionResult, error)
	StartProject(ctx context.Context, projectID int32, actor string, now time.Time) (*ProjectTransitionResult, error)
}

type ScanService interface {
	Scan(ctx context.Context, req domain.ScanRequest) *domain.ScanResult
	RecentScans(ctx context.Context, serialID int32, limit int) ([]domain.ScanLog, error)
}

type PhotoService interface {
	GetUploadURL(ctx context.Context, serialID int32, filename, contentType string) (uploadURL, key string, expiresAt int64, err error)
	GetDownloadURL(ctx context.Context, key string) (string, int64, error)
	// Verify checks that every key exists in storage.
	Verify(ctx context.Context, keys []string) error
}

// Biller is the external invoicing collaborator.
type Biller interface {
	CreateInvoice(ctx context.Context, req domain.BillingRequest) (invoiceRef string, err error)
}

type EmailService interface {
	SendOverdueReminder(ctx context.Context, to, customer, reference string, lines []ReminderLine) error
	SendReturnReminder(ctx context.Context, to, customer, reference string, lines []ReminderLine) error
	SendLowStockAlert(ctx context.Context, to string, lines []StockLine) error
}

// Recorder receives business events for metrics.
type Recorder interface {
	SerialTransition(from, to domain.SerialState)
	AllocationFailed(kind string)
	ReturnProcessed(condition domain.Condition)
	ScanHandled(action domain.ScanAction, level domain.ScanLevel)
}

type TransitionOptions struct {
	Actor     string
	SerialIDs []int32
	Now       time.Time
	Return    *domain.ReturnRequest
}

// TransitionResult reports a line item after a lifecycle step.
type TransitionResult struct {
	Item         *domain.RentalLineItem      `json:"item"`
	ProjectState domain.LineItemState        `json:"project_state"`
	History      []domain.StatusHistoryEntry `json:"history"`
	Return       *domain.ReturnResult        `json:"return,omitempty"`
	Invoice      *domain.InvoiceResult       `json:"invoice,omitempty"`
}

type ProjectTransitionResult struct {
	Project *domain.RentalProject       `json:"project"`
	State   domain.LineItemState        `json:"state"`
	History []domain.StatusHistoryEntry `json:"history"`
}

type ReminderLine struct {
	EquipmentName string
	SerialCodes   []string
	EndDate       time.Time
	DaysLate      int
}

type StockLine struct {
	EquipmentCode string
	EquipmentName string
	Available     int
}

type nopRecorder struct{}

func (nopRecorder) SerialTransition(domain.SerialState, domain.SerialState) {}
func (nopRecorder) AllocationFailed(string)                                 {}
func (nopRecorder) ReturnProcessed(domain.Condition)                        {}
func (nopRecorder) ScanHandled(domain.ScanAction, domain.ScanLevel)         {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}

// errorKind names the domain error kind for logs, metrics and scan results.
func errorKind(err error) string {
	if de, ok := domain.AsError(err); ok {
		return de.Kind.Error()
	}
	return "internal"
}
