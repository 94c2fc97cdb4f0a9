package service

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"serialrent-backend/internal/domain"
)

// MockBiller
type MockBiller struct {
	mock.Mock
}

func (m *MockBiller) CreateInvoice(ctx context.Context, req domain.BillingRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// MockEmailService
type MockEmailService struct {
	mock.Mock
}

func (m *MockEmailService) SendOverdueReminder(ctx context.Context, to, customer, reference string, lines []ReminderLine) error {
	args := m.Called(ctx, to, customer, reference, lines)
	return args.Error(0)
}
func (m *MockEmailService) SendReturnReminder(ctx context.Context, to, customer, reference string, lines []ReminderLine) error {
	args := m.Called(ctx, to, customer, reference, lines)
	return args.Error(0)
}
func (m *MockEmailService) SendLowStockAlert(ctx context.Context, to string, lines []StockLine) error {
	args := m.Called(ctx, to, lines)
	return args.Error(0)
}

// MockPhotoService
type MockPhotoService struct {
	mock.Mock
}

func (m *MockPhotoService) GetUploadURL(ctx context.Context, serialID int32, filename, contentType string) (string, string, int64, error) {
	args := m.Called(ctx, serialID, filename, contentType)
	return args.String(0), args.String(1), args.Get(2).(int64), args.Error(3)
}
func (m *MockPhotoService) GetDownloadURL(ctx context.Context, key string) (string, int64, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Get(1).(int64), args.Error(2)
}
func (m *MockPhotoService) Verify(ctx context.Context, keys []string) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

// countingRecorder tallies serial transitions.
type countingRecorder struct {
	mu          sync.Mutex
	transitions map[domain.SerialState]int
	failures    map[string]int
	scans       map[domain.ScanLevel]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		transitions: map[domain.SerialState]int{},
		failures:    map[string]int{},
		scans:       map[domain.ScanLevel]int{},
	}
}

func (r *countingRecorder) SerialTransition(_, to domain.SerialState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions[to]++
}
func (r *countingRecorder) AllocationFailed(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[kind]++
}
func (r *countingRecorder) ReturnProcessed(domain.Condition) {}
func (r *countingRecorder) ScanHandled(_ domain.ScanAction, level domain.ScanLevel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scans[level]++
}
