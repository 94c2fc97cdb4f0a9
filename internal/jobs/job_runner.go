package jobs

import (
	"context"
	"fmt"
	"time"

	"serialrent-backend/internal/config"
	"serialrent-backend/internal/domain"
	"serialrent-backend/internal/logger"
	"serialrent-backend/internal/pricing"
	"serialrent-backend/internal/repository"
	"serialrent-backend/internal/service"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	store    repository.Store
	services *Services
	config   *config.Config
	policy   pricing.Policy
	recorder Recorder
	now      func() time.Time
}

// Services holds all service dependencies needed by jobs
type Services struct {
	Email service.EmailService
}

// Recorder receives job outcomes; *metrics.Metrics satisfies it.
type Recorder interface {
	JobFinished(job string, err error)
}

// NewJobRunner creates a new job runner with all dependencies. recorder may be nil.
func NewJobRunner(store repository.Store, services *Services, cfg *config.Config, recorder Recorder) *JobRunner {
	return &JobRunner{
		store:    store,
		services: services,
		config:   cfg,
		policy:   cfg.FeePolicy(),
		recorder: recorder,
		now:      time.Now,
	}
}

func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery and reports the outcome.
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
			err = fmt.Errorf("job %s panicked: %v", jobName, r)
		}
		if jr.recorder != nil {
			jr.recorder.JobFinished(jobName, err)
		}
	}()

	logger.Info("Starting job", "job", jobName)
	start := time.Now()
	if err = jobFunc(context.Background()); err != nil {
		logger.Error("Job failed", "job", jobName, "error", err, "duration", time.Since(start))
		return err
	}
	logger.Info("Job completed", "job", jobName, "duration", time.Since(start))
	return nil
}

// RunAllNightlyJobs runs all nightly jobs (for manual execution)
func (jr *JobRunner) RunAllNightlyJobs() {
	jr.DetectOverdueItems()
	jr.SendOverdueReminders()
	jr.SendReturnReminders()
	jr.CheckLowStock()
}

// reminderLines describes the items of one project for an email.
func (jr *JobRunner) reminderLines(ctx context.Context, items []domain.RentalLineItem, today time.Time) ([]service.ReminderLine, error) {
	repos := jr.store.Repos()
	lines := make([]service.ReminderLine, 0, len(items))
	for _, item := range items {
		equipment, err := repos.Equipment.GetByID(ctx, item.EquipmentID)
		if err != nil {
			return nil, err
		}
		line := service.ReminderLine{EquipmentName: equipment.Name, EndDate: item.EndDate}
		if late := domain.DaysBetween(item.EndDate, today); late > 0 {
			line.DaysLate = late
		}
		for _, id := range item.SerialIDs {
			serial, err := repos.Serials.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			line.SerialCodes = append(line.SerialCodes, serial.Code)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// byProject groups items by project, keeping first-seen order.
func byProject(items []domain.RentalLineItem) ([]int32, map[int32][]domain.RentalLineItem) {
	var order []int32
	groups := map[int32][]domain.RentalLineItem{}
	for _, item := range items {
		if _, ok := groups[item.ProjectID]; !ok {
			order = append(order, item.ProjectID)
		}
		groups[item.ProjectID] = append(groups[item.ProjectID], item)
	}
	return order, groups
}
