package jobs

import (
	"context"
	"fmt"
	"time"

	"serialrent-backend/internal/domain"
	"serialrent-backend/internal/logger"
)

// SendOverdueReminders emails each customer with overdue items, one message per project.
func (jr *JobRunner) SendOverdueReminders() {
	_ = jr.runWithRecovery("SendOverdueReminders", func(ctx context.Context) error {
		today := domain.Day(jr.now())
		items, err := jr.store.Repos().Rentals.ListOverdue(ctx, today)
		if err != nil {
			return fmt.Errorf("failed to list overdue items: %w", err)
		}
		sent, failed := jr.remind(ctx, items, today, true)
		logger.Info("Sent overdue reminders", "sent", sent, "failed", failed)
		return failureError(failed)
	})
}

// SendReturnReminders emails customers whose items are due within rental.reminder_days_before days.
func (jr *JobRunner) SendReturnReminders() {
	_ = jr.runWithRecovery("SendReturnReminders", func(ctx context.Context) error {
		today := domain.Day(jr.now())
		until := today.AddDate(0, 0, jr.config.Rental.ReminderDaysBefore)
		items, err := jr.store.Repos().Rentals.ListDueBetween(ctx, today, until)
		if err != nil {
			return fmt.Errorf("failed to list due items: %w", err)
		}
		sent, failed := jr.remind(ctx, items, today, false)
		logger.Info("Sent return reminders", "sent", sent, "failed", failed)
		return failureError(failed)
	})
}

// remind sends one email per project. A project without a customer email is skipped.
func (jr *JobRunner) remind(ctx context.Context, items []domain.RentalLineItem, today time.Time, overdue bool) (sent, failed int) {
	order, groups := byProject(items)
	for _, projectID := range order {
		project, err := jr.store.Repos().Rentals.GetProject(ctx, projectID)
		if err != nil {
			logger.Error("Failed to load project for reminder", "projectID", projectID, "error", err)
			failed++
			continue
		}
		if project.CustomerEmail == "" {
			logger.Debug("Project has no customer email", "projectID", projectID)
			continue
		}
		lines, err := jr.reminderLines(ctx, groups[projectID], today)
		if err != nil {
			logger.Error("Failed to build reminder", "projectID", projectID, "error", err)
			failed++
			continue
		}

		if overdue {
			err = jr.services.Email.SendOverdueReminder(ctx, project.CustomerEmail, project.CustomerName, project.Reference, lines)
		} else {
			err = jr.services.Email.SendReturnReminder(ctx, project.CustomerEmail, project.CustomerName, project.Reference, lines)
		}
		if err != nil {
			logger.Error("Failed to send reminder", "projectID", projectID, "to", project.CustomerEmail, "error", err)
			failed++
			continue
		}
		sent++
	}
	return sent, failed
}

func failureError(failed int) error {
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d reminders could not be sent", failed)
}
