package jobs

import (
	"context"
	"fmt"
	"sort"

	"serialrent-backend/internal/logger"
	"serialrent-backend/internal/service"
)

// CheckLowStock alerts operations when an active tracked equipment has fewer
// Available units than rental.low_stock_threshold.
func (jr *JobRunner) CheckLowStock() {
	_ = jr.runWithRecovery("CheckLowStock", func(ctx context.Context) error {
		lines, err := jr.LowStock(ctx)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			logger.Info("Stock levels are fine")
			return nil
		}
		for _, l := range lines {
			logger.Warn("Low stock", "equipment", l.EquipmentCode, "available", l.Available)
		}

		to := jr.config.Rental.OperationsEmail
		if to == "" {
			logger.Warn("Low stock found but rental.operations_email is not set", "count", len(lines))
			return nil
		}
		if err := jr.services.Email.SendLowStockAlert(ctx, to, lines); err != nil {
			return fmt.Errorf("failed to send low stock alert: %w", err)
		}
		return nil
	})
}

// LowStock returns the equipment below threshold, ordered by code.
func (jr *JobRunner) LowStock(ctx context.Context) ([]service.StockLine, error) {
	repos := jr.store.Repos()
	counts, err := repos.Serials.CountAvailableByEquipment(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count available units: %w", err)
	}

	threshold := jr.config.Rental.LowStockThreshold
	var lines []service.StockLine
	for equipmentID, available := range counts {
		if available >= threshold {
			continue
		}
		equipment, err := repos.Equipment.GetByID(ctx, equipmentID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, service.StockLine{
			EquipmentCode: equipment.Code,
			EquipmentName: equipment.Name,
			Available:     available,
		})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].EquipmentCode < lines[j].EquipmentCode })
	return lines, nil
}
