package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tealeg/xlsx/v3"

	"serialrent-backend/internal/domain"
	"serialrent-backend/internal/logger"
)

// Options configures a serial unit import
type Options struct {
	// EquipmentCode applies to rows without an equipment column.
	EquipmentCode string
	DryRun        bool
	MaxErrors     int // default 50
}

// RowError represents an error that occurred during row processing
type RowError struct {
	Sheet   string `json:"sheet"`
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Summary contains the import statistics
type Summary struct {
	Inserted int        `json:"inserted"`
	Skipped  int        `json:"skipped"`
	Errors   int        `json:"errors"`
	Samples  []RowError `json:"error_samples,omitempty"`
	DryRun   bool       `json:"dry_run"`
}

// SerialCreator is the part of the serial registry an import needs.
type SerialCreator interface {
	GetSerialByCode(ctx context.Context, code string) (*domain.SerialUnit, error)
	CreateSerial(ctx context.Context, equipmentID int32, code, notes string) (*domain.SerialUnit, error)
}

type EquipmentLister interface {
	ListEquipment(ctx context.Context, activeOnly bool) ([]domain.Equipment, error)
}

const maxSamples = 20

var columnAliases = map[string][]string{
	"serial":    {"SERIAL", "SERIAL NUMBER", "SERIAL CODE", "S/N", "CODE"},
	"equipment": {"EQUIPMENT", "EQUIPMENT CODE", "ITEM CODE"},
	"notes":     {"NOTES", "NOTE", "REMARKS"},
}

// ImportSerials reads every sheet of an .xlsx workbook and registers one serial unit per row.
// Rows whose code already exists are skipped; invalid rows are counted and sampled.
func ImportSerials(ctx context.Context, serials SerialCreator, catalog EquipmentLister, r io.Reader, opts Options) (Summary, error) {
	summary := Summary{DryRun: opts.DryRun}
	if opts.MaxErrors == 0 {
		opts.MaxErrors = 50
	}

	// xlsx needs the whole workbook in memory
	data, err := io.ReadAll(r)
	if err != nil {
		return summary, fmt.Errorf("failed to read Excel file: %w", err)
	}
	xlFile, err := xlsx.OpenBinary(data)
	if err != nil {
		return summary, fmt.Errorf("failed to open Excel file: %w", err)
	}

	equipment, err := catalog.ListEquipment(ctx, false)
	if err != nil {
		return summary, err
	}
	byCode := make(map[string]domain.Equipment, len(equipment))
	for _, e := range equipment {
		byCode[strings.ToUpper(e.Code)] = e
	}

	imp := &importRun{ctx: ctx, serials: serials, equipment: byCode, opts: opts, seen: map[string]bool{}, summary: &summary}
	for _, sheet := range xlFile.Sheets {
		imp.sheet(sheet)
		if summary.Errors > opts.MaxErrors {
			return summary, fmt.Errorf("too many errors (%d), stopping import", summary.Errors)
		}
	}

	logger.Info("Serial import finished", "inserted", summary.Inserted, "skipped", summary.Skipped,
		"errors", summary.Errors, "dryRun", opts.DryRun)
	return summary, nil
}

type importRun struct {
	ctx       context.Context
	serials   SerialCreator
	equipment map[string]domain.Equipment
	opts      Options
	seen      map[string]bool
	summary   *Summary
}

func (imp *importRun) fail(sheet string, row int, format string, args ...any) {
	imp.summary.Errors++
	if len(imp.summary.Samples) < maxSamples {
		imp.summary.Samples = append(imp.summary.Samples, RowError{Sheet: sheet, Row: row, Message: fmt.Sprintf(format, args...)})
	}
}

func (imp *importRun) sheet(sheet *xlsx.Sheet) {
	if sheet.MaxRow == 0 {
		return
	}
	header, err := sheet.Row(0)
	if err != nil {
		imp.fail(sheet.Name, 1, "failed to read header row: %v", err)
		return
	}

	cols := map[string]int{}
	for c := 0; c < sheet.MaxCol; c++ {
		name := strings.ToUpper(strings.TrimSpace(header.GetCell(c).String()))
		for field, aliases := range columnAliases {
			for _, alias := range aliases {
				if name == alias {
					if _, dup := cols[field]; !dup {
						cols[field] = c
					}
				}
			}
		}
	}
	if _, ok := cols["serial"]; !ok {
		imp.fail(sheet.Name, 1, "no serial column")
		return
	}
	if _, ok := cols["equipment"]; !ok && imp.opts.EquipmentCode == "" {
		imp.fail(sheet.Name, 1, "no equipment column and no default equipment code")
		return
	}

	for i := 1; i < sheet.MaxRow; i++ {
		if imp.summary.Errors > imp.opts.MaxErrors {
			return
		}
		row, err := sheet.Row(i)
		if err != nil {
			imp.fail(sheet.Name, i+1, "failed to read row: %v", err)
			continue
		}
		value := func(field string) string {
			c, ok := cols[field]
			if !ok {
				return ""
			}
			return strings.TrimSpace(row.GetCell(c).String())
		}
		imp.row(sheet.Name, i+1, value("serial"), value("equipment"), value("notes"))
	}
}

func (imp *importRun) row(sheet string, n int, code, equipmentCode, notes string) {
	if code == "" && equipmentCode == "" && notes == "" {
		return
	}
	if code == "" {
		imp.fail(sheet, n, "serial code is empty")
		return
	}
	if equipmentCode == "" {
		equipmentCode = imp.opts.EquipmentCode
	}
	eq, ok := imp.equipment[strings.ToUpper(equipmentCode)]
	if !ok {
		imp.fail(sheet, n, "unknown equipment %q", equipmentCode)
		return
	}
	if !eq.TracksSerials {
		imp.fail(sheet, n, "equipment %s does not track serials", eq.Code)
		return
	}

	if imp.seen[code] {
		imp.summary.Skipped++
		return
	}
	imp.seen[code] = true
	if _, err := imp.serials.GetSerialByCode(imp.ctx, code); err == nil {
		imp.summary.Skipped++
		return
	} else if !errors.Is(err, domain.ErrNotFound) {
		imp.fail(sheet, n, "%v", err)
		return
	}

	if imp.opts.DryRun {
		imp.summary.Inserted++
		return
	}
	if _, err := imp.serials.CreateSerial(imp.ctx, eq.ID, code, notes); err != nil {
		imp.fail(sheet, n, "%v", err)
		return
	}
	imp.summary.Inserted++
}
