package memory

import (
	"context"
	"sort"

	"serialrent-backend/internal/domain"
)

type historyRepo struct{ *binding }

func (r *historyRepo) Append(ctx context.Context, e *domain.StatusHistoryEntry) error {
	return r.do(func(st *state) error {
		if _, ok := st.serials[e.SerialID]; !ok {
			return domain.NotFound("serial", e.SerialID)
		}
		st.seq++
		e.ID = st.seq
		if e.CreatedAt.IsZero() {
			e.CreatedAt = r.now()
		}
		st.history = append(st.history, *e)
		return nil
	})
}

func (r *historyRepo) ListBySerial(ctx context.Context, serialID int32) ([]domain.StatusHistoryEntry, error) {
	return r.Search(ctx, domain.HistoryFilter{SerialID: serialID})
}

func (r *historyRepo) CountBySerial(ctx context.Context, serialID int32) (int, error) {
	n := 0
	err := r.do(func(st *state) error {
		for _, e := range st.history {
			if e.SerialID == serialID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *historyRepo) Search(ctx context.Context, f domain.HistoryFilter) ([]domain.StatusHistoryEntry, error) {
	var out []domain.StatusHistoryEntry
	err := r.do(func(st *state) error {
		for _, e := range st.history {
			if matches(st, e, f) {
				out = append(out, e)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, err
}

func matches(st *state, e domain.StatusHistoryEntry, f domain.HistoryFilter) bool {
	if f.SerialID != 0 && e.SerialID != f.SerialID {
		return false
	}
	if f.EquipmentID != 0 && st.serials[e.SerialID].EquipmentID != f.EquipmentID {
		return false
	}
	if f.LineItemID != 0 && (e.LineItemID == nil || *e.LineItemID != f.LineItemID) {
		return false
	}
	if f.ToState != "" && e.ToState != f.ToState {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !e.CreatedAt.Before(*f.To) {
		return false
	}
	return true
}

type scanLogRepo struct{ *binding }

func (r *scanLogRepo) Create(ctx context.Context, l *domain.ScanLog) error {
	return r.do(func(st *state) error {
		if l.CreatedAt.IsZero() {
			l.CreatedAt = r.now()
		}
		st.scanLogs = append(st.scanLogs, *l)
		return nil
	})
}

func (r *scanLogRepo) ListBySerial(ctx context.Context, serialID int32, limit int) ([]domain.ScanLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []domain.ScanLog
	err := r.do(func(st *state) error {
		for i := len(st.scanLogs) - 1; i >= 0 && len(out) < limit; i-- {
			l := st.scanLogs[i]
			if l.SerialID != nil && *l.SerialID == serialID {
				out = append(out, l)
			}
		}
		return nil
	})
	return out, err
}
