package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serialrent-backend/internal/domain"
	"serialrent-backend/internal/repository"
)

var serialCols = []string{"id", "code", "equipment_id", "state", "current_line_item_id", "notes", "active", "created_at", "updated_at"}

func TestSerialRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := NewSerialRepository(db)
	ctx := context.Background()

	s := &domain.SerialUnit{Code: "SN-0001", EquipmentID: 3, State: domain.SerialStateAvailable, Active: true}
	mock.ExpectQuery("INSERT INTO serial_units").
		WithArgs(s.Code, s.EquipmentID, s.State, s.Notes, s.Active, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

	err = repo.Create(ctx, s)
	assert.NoError(t, err)
	assert.Equal(t, int32(11), s.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSerialRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := NewSerialRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows(serialCols).
			AddRow(4, "SN-0004", 3, "RESERVED", 21, "", true, time.Now(), time.Now())
		mock.ExpectQuery("SELECT (.+) FROM serial_units WHERE id = ").WithArgs(int32(4)).WillReturnRows(rows)

		s, err := repo.GetByID(ctx, 4)
		require.NoError(t, err)
		assert.Equal(t, domain.SerialStateReserved, s.State)
		require.NotNil(t, s.CurrentLineItemID)
		assert.Equal(t, int32(21), *s.CurrentLineItemID)
	})

	t.Run("Not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM serial_units WHERE id = ").WithArgs(int32(9)).WillReturnError(sql.ErrNoRows)

		s, err := repo.GetByID(ctx, 9)
		assert.Nil(t, s)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestSerialRepository_LockByEquipment(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := NewSerialRepository(db)

	rows := sqlmock.NewRows(serialCols).
		AddRow(1, "SN-0001", 3, "AVAILABLE", nil, "", true, time.Now(), time.Now()).
		AddRow(2, "SN-0002", 3, "AVAILABLE", nil, "", true, time.Now(), time.Now())
	mock.ExpectQuery("ORDER BY code FOR UPDATE").WithArgs(int32(3)).WillReturnRows(rows)

	serials, err := repo.LockByEquipment(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, serials, 2)
	assert.Equal(t, "SN-0001", serials[0].Code)
	assert.Nil(t, serials[0].CurrentLineItemID)
}

func TestSerialRepository_UpdateMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := NewSerialRepository(db)
	mock.ExpectExec("UPDATE serial_units SET").WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.Update(context.Background(), &domain.SerialUnit{ID: 77, State: domain.SerialStateAvailable})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStore_WithinTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	store := NewStore(db)
	ctx := context.Background()

	t.Run("Commits on success", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM serial_units").WithArgs(int32(5)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
			return repos.Serials.Delete(ctx, 5)
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Rolls back on error", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
