package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serialrent-backend/internal/domain"
)

func TestSetState(t *testing.T) {
	ctx := context.Background()

	t.Run("Workshop moves", func(t *testing.T) {
		env := newTestEnv(t)
		eq, serials := env.equipmentWithSerials(t, "LIGHT", "20", "300", "L1")
		item := env.ongoingItem(t, eq.ID, 1, "2024-01-01", "2024-01-05")
		_, err := env.lifecycle.Return(ctx, domain.ReturnRequest{
			LineItemID: item.ID,
			ReturnDate: day("2024-01-05"),
			Conditions: []domain.ConditionReport{{SerialID: serials[0].ID, Condition: domain.ConditionDamaged}},
		})
		require.NoError(t, err)
		require.Equal(t, domain.SerialStateUnderRepair, env.serialState(t, serials[0].ID))

		entry, err := env.registry.SetState(ctx, serials[0].ID, domain.SerialStateAvailable, "bob", "fixed lens mount")
		require.NoError(t, err)
		assert.Equal(t, domain.SerialStateUnderRepair, entry.FromState)
		assert.Equal(t, domain.SerialStateAvailable, entry.ToState)
		assert.Equal(t, "fixed lens mount", entry.Note)
		assert.Nil(t, entry.LineItemID)

		serial, err := env.registry.GetSerial(ctx, serials[0].ID)
		require.NoError(t, err)
		assert.Nil(t, serial.CurrentLineItemID)
	})

	t.Run("Custody states are refused", func(t *testing.T) {
		env := newTestEnv(t)
		_, serials := env.equipmentWithSerials(t, "LIGHT", "20", "300", "L1")

		_, err := env.registry.SetState(ctx, serials[0].ID, domain.SerialStateReserved, "bob", "")
		assert.ErrorIs(t, err, domain.ErrInvalidState)

		_, err = env.registry.SetState(ctx, serials[0].ID, domain.SerialStateRented, "bob", "")
		assert.ErrorIs(t, err, domain.ErrIllegalTransition)
		assert.Equal(t, domain.SerialStateAvailable, env.serialState(t, serials[0].ID))
	})

	t.Run("Illegal move leaves no history", func(t *testing.T) {
		env := newTestEnv(t)
		_, serials := env.equipmentWithSerials(t, "LIGHT", "20", "300", "L1")

		_, err := env.registry.SetState(ctx, serials[0].ID, domain.SerialStateUnderRepair, "bob", "")
		require.ErrorIs(t, err, domain.ErrIllegalTransition)
		de, _ := domain.AsError(err)
		assert.Equal(t, "AVAILABLE", de.Current)
		assert.Equal(t, "UNDER_REPAIR", de.Requested)

		history, err := env.registry.History(ctx, serials[0].ID)
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("Disposed is terminal", func(t *testing.T) {
		env := newTestEnv(t)
		_, serials := env.equipmentWithSerials(t, "LIGHT", "20", "300", "L1")

		_, err := env.registry.SetState(ctx, serials[0].ID, domain.SerialStateDisposed, "bob", "dropped")
		require.NoError(t, err)
		serial, err := env.registry.GetSerial(ctx, serials[0].ID)
		require.NoError(t, err)
		assert.False(t, serial.Active)

		_, err = env.registry.SetState(ctx, serials[0].ID, domain.SerialStateAvailable, "bob", "")
		assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	})

	t.Run("Unknown state", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.registry.SetState(ctx, 1, "MISPLACED", "bob", "")
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})
}

func TestGenerateSerials(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	eq, _ := env.equipmentWithSerials(t, "TRIPOD", "5", "90", "TP-0002")

	res, err := env.registry.GenerateSerials(ctx, domain.GenerateSerialsRequest{
		EquipmentID: eq.ID,
		Prefix:      "TP",
		Count:       3,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"TP-0002"}, res.Skipped)
	require.Len(t, res.Created, 2)
	assert.Equal(t, "TP-0001", res.Created[0].Code)
	assert.Equal(t, "TP-0003", res.Created[1].Code)
	for _, s := range res.Created {
		assert.Equal(t, domain.SerialStateAvailable, s.State)
		assert.True(t, s.Active)
	}

	res, err = env.registry.GenerateSerials(ctx, domain.GenerateSerialsRequest{EquipmentID: eq.ID, Start: 10, Count: 1})
	require.NoError(t, err)
	assert.Equal(t, "SN-0010", res.Created[0].Code)

	for _, count := range []int{0, domain.MaxGeneratedSerials + 1} {
		_, err = env.registry.GenerateSerials(ctx, domain.GenerateSerialsRequest{EquipmentID: eq.ID, Count: count})
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	}
}

func TestCreateSerial_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	eq, _ := env.equipmentWithSerials(t, "TRIPOD", "5", "90", "T1")

	_, err := env.registry.CreateSerial(ctx, eq.ID, "T1", "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = env.registry.CreateSerial(ctx, eq.ID, "  ", "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	bulk := &domain.Equipment{Code: "CABLE", Name: "Cable", DailyRate: dec("1"), ItemValue: dec("5")}
	require.NoError(t, env.catalog.CreateEquipment(ctx, bulk))
	_, err = env.registry.CreateSerial(ctx, bulk.ID, "C1", "")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = env.registry.CreateSerial(ctx, 999, "X1", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSmartDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("Unused unit is deleted", func(t *testing.T) {
		env := newTestEnv(t)
		_, serials := env.equipmentWithSerials(t, "LIGHT", "20", "300", "L1")

		outcome, err := env.registry.SmartDelete(ctx, serials[0].ID, "bob")
		require.NoError(t, err)
		assert.Equal(t, domain.DeleteOutcomeDeleted, outcome)

		_, err = env.registry.GetSerial(ctx, serials[0].ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Unit with history is retired", func(t *testing.T) {
		env := newTestEnv(t)
		eq, serials := env.equipmentWithSerials(t, "LIGHT", "20", "300", "L1")
		item := env.ongoingItem(t, eq.ID, 1, "2024-01-01", "2024-01-05")
		_, err := env.lifecycle.Return(ctx, domain.ReturnRequest{
			LineItemID: item.ID,
			ReturnDate: day("2024-01-05"),
			Conditions: []domain.ConditionReport{{SerialID: serials[0].ID, Condition: domain.ConditionGood}},
		})
		require.NoError(t, err)

		protected, err := env.registry.ProtectFromDelete(ctx, serials[0].ID)
		require.NoError(t, err)
		assert.True(t, protected)

		err = env.registry.DeleteSerial(ctx, serials[0].ID)
		require.ErrorIs(t, err, domain.ErrInvalidState)

		outcome, err := env.registry.SmartDelete(ctx, serials[0].ID, "bob")
		require.NoError(t, err)
		assert.Equal(t, domain.DeleteOutcomeRetired, outcome)

		serial, err := env.registry.GetSerial(ctx, serials[0].ID)
		require.NoError(t, err)
		assert.Equal(t, domain.SerialStateDisposed, serial.State)
		assert.False(t, serial.Active)

		history, err := env.registry.History(ctx, serials[0].ID)
		require.NoError(t, err)
		require.Len(t, history, 5)
		assert.Equal(t, domain.SerialStateDisposed, history[4].ToState)
		assert.Equal(t, "bob", history[4].Actor)
	})

	t.Run("Rented unit cannot be retired", func(t *testing.T) {
		env := newTestEnv(t)
		eq, serials := env.equipmentWithSerials(t, "LIGHT", "20", "300", "L1")
		env.ongoingItem(t, eq.ID, 1, "2024-01-01", "2024-01-05")

		_, err := env.registry.SmartDelete(ctx, serials[0].ID, "bob")
		assert.ErrorIs(t, err, domain.ErrIllegalTransition)
		assert.Equal(t, domain.SerialStateRented, env.serialState(t, serials[0].ID))
	})
}

func TestAvailability(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	eq, serials := env.equipmentWithSerials(t, "CAMERA-X", "50", "2000", "C1", "C2", "C3")
	item := env.draftItem(t, eq.ID, 1, "2024-01-01", "2024-01-05")
	_, err := env.lifecycle.Reserve(ctx, item.ID, nil, "alice")
	require.NoError(t, err)
	_, err = env.registry.SetState(ctx, serials[2].ID, domain.SerialStateDisposed, "bob", "")
	require.NoError(t, err)

	free, err := env.registry.ListAvailable(ctx, eq.ID, domain.NewDateRange(day("2024-01-03"), day("2024-01-04")))
	require.NoError(t, err)
	assert.Equal(t, []int32{serials[1].ID}, ids(free...))

	a, err := env.registry.CheckAvailability(ctx, eq.ID, domain.NewDateRange(day("2024-01-03"), day("2024-01-04")), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, a.Available)
	assert.False(t, a.Sufficient())

	_, err = env.registry.CheckAvailability(ctx, eq.ID, domain.NewDateRange(day("2024-01-05"), day("2024-01-04")), 1)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = env.registry.CheckAvailability(ctx, eq.ID, domain.NewDateRange(day("2024-01-01"), day("2024-01-04")), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestTags(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, serials := env.equipmentWithSerials(t, "LIGHT", "20", "300", "L1")

	tag, err := env.registry.IssueTag(ctx, serials[0].ID)
	require.NoError(t, err)

	got, err := env.registry.ResolveTag(ctx, tag)
	require.NoError(t, err)
	assert.Equal(t, serials[0].ID, got.ID)

	got, err = env.registry.ResolveTag(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, serials[0].ID, got.ID)

	_, err = env.registry.ResolveTag(ctx, "a.b.c")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = env.registry.ResolveTag(ctx, "L404")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSearchHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	eq, serials := env.equipmentWithSerials(t, "LIGHT", "20", "300", "L1", "L2")
	item := env.ongoingItem(t, eq.ID, 2, "2024-01-01", "2024-01-05")

	entries, err := env.registry.SearchHistory(ctx, domain.HistoryFilter{LineItemID: item.ID, ToState: domain.SerialStateRented})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ids(serials...), []int32{entries[0].SerialID, entries[1].SerialID})

	entries, err = env.registry.SearchHistory(ctx, domain.HistoryFilter{SerialID: serials[0].ID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.SerialStateReserved, entries[0].ToState)

	_, err = env.registry.SearchHistory(ctx, domain.HistoryFilter{ToState: "BROKEN"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
