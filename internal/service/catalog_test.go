package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serialrent-backend/internal/domain"
)

func TestCategories(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cameras, err := env.catalog.CreateCategory(ctx, "Cameras", nil)
	require.NoError(t, err)
	assert.Equal(t, "Cameras", cameras.Path)

	cinema, err := env.catalog.CreateCategory(ctx, " Cinema ", &cameras.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cinema", cinema.Name)
	assert.Equal(t, "Cameras / Cinema", cinema.Path)

	_, err = env.catalog.CreateCategory(ctx, "cinema", &cameras.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	// same name under another parent is fine
	_, err = env.catalog.CreateCategory(ctx, "Cinema", nil)
	require.NoError(t, err)

	missing := int32(404)
	_, err = env.catalog.CreateCategory(ctx, "Drones", &missing)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	all, err := env.catalog.ListCategories(ctx)
	require.NoError(t, err)
	paths := map[string]bool{}
	for _, c := range all {
		paths[c.Path] = true
	}
	assert.True(t, paths["Cameras / Cinema"])
	assert.True(t, paths["Cinema"])
}

func TestCategoryPath_StopsOnLoop(t *testing.T) {
	a, b := int32(1), int32(2)
	all := []domain.Category{
		{ID: 1, Name: "A", ParentID: &b},
		{ID: 2, Name: "B", ParentID: &a},
	}
	assert.Equal(t, "B / A", categoryPath(all, 1))
}

func TestEquipment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	eq := &domain.Equipment{Code: "LENS-50", Name: "50mm prime", DailyRate: dec("15"), ItemValue: dec("600"), TracksSerials: true}
	require.NoError(t, env.catalog.CreateEquipment(ctx, eq))
	assert.True(t, eq.Active)
	assert.NotZero(t, eq.ID)

	dup := &domain.Equipment{Code: "LENS-50", Name: "again", DailyRate: dec("1")}
	assert.ErrorIs(t, env.catalog.CreateEquipment(ctx, dup), domain.ErrInvalidArgument)

	free := &domain.Equipment{Code: "FREEBIE", Name: "no rate"}
	assert.ErrorIs(t, env.catalog.CreateEquipment(ctx, free), domain.ErrInvalidArgument)

	// code may change while no units exist
	eq.Code = "LENS-50MM"
	require.NoError(t, env.catalog.UpdateEquipment(ctx, eq))

	_, err := env.registry.CreateSerial(ctx, eq.ID, "L50-1", "")
	require.NoError(t, err)

	eq.Code = "LENS-FIFTY"
	assert.ErrorIs(t, env.catalog.UpdateEquipment(ctx, eq), domain.ErrInvalidState)

	eq.Code = "LENS-50MM"
	eq.DailyRate = dec("18")
	eq.Active = false
	require.NoError(t, env.catalog.UpdateEquipment(ctx, eq))

	got, err := env.catalog.GetEquipment(ctx, eq.ID)
	require.NoError(t, err)
	assert.True(t, dec("18").Equal(got.DailyRate))

	active, err := env.catalog.ListEquipment(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := env.catalog.ListEquipment(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
