package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"serialrent-backend/internal/domain"
	"serialrent-backend/internal/pricing"
)

func dailyPolicy() pricing.Policy {
	p := pricing.DefaultPolicy()
	p.Late.Method = pricing.LateFeeMethodDaily
	return p
}

func TestProcessReturn_LateDailyRate(t *testing.T) {
	env := newTestEnv(t, withPolicy(dailyPolicy()))
	ctx := context.Background()
	eq, serials := env.equipmentWithSerials(t, "MIXER", "50", "800", "M1")
	item := env.ongoingItem(t, eq.ID, 1, "2024-01-01", "2024-01-05")

	res, err := env.returns.ProcessReturn(ctx, domain.ReturnRequest{
		LineItemID: item.ID,
		ReturnDate: day("2024-01-08"),
		Conditions: []domain.ConditionReport{{SerialID: serials[0].ID, Condition: domain.ConditionGood}},
		Actor:      "carol",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.LateDays)
	assert.True(t, dec("150").Equal(res.LateFee), res.LateFee.String())
	assert.True(t, res.DamageFee.IsZero())
	assert.False(t, res.HasDamage())
	assert.NotEmpty(t, res.BatchID)
	assert.Equal(t, domain.SerialStateAvailable, env.serialState(t, serials[0].ID))

	fresh, err := env.lifecycle.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LineItemStateReturned, fresh.State)
	assert.True(t, fresh.FeesComputed)
	assert.True(t, dec("150").Equal(fresh.LateFee))
	require.NotNil(t, fresh.ReturnDate)
	assert.Equal(t, day("2024-01-08"), *fresh.ReturnDate)
}

func TestProcessReturn_OnTimeHasNoLateFee(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	eq, serials := env.equipmentWithSerials(t, "MIXER", "50", "800", "M1")
	item := env.ongoingItem(t, eq.ID, 1, "2024-01-01", "2024-01-05")

	res, err := env.returns.ProcessReturn(ctx, domain.ReturnRequest{
		LineItemID: item.ID,
		ReturnDate: day("2024-01-04"),
		Conditions: []domain.ConditionReport{{SerialID: serials[0].ID, Condition: domain.ConditionGood}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.LateDays)
	assert.True(t, res.LateFee.IsZero())
}

func TestProcessReturn_LostIsSevereAtItemValue(t *testing.T) {
	policy := pricing.DefaultPolicy()
	policy.Damage.MinorThreshold = dec("5000")
	policy.Damage.ModerateThreshold = dec("10000")
	env := newTestEnv(t, withPolicy(policy))
	ctx := context.Background()
	eq, serials := env.equipmentWithSerials(t, "DRONE", "80", "2000", "D1")
	item := env.ongoingItem(t, eq.ID, 1, "2024-01-01", "2024-01-05")

	override := dec("10")
	res, err := env.returns.ProcessReturn(ctx, domain.ReturnRequest{
		LineItemID: item.ID,
		ReturnDate: day("2024-01-05"),
		Conditions: []domain.ConditionReport{{SerialID: serials[0].ID, Condition: domain.ConditionLost, FeeOverride: &override}},
		Actor:      "carol",
	})
	require.NoError(t, err)

	require.Len(t, res.Assessments, 1)
	a := res.Assessments[0]
	assert.True(t, dec("2000").Equal(a.Fee))
	assert.Equal(t, domain.SeveritySevere, a.Severity)
	assert.Equal(t, domain.SerialStateDisposed, a.FinalState)
	assert.True(t, dec("2000").Equal(res.DamageFee))

	serial, err := env.registry.GetSerial(ctx, serials[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SerialStateDisposed, serial.State)
	assert.False(t, serial.Active)
	assert.Nil(t, serial.CurrentLineItemID)
}

func TestProcessReturn_DispositionRoutes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	eq, serials := env.equipmentWithSerials(t, "SPEAKER", "30", "600", "S1", "S2", "S3", "S4")
	item := env.ongoingItem(t, eq.ID, 4, "2024-05-01", "2024-05-03")

	fee := dec("120")
	res, err := env.returns.ProcessReturn(ctx, domain.ReturnRequest{
		LineItemID: item.ID,
		ReturnDate: day("2024-05-03"),
		Conditions: []domain.ConditionReport{
			{SerialID: serials[0].ID, Condition: domain.ConditionGood},
			{SerialID: serials[1].ID, Condition: domain.ConditionMinorDamage},
			{SerialID: serials[2].ID, Condition: domain.ConditionDamaged, FeeOverride: &fee},
			{SerialID: serials[3].ID, Condition: domain.ConditionLost},
		},
		Actor: "carol",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.SerialStateAvailable, env.serialState(t, serials[0].ID))
	assert.Equal(t, domain.SerialStateUnderRepair, env.serialState(t, serials[1].ID))
	assert.Equal(t, domain.SerialStateUnderRepair, env.serialState(t, serials[2].ID))
	assert.Equal(t, domain.SerialStateDisposed, env.serialState(t, serials[3].ID))

	// 0 + 50 (minor default) + 120 (override) + 600 (item value)
	assert.True(t, dec("770").Equal(res.DamageFee), res.DamageFee.String())
	assert.True(t, res.HasDamage())

	severities := map[int32]domain.Severity{}
	for _, a := range res.Assessments {
		severities[a.SerialID] = a.Severity
	}
	assert.Equal(t, domain.SeverityNone, severities[serials[0].ID])
	assert.Equal(t, domain.SeverityMinor, severities[serials[1].ID])
	assert.Equal(t, domain.SeverityModerate, severities[serials[2].ID])
	assert.Equal(t, domain.SeveritySevere, severities[serials[3].ID])

	// Minor damage passes through Damaged on its way to repair.
	history, err := env.registry.History(ctx, serials[1].ID)
	require.NoError(t, err)
	var path []domain.SerialState
	for _, h := range history {
		path = append(path, h.ToState)
	}
	assert.Equal(t, []domain.SerialState{
		domain.SerialStateReserved, domain.SerialStateRented, domain.SerialStateReturned,
		domain.SerialStateDamaged, domain.SerialStateUnderRepair,
	}, path)
	returned := history[2]
	assert.Equal(t, domain.ConditionMinorDamage, returned.Condition)
	require.NotNil(t, returned.Fee)
	assert.True(t, dec("50").Equal(*returned.Fee))
}

func TestProcessReturn_IncompleteAssessmentWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	eq, serials := env.equipmentWithSerials(t, "SPEAKER", "30", "600", "S1", "S2")
	item := env.ongoingItem(t, eq.ID, 2, "2024-05-01", "2024-05-03")

	tests := []struct {
		name       string
		conditions []domain.ConditionReport
		ids        []int32
	}{
		{
			name:       "Missing serial",
			conditions: []domain.ConditionReport{{SerialID: serials[0].ID, Condition: domain.ConditionGood}},
			ids:        []int32{serials[1].ID},
		},
		{
			name: "Foreign serial",
			conditions: []domain.ConditionReport{
				{SerialID: serials[0].ID, Condition: domain.ConditionGood},
				{SerialID: serials[1].ID, Condition: domain.ConditionGood},
				{SerialID: 999, Condition: domain.ConditionGood},
			},
			ids: []int32{999},
		},
		{
			name: "Duplicate serial",
			conditions: []domain.ConditionReport{
				{SerialID: serials[0].ID, Condition: domain.ConditionGood},
				{SerialID: serials[0].ID, Condition: domain.ConditionLost},
			},
			ids: []int32{serials[0].ID},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.returns.ProcessReturn(ctx, domain.ReturnRequest{
				LineItemID: item.ID,
				ReturnDate: day("2024-05-03"),
				Conditions: tt.conditions,
			})
			require.ErrorIs(t, err, domain.ErrIncompleteAssessment)
			de, _ := domain.AsError(err)
			assert.Equal(t, tt.ids, de.IDs)

			for _, s := range serials {
				assert.Equal(t, domain.SerialStateRented, env.serialState(t, s.ID))
			}
			fresh, err := env.lifecycle.GetItem(ctx, item.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.LineItemStateOngoing, fresh.State)
			assert.False(t, fresh.FeesComputed)
		})
	}
}

func TestProcessReturn_NotOngoing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	eq, _ := env.equipmentWithSerials(t, "SPEAKER", "30", "600", "S1")
	item := env.draftItem(t, eq.ID, 1, "2024-05-01", "2024-05-03")

	_, err := env.returns.ProcessReturn(ctx, domain.ReturnRequest{LineItemID: item.ID})
	require.ErrorIs(t, err, domain.ErrIllegalLifecycleTransition)
	de, _ := domain.AsError(err)
	assert.Equal(t, string(domain.LineItemStateDraft), de.Current)
	assert.Equal(t, string(domain.LineItemStateReturned), de.Requested)
}

func TestProcessReturn_LateFeeDisabledOnProject(t *testing.T) {
	env := newTestEnv(t, withPolicy(dailyPolicy()))
	ctx := context.Background()
	eq, serials := env.equipmentWithSerials(t, "MIXER", "50", "800", "M1")

	disabled := false
	project, err := env.lifecycle.CreateProject(ctx, domain.NewProjectRequest{
		CustomerName:   "Friends & Family",
		StartDate:      day("2024-01-01"),
		EndDate:        day("2024-01-05"),
		LateFeeEnabled: &disabled,
	})
	require.NoError(t, err)
	item, err := env.lifecycle.AddItem(ctx, domain.NewLineItemRequest{ProjectID: project.ID, EquipmentID: eq.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = env.lifecycle.Reserve(ctx, item.ID, nil, "alice")
	require.NoError(t, err)
	_, err = env.lifecycle.Start(ctx, item.ID, "alice", day("2024-01-01"))
	require.NoError(t, err)

	res, err := env.returns.ProcessReturn(ctx, domain.ReturnRequest{
		LineItemID: item.ID,
		ReturnDate: day("2024-01-10"),
		Conditions: []domain.ConditionReport{{SerialID: serials[0].ID, Condition: domain.ConditionGood}},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, res.LateDays)
	assert.True(t, res.LateFee.IsZero())
}

func TestProcessReturn_PhotoEvidence(t *testing.T) {
	ctx := context.Background()

	t.Run("Required but missing", func(t *testing.T) {
		photos := new(MockPhotoService)
		env := newTestEnv(t, withPhotos(photos, true))
		eq, serials := env.equipmentWithSerials(t, "SPEAKER", "30", "600", "S1")
		item := env.ongoingItem(t, eq.ID, 1, "2024-05-01", "2024-05-03")

		_, err := env.returns.ProcessReturn(ctx, domain.ReturnRequest{
			LineItemID: item.ID,
			Conditions: []domain.ConditionReport{{SerialID: serials[0].ID, Condition: domain.ConditionDamaged}},
		})
		assert.ErrorIs(t, err, domain.ErrIncompleteAssessment)
		photos.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	})

	t.Run("Uploaded photos are verified", func(t *testing.T) {
		photos := new(MockPhotoService)
		env := newTestEnv(t, withPhotos(photos, true))
		eq, serials := env.equipmentWithSerials(t, "SPEAKER", "30", "600", "S1")
		item := env.ongoingItem(t, eq.ID, 1, "2024-05-01", "2024-05-03")

		keys := []string{"serials/1/a.jpg"}
		photos.On("Verify", ctx, keys).Return(errors.New("photos not uploaded")).Once()
		photos.On("Verify", ctx, keys).Return(nil).Once()

		req := domain.ReturnRequest{
			LineItemID: item.ID,
			ReturnDate: day("2024-05-03"),
			Conditions: []domain.ConditionReport{{SerialID: serials[0].ID, Condition: domain.ConditionDamaged, PhotoKeys: keys}},
		}
		_, err := env.returns.ProcessReturn(ctx, req)
		require.Error(t, err)
		assert.Equal(t, domain.SerialStateRented, env.serialState(t, serials[0].ID))

		res, err := env.returns.ProcessReturn(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, keys, res.Assessments[0].PhotoKeys)
		photos.AssertExpectations(t)
	})
}
