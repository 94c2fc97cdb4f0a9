package importer

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v3"

	"serialrent-backend/internal/domain"
)

type fakeRegistry struct {
	existing map[string]bool
	created  []string
}

func (f *fakeRegistry) GetSerialByCode(_ context.Context, code string) (*domain.SerialUnit, error) {
	if f.existing[code] {
		return &domain.SerialUnit{Code: code}, nil
	}
	return nil, domain.NotFoundByKey("serial", code)
}

func (f *fakeRegistry) CreateSerial(_ context.Context, equipmentID int32, code, notes string) (*domain.SerialUnit, error) {
	f.created = append(f.created, fmt.Sprintf("%d:%s:%s", equipmentID, code, notes))
	return &domain.SerialUnit{Code: code, EquipmentID: equipmentID}, nil
}

type fakeCatalog []domain.Equipment

func (f fakeCatalog) ListEquipment(context.Context, bool) ([]domain.Equipment, error) {
	return f, nil
}

var catalog = fakeCatalog{
	{ID: 1, Code: "CAM-A", TracksSerials: true},
	{ID: 2, Code: "CABLE", TracksSerials: false},
}

func workbook(t *testing.T, rows ...[]string) *bytes.Buffer {
	t.Helper()
	f := xlsx.NewFile()
	sh, err := f.AddSheet("Serials")
	require.NoError(t, err)
	for _, cells := range rows {
		row := sh.AddRow()
		for _, v := range cells {
			row.AddCell().SetString(v)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return &buf
}

func TestImportSerials(t *testing.T) {
	reg := &fakeRegistry{existing: map[string]bool{"A-3": true}}
	data := workbook(t,
		[]string{"S/N", "Equipment Code", "Notes"},
		[]string{"A-1", "cam-a", "new"},
		[]string{"A-2", "CAM-A", ""},
		[]string{"A-3", "CAM-A", "already there"},
		[]string{"A-1", "CAM-A", "repeated"},
		[]string{"", "CAM-A", "no code"},
		[]string{"B-1", "DRONE", ""},
		[]string{"C-1", "CABLE", ""},
	)

	sum, err := ImportSerials(context.Background(), reg, catalog, data, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Inserted)
	assert.Equal(t, 2, sum.Skipped)
	assert.Equal(t, 3, sum.Errors)
	assert.Equal(t, []string{"1:A-1:new", "1:A-2:"}, reg.created)
	require.Len(t, sum.Samples, 3)
	assert.Equal(t, 6, sum.Samples[0].Row)
	assert.Contains(t, sum.Samples[1].Message, "DRONE")
}

func TestImportSerials_DefaultEquipmentAndDryRun(t *testing.T) {
	reg := &fakeRegistry{}
	data := workbook(t,
		[]string{"Serial"},
		[]string{"A-1"},
		[]string{"A-2"},
	)

	sum, err := ImportSerials(context.Background(), reg, catalog, data, Options{EquipmentCode: "CAM-A", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Inserted)
	assert.True(t, sum.DryRun)
	assert.Empty(t, reg.created)
}

func TestImportSerials_Rejections(t *testing.T) {
	t.Run("No serial column", func(t *testing.T) {
		sum, err := ImportSerials(context.Background(), &fakeRegistry{}, catalog, workbook(t, []string{"Name"}, []string{"x"}), Options{EquipmentCode: "CAM-A"})
		require.NoError(t, err)
		assert.Equal(t, 1, sum.Errors)
		assert.Contains(t, sum.Samples[0].Message, "no serial column")
	})

	t.Run("Too many errors", func(t *testing.T) {
		data := workbook(t, []string{"Serial", "Equipment"}, []string{"X-1", "NOPE"}, []string{"X-2", "NOPE"})
		_, err := ImportSerials(context.Background(), &fakeRegistry{}, catalog, data, Options{MaxErrors: 1})
		assert.ErrorContains(t, err, "too many errors")
	})

	t.Run("Not a workbook", func(t *testing.T) {
		_, err := ImportSerials(context.Background(), &fakeRegistry{}, catalog, bytes.NewBufferString("serial,equipment"), Options{})
		assert.ErrorContains(t, err, "failed to open Excel file")
	})
}
