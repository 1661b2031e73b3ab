package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valora/server/internal/models"
)

func f(v float64) *float64 { return &v }

func openTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertAndQueryRecords(t *testing.T) {
	db := openTestDatabase(t)

	records := []*models.PropertyRecord{
		{PropertyType: models.TypeSingleFamily, Bedrooms: f(4), SalePrice: f(450000)},
		{PropertyType: models.TypeSingleFamily, Bedrooms: f(3), SalePrice: f(320000)},
		{PropertyType: models.TypeCondo, Bedrooms: f(2), SalePrice: f(210000)},
	}
	require.NoError(t, db.InsertRecords(records))

	all, err := db.AllRecords()
	require.NoError(t, err)
	assert.Len(t, all, 3)

	single, err := db.RecordsByType(models.TypeSingleFamily)
	require.NoError(t, err)
	require.Len(t, single, 2)
	for _, r := range single {
		assert.Equal(t, models.TypeSingleFamily, r.PropertyType)
	}
}

func TestInsertRecordsUpsertsByID(t *testing.T) {
	db := openTestDatabase(t)

	record := &models.PropertyRecord{PropertyType: models.TypeSingleFamily, SalePrice: f(300000)}
	require.NoError(t, db.InsertRecords([]*models.PropertyRecord{record}))
	require.NotZero(t, record.ID)

	record.SalePrice = f(310000)
	require.NoError(t, db.InsertRecords([]*models.PropertyRecord{record}))

	all, err := db.AllRecords()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 310000.0, *all[0].SalePrice)
}

func TestInsertRecordsEmptyBatch(t *testing.T) {
	db := openTestDatabase(t)
	assert.NoError(t, db.InsertRecords(nil))
}

func TestCountByType(t *testing.T) {
	db := openTestDatabase(t)

	require.NoError(t, db.InsertRecords([]*models.PropertyRecord{
		{PropertyType: models.TypeSingleFamily},
		{PropertyType: models.TypeSingleFamily},
		{PropertyType: models.TypeTownhouse},
	}))

	counts, err := db.CountByType()
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[models.TypeSingleFamily])
	assert.Equal(t, int64(1), counts[models.TypeTownhouse])
	assert.Zero(t, counts[models.TypeCondo])
}
