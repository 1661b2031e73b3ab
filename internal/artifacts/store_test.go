package artifacts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valora/server/internal/boosting"
	"valora/server/internal/models"
	"valora/server/internal/preprocess"
)

func trainedArtifact(t *testing.T) *ModelArtifact {
	t.Helper()
	x := [][]float64{{1}, {2}, {3}, {4}, {5}, {6}, {7}, {8}}
	y := []float64{2, 4, 6, 8, 10, 12, 14, 16}
	params := boosting.DefaultParams()
	params.NumRounds = 5
	booster, err := boosting.Train(x, y, nil, nil, params, []string{"x"})
	require.NoError(t, err)

	return &ModelArtifact{
		PropertyType: models.TypeTownhouse,
		Booster:      booster,
		Preprocessor: &preprocess.Artifact{
			PropertyType:   models.TypeTownhouse,
			NumericColumns: []string{"x"},
			Means:          map[string]float64{"x": 4.5},
			Stds:           map[string]float64{"x": 2.45},
		},
		Importance: map[string]float64{"x": 12.3},
		Metrics:    models.Metrics{ValRMSE: 1.5, ValMAPE: 4.2},
		Params:     params,
		TrainedAt:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	art := trainedArtifact(t)
	require.NoError(t, store.SaveModel(art))

	loaded, err := store.LoadModel(models.TypeTownhouse)
	require.NoError(t, err)

	assert.Equal(t, art.PropertyType, loaded.PropertyType)
	assert.Equal(t, art.Importance, loaded.Importance)
	assert.Equal(t, art.Metrics, loaded.Metrics)
	assert.Equal(t, art.TrainedAt, loaded.TrainedAt)
	assert.Equal(t, art.Preprocessor.Means, loaded.Preprocessor.Means)

	row := []float64{3}
	assert.Equal(t, art.Booster.PredictRow(row), loaded.Booster.PredictRow(row))
}

func TestLoadMissingModel(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = store.LoadModel(models.TypeCondo)
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestArtifactsAreTypeScoped(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	art := trainedArtifact(t)
	require.NoError(t, store.SaveModel(art))

	// Only townhouse exists; every other type must still be absent.
	for _, pt := range []string{models.TypeSingleFamily, models.TypeCondo, models.TypeMultiFamily} {
		_, err := store.LoadModel(pt)
		assert.ErrorIs(t, err, ErrArtifactNotFound, pt)
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = store.LoadHistory()
	assert.ErrorIs(t, err, ErrArtifactNotFound)

	h := &models.TrainingHistory{
		Date: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		PropertyTypes: map[string]models.Metrics{
			models.TypeCondo: {ValRMSE: 20000},
		},
	}
	require.NoError(t, store.SaveHistory(h))

	loaded, err := store.LoadHistory()
	require.NoError(t, err)
	assert.Equal(t, h.Date, loaded.Date)
	assert.Equal(t, h.PropertyTypes, loaded.PropertyTypes)
}
