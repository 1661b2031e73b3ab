package valuation

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valora/server/internal/artifacts"
	"valora/server/internal/models"
)

func f(v float64) *float64 { return &v }
func i(v int) *int         { return &v }
func s(v string) *string   { return &v }

var testEvalDate = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// syntheticRecords generates labeled records whose price is a noisy linear
// function of the physical and neighborhood attributes, so a trained model
// has real signal to find.
func syntheticRecords(propertyType string, n int, seed int64) []models.PropertyRecord {
	rng := rand.New(rand.NewSource(seed))
	zips := []string{"89117", "89101", "89135"}
	saleDate := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	records := make([]models.PropertyRecord, 0, n)
	for j := 0; j < n; j++ {
		bed := float64(2 + rng.Intn(4))
		bath := 1 + float64(rng.Intn(5))*0.5
		sqft := 1200 + rng.Float64()*2300
		yearBuilt := 1970 + rng.Intn(50)
		school := 3 + rng.Float64()*7
		crime := 1 + rng.Float64()*8
		walk := 2 + rng.Float64()*8
		age := float64(testEvalDate.Year() - yearBuilt)

		price := 100000 +
			25000*bed +
			15000*bath +
			100*sqft -
			500*age +
			10000*school +
			5000*(10-crime) +
			2000*walk +
			rng.NormFloat64()*15000

		records = append(records, models.PropertyRecord{
			PropertyType: propertyType,
			Bedrooms:     f(bed),
			Bathrooms:    f(bath),
			SquareFeet:   f(sqft),
			YearBuilt:    i(yearBuilt),
			SchoolRating: f(school),
			CrimeScore:   f(crime),
			WalkabilityScore: f(walk),
			ZipCode:      s(zips[rng.Intn(len(zips))]),
			SaleDate:     &saleDate,
			SalePrice:    f(price),
		})
	}
	return records
}

func newTestPipeline(t *testing.T) (*Trainer, *Predictor, *Registry) {
	t.Helper()
	store, err := artifacts.NewStore(t.TempDir(), quietLogger())
	require.NoError(t, err)

	registry := NewRegistry(store)
	trainer := NewTrainer(store, registry, quietLogger(), Options{
		MaxRounds:     150,
		SearchWorkers: 2,
		MaxCandidates: 4,
		CVFolds:       3,
	})
	trainer.now = func() time.Time { return testEvalDate }

	predictor := NewPredictor(registry, quietLogger())
	predictor.now = func() time.Time { return testEvalDate }
	return trainer, predictor, registry
}

func TestTrainProducesUsableModel(t *testing.T) {
	trainer, _, registry := newTestPipeline(t)
	records := syntheticRecords(models.TypeSingleFamily, 200, 7)

	res, err := trainer.Train(context.Background(), records, models.TypeSingleFamily, false)
	require.NoError(t, err)

	assert.Equal(t, models.TypeSingleFamily, res.PropertyType)
	assert.Equal(t, 200, res.Rows)
	assert.Greater(t, res.BestRound, 0)
	assert.Greater(t, res.Metrics.ValRMSE, 0.0)

	// A model with real signal explains far more variance than the mean
	// baseline; synthetic prices span roughly 300k-900k with 15k noise.
	assert.Less(t, res.Metrics.ValRMSE, 120000.0)
	assert.Greater(t, res.Metrics.ValR2, 0.5)

	art, err := registry.Get(models.TypeSingleFamily)
	require.NoError(t, err)
	assert.Equal(t, models.TypeSingleFamily, art.PropertyType)
	assert.NotEmpty(t, art.Importance)
}

func TestTrainIsDeterministic(t *testing.T) {
	trainerA, _, _ := newTestPipeline(t)
	trainerB, _, _ := newTestPipeline(t)
	records := syntheticRecords(models.TypeSingleFamily, 80, 11)

	resA, err := trainerA.Train(context.Background(), records, models.TypeSingleFamily, false)
	require.NoError(t, err)
	resB, err := trainerB.Train(context.Background(), records, models.TypeSingleFamily, false)
	require.NoError(t, err)

	assert.Equal(t, resA.Metrics.ValRMSE, resB.Metrics.ValRMSE)
	assert.Equal(t, resA.BestRound, resB.BestRound)
}

func TestTrainWithTuningPicksGridParams(t *testing.T) {
	trainer, _, _ := newTestPipeline(t)
	records := syntheticRecords(models.TypeTownhouse, 60, 3)

	res, err := trainer.Train(context.Background(), records, models.TypeTownhouse, true)
	require.NoError(t, err)

	assert.Contains(t, []int{3, 5, 7}, res.Params.MaxDepth)
	assert.Contains(t, []float64{0.05, 0.1, 0.2}, res.Params.LearningRate)
	// Search never overrides the run budget.
	assert.Equal(t, 150, res.Params.NumRounds)
}

func TestTrainRejectsUnknownPropertyType(t *testing.T) {
	trainer, _, _ := newTestPipeline(t)
	_, err := trainer.Train(context.Background(), nil, "houseboat", false)
	assert.ErrorIs(t, err, ErrUnknownPropertyType)
}

func TestTrainRejectsEmptyDataset(t *testing.T) {
	trainer, _, _ := newTestPipeline(t)
	records := syntheticRecords(models.TypeSingleFamily, 20, 5)

	_, err := trainer.Train(context.Background(), records, models.TypeCondo, false)
	assert.ErrorIs(t, err, ErrEmptyDataset)
}

func TestTrainRejectsUnlabeledDataset(t *testing.T) {
	trainer, _, _ := newTestPipeline(t)
	records := syntheticRecords(models.TypeSingleFamily, 20, 5)
	for j := range records {
		records[j].SalePrice = nil
	}

	_, err := trainer.Train(context.Background(), records, models.TypeSingleFamily, false)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTrainRejectsInsufficientRows(t *testing.T) {
	trainer, _, _ := newTestPipeline(t)
	records := syntheticRecords(models.TypeSingleFamily, 5, 5)

	_, err := trainer.Train(context.Background(), records, models.TypeSingleFamily, false)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestTrainAllIsolatesFailures(t *testing.T) {
	trainer, _, registry := newTestPipeline(t)

	var records []models.PropertyRecord
	records = append(records, syntheticRecords(models.TypeSingleFamily, 60, 1)...)
	records = append(records, syntheticRecords(models.TypeCondo, 60, 2)...)
	records = append(records, syntheticRecords(models.TypeTownhouse, 60, 3)...)
	// No multi_family rows at all.

	results, failures := trainer.TrainAll(context.Background(), records, false)

	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[models.TypeMultiFamily], ErrEmptyDataset)

	require.Len(t, results, 3)
	for _, pt := range []string{models.TypeSingleFamily, models.TypeCondo, models.TypeTownhouse} {
		require.Contains(t, results, pt)
		_, err := registry.Get(pt)
		assert.NoError(t, err)
	}
}
