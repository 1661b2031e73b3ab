package valuation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valora/server/internal/models"
)

func trainedPipeline(t *testing.T) (*Trainer, *Predictor) {
	t.Helper()
	trainer, predictor, _ := newTestPipeline(t)
	records := syntheticRecords(models.TypeSingleFamily, 200, 7)
	_, err := trainer.Train(context.Background(), records, models.TypeSingleFamily, false)
	require.NoError(t, err)
	return trainer, predictor
}

func subjectProperty() models.PropertyRecord {
	saleDate := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	return models.PropertyRecord{
		PropertyType:     models.TypeSingleFamily,
		Bedrooms:         f(4),
		Bathrooms:        f(2.5),
		SquareFeet:       f(2500),
		YearBuilt:        i(2010),
		SchoolRating:     f(8),
		CrimeScore:       f(3),
		WalkabilityScore: f(7),
		ZipCode:          s("89117"),
		SaleDate:         &saleDate,
	}
}

func TestPredictWithConfidence(t *testing.T) {
	_, predictor := trainedPipeline(t)

	res, err := predictor.PredictWithConfidence(subjectProperty(), models.TypeSingleFamily, 0.95)
	require.NoError(t, err)

	assert.Equal(t, models.TypeSingleFamily, res.PropertyType)
	assert.Greater(t, res.PredictedValue, 0.0)

	ci := res.ConfidenceInterval
	assert.Equal(t, 0.95, ci.ConfidenceLevel)
	assert.GreaterOrEqual(t, ci.Lower, 0.0)
	assert.Less(t, ci.Lower, res.PredictedValue)
	assert.Greater(t, ci.Upper, res.PredictedValue)

	// The prediction interval is wider than the confidence interval by
	// construction.
	pi := res.PredictionInterval
	assert.LessOrEqual(t, pi.Lower, ci.Lower)
	assert.GreaterOrEqual(t, pi.Upper, ci.Upper)
}

func TestPredictMatchesSyntheticPrice(t *testing.T) {
	_, predictor := trainedPipeline(t)

	// 4bd/2.5ba/2500sqft built 2010 in a good school zone: the generating
	// function puts this around 700k. A fitted model should land in a wide
	// band around it.
	value, err := predictor.PredictOne(subjectProperty(), models.TypeSingleFamily)
	require.NoError(t, err)
	assert.Greater(t, value, 400000.0)
	assert.Less(t, value, 1100000.0)
}

func TestPredictDefaultsBadConfidenceLevel(t *testing.T) {
	_, predictor := trainedPipeline(t)

	res, err := predictor.PredictWithConfidence(subjectProperty(), models.TypeSingleFamily, 1.7)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfidenceLevel, res.ConfidenceInterval.ConfidenceLevel)
}

func TestPredictMissingModel(t *testing.T) {
	_, predictor := trainedPipeline(t)

	record := subjectProperty()
	record.PropertyType = models.TypeCondo
	_, err := predictor.PredictOne(record, models.TypeCondo)
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestPredictUnknownPropertyType(t *testing.T) {
	_, predictor := trainedPipeline(t)

	_, err := predictor.PredictOne(models.PropertyRecord{}, "castle")
	assert.ErrorIs(t, err, ErrUnknownPropertyType)
}

func TestPredictRejectsMismatchedRecordTag(t *testing.T) {
	_, predictor := trainedPipeline(t)

	record := subjectProperty()
	record.PropertyType = models.TypeCondo
	_, err := predictor.PredictOne(record, models.TypeSingleFamily)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPredictBatch(t *testing.T) {
	_, predictor := trainedPipeline(t)

	batch := []models.PropertyRecord{subjectProperty(), subjectProperty(), subjectProperty()}
	values, err := predictor.Predict(batch, models.TypeSingleFamily)
	require.NoError(t, err)
	require.Len(t, values, 3)

	// Identical inputs, identical outputs.
	assert.Equal(t, values[0], values[1])
	assert.Equal(t, values[1], values[2])
}

func TestExplainRanksValueDrivers(t *testing.T) {
	_, predictor := trainedPipeline(t)

	res, err := predictor.Explain(subjectProperty(), models.TypeSingleFamily, 0.95, 5)
	require.NoError(t, err)
	require.NotEmpty(t, res.ValueDrivers)
	assert.LessOrEqual(t, len(res.ValueDrivers), 5)

	var totalImpact float64
	for j, d := range res.ValueDrivers {
		assert.NotEmpty(t, d.Feature)
		assert.Greater(t, d.Importance, 0.0)
		if j > 0 {
			assert.LessOrEqual(t, d.Importance, res.ValueDrivers[j-1].Importance)
		}
		totalImpact += d.ImpactPercentage
	}
	assert.LessOrEqual(t, totalImpact, 100.0+1e-9)
	assert.Greater(t, totalImpact, 0.0)
}

func TestExplainDefaultsTopN(t *testing.T) {
	_, predictor := trainedPipeline(t)

	res, err := predictor.Explain(subjectProperty(), models.TypeSingleFamily, 0, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res.ValueDrivers), DefaultTopDrivers)
}
