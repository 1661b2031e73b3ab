package valuation

import (
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/distuv"

	"valora/server/internal/artifacts"
	"valora/server/internal/features"
	"valora/server/internal/models"
	"valora/server/internal/preprocess"
)

const (
	// DefaultConfidenceLevel is the confidence-interval level when the
	// caller does not specify one.
	DefaultConfidenceLevel = 0.95

	// predictionIntervalLevel and predictionIntervalScale make the
	// prediction interval wider by construction than the confidence
	// interval: individual-outcome variability, not mean-estimate
	// variability.
	predictionIntervalLevel = 0.90
	predictionIntervalScale = 1.5

	// DefaultTopDrivers is how many ranked value drivers an explanation
	// reports.
	DefaultTopDrivers = 10
)

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// Predictor produces valuations from committed model artifacts. It owns the
// registry; artifacts load lazily on first use and are replaced only by the
// trainer.
type Predictor struct {
	registry *Registry
	logger   *logrus.Logger
	now      func() time.Time
}

// NewPredictor wires a predictor over the registry.
func NewPredictor(registry *Registry, logger *logrus.Logger) *Predictor {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Predictor{registry: registry, logger: logger, now: time.Now}
}

// Predict returns point estimates for a batch of records of one property
// type.
func (p *Predictor) Predict(records []models.PropertyRecord, propertyType string) ([]float64, error) {
	art, _, rows, err := p.prepare(records, propertyType)
	if err != nil {
		return nil, err
	}
	return art.Booster.Predict(rows), nil
}

// PredictOne returns the point estimate for a single record.
func (p *Predictor) PredictOne(record models.PropertyRecord, propertyType string) (float64, error) {
	out, err := p.Predict([]models.PropertyRecord{record}, propertyType)
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

// PredictWithConfidence returns the point estimate with confidence and
// prediction intervals. Both intervals are floored at zero; the upper bound
// is never capped.
func (p *Predictor) PredictWithConfidence(record models.PropertyRecord, propertyType string, confidenceLevel float64) (*models.PredictionResult, error) {
	if confidenceLevel <= 0 || confidenceLevel >= 1 {
		confidenceLevel = DefaultConfidenceLevel
	}

	art, _, rows, err := p.prepare([]models.PropertyRecord{record}, propertyType)
	if err != nil {
		return nil, err
	}
	estimate := art.Booster.PredictRow(rows[0])

	rmse := art.Metrics.ValRMSE
	if rmse <= 0 {
		// Documented fallback when no persisted metrics exist: approximate
		// the error scale as 10% of the prediction.
		rmse = 0.1 * estimate
		p.logger.WithField("property_type", propertyType).
			Warn("No validation RMSE available, approximating interval width from prediction")
	}

	ciMargin := stdNormal.Quantile((1+confidenceLevel)/2) * rmse
	piMargin := stdNormal.Quantile((1+predictionIntervalLevel)/2) * rmse * predictionIntervalScale

	return &models.PredictionResult{
		PropertyType:   propertyType,
		PredictedValue: estimate,
		ConfidenceInterval: models.Interval{
			Lower:           math.Max(0, estimate-ciMargin),
			Upper:           estimate + ciMargin,
			ConfidenceLevel: confidenceLevel,
		},
		PredictionInterval: models.Interval{
			Lower:           math.Max(0, estimate-piMargin),
			Upper:           estimate + piMargin,
			ConfidenceLevel: predictionIntervalLevel,
		},
	}, nil
}

// Explain returns a valuation with its ranked value drivers: the topN
// features by stored gain importance, each with the record's engineered
// value and its share of the total importance mass.
func (p *Predictor) Explain(record models.PropertyRecord, propertyType string, confidenceLevel float64, topN int) (*models.PredictionResult, error) {
	if topN <= 0 {
		topN = DefaultTopDrivers
	}

	result, err := p.PredictWithConfidence(record, propertyType, confidenceLevel)
	if err != nil {
		return nil, err
	}

	art, table, rows, err := p.prepare([]models.PropertyRecord{record}, propertyType)
	if err != nil {
		return nil, err
	}

	var total float64
	for _, v := range art.Importance {
		total += v
	}
	if total == 0 {
		return result, nil
	}

	type ranked struct {
		name  string
		score float64
	}
	order := make([]ranked, 0, len(art.Importance))
	for name, score := range art.Importance {
		order = append(order, ranked{name, score})
	}
	sort.Slice(order, func(a, b int) bool {
		if order[a].score != order[b].score {
			return order[a].score > order[b].score
		}
		return order[a].name < order[b].name
	})
	if len(order) > topN {
		order = order[:topN]
	}

	names := preprocess.FromArtifact(art.Preprocessor).FeatureNames()
	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}

	drivers := make([]models.ValueDriver, 0, len(order))
	for _, r := range order {
		drivers = append(drivers, models.ValueDriver{
			Feature:          r.name,
			Importance:       r.score,
			Value:            featureValue(r.name, table, rows[0], index),
			ImpactPercentage: r.score / total * 100,
		})
	}
	result.ValueDrivers = drivers
	return result, nil
}

// featureValue reports the record's observed value for a driver feature: the
// raw engineered value for numeric columns, otherwise the matrix value (the
// 0/1 indicator for one-hot columns).
func featureValue(name string, table *features.Table, row []float64, index map[string]int) float64 {
	if vals, ok := table.Numeric(name); ok {
		return vals[0]
	}
	if j, ok := index[name]; ok {
		return row[j]
	}
	return 0
}

// prepare validates the request, loads the artifact and engineers the batch
// into the model's input matrix using the artifact's training-time
// imputation statistics.
func (p *Predictor) prepare(records []models.PropertyRecord, propertyType string) (*artifacts.ModelArtifact, *features.Table, [][]float64, error) {
	if !models.ValidPropertyType(propertyType) {
		return nil, nil, nil, fmt.Errorf("%w: %q", ErrUnknownPropertyType, propertyType)
	}
	for i := range records {
		if records[i].PropertyType != "" && records[i].PropertyType != propertyType {
			return nil, nil, nil, fmt.Errorf("%w: record tagged %q, requested %q",
				ErrValidation, records[i].PropertyType, propertyType)
		}
	}

	art, err := p.registry.Get(propertyType)
	if err != nil {
		return nil, nil, nil, err
	}

	engineer := features.NewEngineer(p.logger, p.now())
	table, _, err := engineer.Run(records, &art.Preprocessor.Imputation)
	if err != nil {
		return nil, nil, nil, err
	}

	rows, err := preprocess.FromArtifact(art.Preprocessor).Transform(table)
	if err != nil {
		return nil, nil, nil, err
	}
	return art, table, rows, nil
}
