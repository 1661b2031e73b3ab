package valuation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"valora/server/internal/artifacts"
	"valora/server/internal/boosting"
	"valora/server/internal/features"
	"valora/server/internal/models"
	"valora/server/internal/preprocess"
)

// Options tune the training pipeline. Zero values fall back to defaults.
type Options struct {
	Seed                int64
	MaxRounds           int
	EarlyStoppingRounds int
	MinTrainingRows     int
	SearchWorkers       int
	MaxCandidates       int
	CVFolds             int
}

// DefaultOptions returns the moderate defaults used across the service.
func DefaultOptions() Options {
	return Options{
		Seed:                42,
		MaxRounds:           1000,
		EarlyStoppingRounds: 50,
		MinTrainingRows:     10,
		SearchWorkers:       4,
		MaxCandidates:       24,
		CVFolds:             5,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Seed == 0 {
		o.Seed = d.Seed
	}
	if o.MaxRounds == 0 {
		o.MaxRounds = d.MaxRounds
	}
	if o.EarlyStoppingRounds == 0 {
		o.EarlyStoppingRounds = d.EarlyStoppingRounds
	}
	if o.MinTrainingRows == 0 {
		o.MinTrainingRows = d.MinTrainingRows
	}
	if o.SearchWorkers == 0 {
		o.SearchWorkers = d.SearchWorkers
	}
	if o.MaxCandidates == 0 {
		o.MaxCandidates = d.MaxCandidates
	}
	if o.CVFolds == 0 {
		o.CVFolds = d.CVFolds
	}
	return o
}

// Result summarizes one completed training run.
type Result struct {
	PropertyType string          `json:"property_type"`
	Rows         int             `json:"rows"`
	Metrics      models.Metrics  `json:"metrics"`
	Params       boosting.Params `json:"params"`
	BestRound    int             `json:"best_round"`
}

// Trainer fits per-property-type models: filter, engineer, fit preprocessor,
// split, optional hyperparameter search, boosted-tree fit with early
// stopping, metrics, artifact persistence. A failed run never touches the
// previous artifact; the registry is updated only after the store commit.
type Trainer struct {
	store    *artifacts.Store
	registry *Registry
	logger   *logrus.Logger
	opts     Options
	now      func() time.Time
}

// NewTrainer wires a trainer against the artifact store and registry.
func NewTrainer(store *artifacts.Store, registry *Registry, logger *logrus.Logger, opts Options) *Trainer {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Trainer{
		store:    store,
		registry: registry,
		logger:   logger,
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
}

// Train runs the full pipeline for one property type.
func (t *Trainer) Train(ctx context.Context, records []models.PropertyRecord, propertyType string, tune bool) (*Result, error) {
	if !models.ValidPropertyType(propertyType) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPropertyType, propertyType)
	}

	var filtered []models.PropertyRecord
	for _, r := range records {
		if r.PropertyType == propertyType {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmptyDataset, propertyType)
	}

	var labeled []models.PropertyRecord
	for _, r := range filtered {
		if r.SalePrice != nil {
			labeled = append(labeled, r)
		}
	}
	if len(labeled) == 0 {
		return nil, fmt.Errorf("%w: training data for %q has no sale_price label", ErrValidation, propertyType)
	}
	if len(labeled) < t.opts.MinTrainingRows {
		return nil, fmt.Errorf("%w: %d rows for %q, need at least %d", ErrInsufficientData, len(labeled), propertyType, t.opts.MinTrainingRows)
	}

	log := t.logger.WithFields(logrus.Fields{"property_type": propertyType, "rows": len(labeled)})
	log.Info("Starting training run")

	engineer := features.NewEngineer(t.logger, t.now())
	table, imputation, err := engineer.Run(labeled, nil)
	if err != nil {
		return nil, err
	}

	prep := preprocess.New()
	if err := prep.Fit(table, propertyType, imputation); err != nil {
		return nil, err
	}
	matrix, err := prep.Transform(table)
	if err != nil {
		return nil, err
	}

	labels, _ := table.Numeric(features.ColSalePrice)
	y := make([]float64, len(labels))
	copy(y, labels)

	trainX, trainY, valX, valY := split(matrix, y, 0.2, t.opts.Seed)
	if len(trainX) == 0 || len(valX) == 0 {
		return nil, fmt.Errorf("%w: %d rows cannot be split for %q", ErrInsufficientData, len(y), propertyType)
	}

	params := boosting.DefaultParams()
	params.Seed = t.opts.Seed
	params.NumRounds = t.opts.MaxRounds
	params.EarlyStoppingRounds = t.opts.EarlyStoppingRounds
	if tune {
		log.Info("Tuning hyperparameters")
		best, err := t.gridSearch(ctx, trainX, trainY)
		if err != nil {
			return nil, err
		}
		best.Seed = params.Seed
		best.NumRounds = params.NumRounds
		best.EarlyStoppingRounds = params.EarlyStoppingRounds
		params = best
		log.WithFields(logrus.Fields{
			"max_depth":     params.MaxDepth,
			"learning_rate": params.LearningRate,
			"subsample":     params.Subsample,
		}).Info("Hyperparameter search complete")
	}

	booster, err := boosting.Train(trainX, trainY, valX, valY, params, prep.FeatureNames())
	if err != nil {
		return nil, err
	}

	metrics := evaluate(booster, trainX, trainY, valX, valY)

	art := &artifacts.ModelArtifact{
		PropertyType: propertyType,
		Booster:      booster,
		Preprocessor: prep.Artifact(),
		Importance:   booster.GainImportance(),
		Metrics:      metrics,
		Params:       params,
		TrainedAt:    t.now().UTC(),
	}
	if err := t.store.SaveModel(art); err != nil {
		return nil, fmt.Errorf("persist artifact for %q: %w", propertyType, err)
	}
	t.registry.Put(art)

	log.WithFields(logrus.Fields{
		"val_rmse":   metrics.ValRMSE,
		"val_mape":   metrics.ValMAPE,
		"best_round": booster.BestRound,
	}).Info("Training run complete")

	return &Result{
		PropertyType: propertyType,
		Rows:         len(labeled),
		Metrics:      metrics,
		Params:       params,
		BestRound:    booster.BestRound,
	}, nil
}

// TrainAll trains every property type concurrently. Types are fully
// independent (separate preprocessor, model and artifact path), so one
// type's failure never affects another's artifact.
func (t *Trainer) TrainAll(ctx context.Context, records []models.PropertyRecord, tune bool) (map[string]*Result, map[string]error) {
	results := make(map[string]*Result)
	failures := make(map[string]error)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, propertyType := range models.PropertyTypes {
		wg.Add(1)
		go func(pt string) {
			defer wg.Done()
			res, err := t.Train(ctx, records, pt, tune)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				t.logger.WithError(err).WithField("property_type", pt).Error("Training failed")
				failures[pt] = err
				return
			}
			results[pt] = res
		}(propertyType)
	}
	wg.Wait()

	return results, failures
}

// split shuffles deterministically and carves off the validation fraction.
func split(x [][]float64, y []float64, valFraction float64, seed int64) (trainX [][]float64, trainY []float64, valX [][]float64, valY []float64) {
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(len(y))

	nVal := int(float64(len(y)) * valFraction)
	if nVal < 1 {
		nVal = 1
	}
	for i, idx := range perm {
		if i < nVal {
			valX = append(valX, x[idx])
			valY = append(valY, y[idx])
		} else {
			trainX = append(trainX, x[idx])
			trainY = append(trainY, y[idx])
		}
	}
	return trainX, trainY, valX, valY
}

func evaluate(b *boosting.Booster, trainX [][]float64, trainY []float64, valX [][]float64, valY []float64) models.Metrics {
	trainPred := b.Predict(trainX)
	valPred := b.Predict(valX)

	residuals := make([]float64, len(valY))
	for i := range valY {
		residuals[i] = valY[i] - valPred[i]
	}

	m := models.Metrics{
		TrainRMSE:    rmse(trainY, trainPred),
		ValRMSE:      rmse(valY, valPred),
		TrainMAE:     mae(trainY, trainPred),
		ValMAE:       mae(valY, valPred),
		TrainR2:      stat.RSquaredFrom(trainPred, trainY, nil),
		ValR2:        stat.RSquaredFrom(valPred, valY, nil),
		TrainMAPE:    mape(trainY, trainPred),
		ValMAPE:      mape(valY, valPred),
		ResidualMean: stat.Mean(residuals, nil),
	}
	if len(residuals) > 1 {
		m.ResidualStd = stat.StdDev(residuals, nil)
	}
	return m
}

func rmse(truth, pred []float64) float64 {
	var sse float64
	for i := range truth {
		d := truth[i] - pred[i]
		sse += d * d
	}
	return math.Sqrt(sse / float64(len(truth)))
}

func mae(truth, pred []float64) float64 {
	var sum float64
	for i := range truth {
		sum += math.Abs(truth[i] - pred[i])
	}
	return sum / float64(len(truth))
}

func mape(truth, pred []float64) float64 {
	var sum float64
	n := 0
	for i := range truth {
		if truth[i] == 0 {
			continue
		}
		sum += math.Abs((truth[i] - pred[i]) / truth[i])
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n) * 100
}
