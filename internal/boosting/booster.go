// Package boosting implements gradient-boosted regression trees with early
// stopping and gain-based feature importances. The pack offers no pure-Go
// library that trains boosted trees in process, so training lives here;
// semantics follow the usual squared-error formulation (each round fits a
// depth-capped tree to the residuals, scaled by the learning rate).
package boosting

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
)

// Params are the tunable hyperparameters of a training run.
type Params struct {
	MaxDepth            int     `json:"max_depth"`
	LearningRate        float64 `json:"learning_rate"`
	NumRounds           int     `json:"num_rounds"`
	Subsample           float64 `json:"subsample"`
	ColsampleByTree     float64 `json:"colsample_bytree"`
	MinChildWeight      float64 `json:"min_child_weight"`
	Gamma               float64 `json:"gamma"`
	EarlyStoppingRounds int     `json:"early_stopping_rounds"`
	Seed                int64   `json:"seed"`
}

// DefaultParams mirrors the moderate defaults used when tuning is skipped.
func DefaultParams() Params {
	return Params{
		MaxDepth:            6,
		LearningRate:        0.1,
		NumRounds:           1000,
		Subsample:           0.8,
		ColsampleByTree:     0.8,
		MinChildWeight:      1,
		Gamma:               0,
		EarlyStoppingRounds: 50,
		Seed:                42,
	}
}

// Booster is a trained ensemble. Immutable once trained; persisted as JSON.
type Booster struct {
	BaseScore    float64  `json:"base_score"`
	LearningRate float64  `json:"learning_rate"`
	Trees        []Tree   `json:"trees"`
	FeatureNames []string `json:"feature_names"`
	BestRound    int      `json:"best_round"`
}

// Train fits an ensemble on x/y, monitoring valX/valY for early stopping:
// training stops once validation RMSE has not improved for
// EarlyStoppingRounds rounds, and the ensemble is truncated to the best
// round. Validation data may be empty, in which case all rounds run.
func Train(x [][]float64, y []float64, valX [][]float64, valY []float64, params Params, featureNames []string) (*Booster, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("boosting: bad training shape: %d rows, %d labels", len(x), len(y))
	}
	nFeatures := len(x[0])
	if len(featureNames) != nFeatures {
		return nil, fmt.Errorf("boosting: %d feature names for %d features", len(featureNames), nFeatures)
	}

	rng := rand.New(rand.NewSource(params.Seed))

	base := 0.0
	for _, v := range y {
		base += v
	}
	base /= float64(len(y))

	b := &Booster{
		BaseScore:    base,
		LearningRate: params.LearningRate,
		FeatureNames: append([]string(nil), featureNames...),
	}

	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = base
	}
	valPred := make([]float64, len(valY))
	for i := range valPred {
		valPred[i] = base
	}

	residual := make([]float64, len(y))
	minSamples := int(math.Max(1, params.MinChildWeight))

	bestRMSE := math.Inf(1)
	bestRound := 0
	sinceBest := 0

	for round := 0; round < params.NumRounds; round++ {
		for i := range residual {
			residual[i] = y[i] - pred[i]
		}

		rows := sampleRows(len(y), params.Subsample, rng)
		cols := sampleCols(nFeatures, params.ColsampleByTree, rng)

		grower := &treeGrower{
			x:          x,
			residual:   residual,
			cols:       cols,
			maxDepth:   params.MaxDepth,
			minSamples: minSamples,
			minGain:    params.Gamma,
		}
		tree := grower.grow(rows)
		b.Trees = append(b.Trees, *tree)

		for i := range pred {
			pred[i] += params.LearningRate * tree.Predict(x[i])
		}

		if len(valY) == 0 {
			bestRound = round + 1
			continue
		}

		var sse float64
		for i := range valY {
			valPred[i] += params.LearningRate * tree.Predict(valX[i])
			d := valY[i] - valPred[i]
			sse += d * d
		}
		rmse := math.Sqrt(sse / float64(len(valY)))
		if rmse < bestRMSE {
			bestRMSE = rmse
			bestRound = round + 1
			sinceBest = 0
		} else {
			sinceBest++
			if params.EarlyStoppingRounds > 0 && sinceBest >= params.EarlyStoppingRounds {
				break
			}
		}
	}

	b.Trees = b.Trees[:bestRound]
	b.BestRound = bestRound
	return b, nil
}

// PredictRow scores a single feature row.
func (b *Booster) PredictRow(row []float64) float64 {
	out := b.BaseScore
	for i := range b.Trees {
		out += b.LearningRate * b.Trees[i].Predict(row)
	}
	return out
}

// Predict scores a batch.
func (b *Booster) Predict(rows [][]float64) []float64 {
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[i] = b.PredictRow(row)
	}
	return out
}

// GainImportance sums split gains per feature across the ensemble.
func (b *Booster) GainImportance() map[string]float64 {
	out := make(map[string]float64)
	for i := range b.Trees {
		for _, n := range b.Trees[i].Nodes {
			if n.Leaf {
				continue
			}
			out[b.FeatureNames[n.Feature]] += n.Gain
		}
	}
	return out
}

// Marshal serializes the booster for artifact storage.
func (b *Booster) Marshal() ([]byte, error) {
	return json.MarshalIndent(b, "", " ")
}

// Unmarshal restores a persisted booster.
func Unmarshal(data []byte) (*Booster, error) {
	var b Booster
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("boosting: decode model: %w", err)
	}
	return &b, nil
}

func sampleRows(n int, fraction float64, rng *rand.Rand) []int {
	if fraction >= 1 || fraction <= 0 {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = i
		}
		return rows
	}
	k := int(math.Max(1, fraction*float64(n)))
	perm := rng.Perm(n)[:k]
	return perm
}

func sampleCols(n int, fraction float64, rng *rand.Rand) []int {
	if fraction >= 1 || fraction <= 0 {
		cols := make([]int, n)
		for i := range cols {
			cols[i] = i
		}
		return cols
	}
	k := int(math.Max(1, fraction*float64(n)))
	perm := rng.Perm(n)[:k]
	return perm
}
