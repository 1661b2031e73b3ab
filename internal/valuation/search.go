package valuation

import (
	"context"
	"math"
	"math/rand"
	"strconv"
	"sync"

	"valora/server/internal/boosting"
)

// Hyperparameter grid covering depth, learning rate, boosting rounds, row
// and column subsampling, minimum child weight and gamma. The candidate set
// is shuffled deterministically and capped by MaxCandidates so search cost
// stays within the configured budget.
var searchGrid = struct {
	maxDepth        []int
	learningRate    []float64
	numRounds       []int
	subsample       []float64
	colsampleByTree []float64
	minChildWeight  []float64
	gamma           []float64
}{
	maxDepth:        []int{3, 5, 7},
	learningRate:    []float64{0.05, 0.1, 0.2},
	numRounds:       []int{150},
	subsample:       []float64{0.8, 1.0},
	colsampleByTree: []float64{0.8, 1.0},
	minChildWeight:  []float64{1, 3, 5},
	gamma:           []float64{0, 0.1, 0.2},
}

func buildCandidates(seed int64) []boosting.Params {
	var out []boosting.Params
	for _, depth := range searchGrid.maxDepth {
		for _, lr := range searchGrid.learningRate {
			for _, rounds := range searchGrid.numRounds {
				for _, sub := range searchGrid.subsample {
					for _, col := range searchGrid.colsampleByTree {
						for _, mcw := range searchGrid.minChildWeight {
							for _, gamma := range searchGrid.gamma {
								out = append(out, boosting.Params{
									MaxDepth:        depth,
									LearningRate:    lr,
									NumRounds:       rounds,
									Subsample:       sub,
									ColsampleByTree: col,
									MinChildWeight:  mcw,
									Gamma:           gamma,
									Seed:            seed,
								})
							}
						}
					}
				}
			}
		}
	}

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// gridSearch scores candidates by mean squared error under k-fold
// cross-validation on the training split only, parallelized across a bounded
// worker pool. Candidates share read-only training data; each worker owns
// its score slot, so no further synchronization is needed.
func (t *Trainer) gridSearch(ctx context.Context, x [][]float64, y []float64) (boosting.Params, error) {
	candidates := buildCandidates(t.opts.Seed)
	if len(candidates) > t.opts.MaxCandidates {
		candidates = candidates[:t.opts.MaxCandidates]
	}

	scores := make([]float64, len(candidates))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < t.opts.SearchWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				scores[idx] = t.crossValidate(x, y, candidates[idx])
			}
		}()
	}

dispatch:
	for idx := range candidates {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return boosting.Params{}, err
	}

	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] < scores[best] {
			best = i
		}
	}
	return candidates[best], nil
}

// crossValidate returns the mean MSE across folds; failed fits score +Inf.
func (t *Trainer) crossValidate(x [][]float64, y []float64, params boosting.Params) float64 {
	k := t.opts.CVFolds
	n := len(y)
	if k > n {
		k = n
	}

	rng := rand.New(rand.NewSource(t.opts.Seed))
	perm := rng.Perm(n)

	var total float64
	folds := 0
	for fold := 0; fold < k; fold++ {
		var trainX, holdX [][]float64
		var trainY, holdY []float64
		for i, idx := range perm {
			if i%k == fold {
				holdX = append(holdX, x[idx])
				holdY = append(holdY, y[idx])
			} else {
				trainX = append(trainX, x[idx])
				trainY = append(trainY, y[idx])
			}
		}
		if len(trainX) == 0 || len(holdX) == 0 {
			continue
		}

		b, err := boosting.Train(trainX, trainY, nil, nil, params, dummyNames(len(x[0])))
		if err != nil {
			return math.Inf(1)
		}

		var sse float64
		for i, row := range holdX {
			d := b.PredictRow(row) - holdY[i]
			sse += d * d
		}
		total += sse / float64(len(holdY))
		folds++
	}

	if folds == 0 {
		return math.Inf(1)
	}
	return total / float64(folds)
}

// dummyNames satisfies the booster's shape check; names are irrelevant while
// scoring candidates.
func dummyNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = "f" + strconv.Itoa(i)
	}
	return names
}
