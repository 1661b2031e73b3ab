package boosting

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// synthetic y = 3*x0 + 10 with a second noise feature.
func syntheticData(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := range x {
		x0 := rng.Float64() * 100
		x1 := rng.Float64()
		x[i] = []float64{x0, x1}
		y[i] = 3*x0 + 10 + rng.NormFloat64()
	}
	return x, y
}

func TestTrainLearnsLinearSignal(t *testing.T) {
	x, y := syntheticData(400, 1)
	valX, valY := syntheticData(100, 2)

	params := DefaultParams()
	params.NumRounds = 200
	params.MaxDepth = 4

	b, err := Train(x, y, valX, valY, params, []string{"x0", "noise"})
	require.NoError(t, err)
	require.NotEmpty(t, b.Trees)

	var sse float64
	for i, row := range valX {
		d := b.PredictRow(row) - valY[i]
		sse += d * d
	}
	rmse := math.Sqrt(sse / float64(len(valY)))
	assert.Less(t, rmse, 15.0, "validation RMSE should be far below target std (~87)")
}

func TestTrainDeterministic(t *testing.T) {
	x, y := syntheticData(200, 3)
	params := DefaultParams()
	params.NumRounds = 20

	a, err := Train(x, y, nil, nil, params, []string{"x0", "noise"})
	require.NoError(t, err)
	b, err := Train(x, y, nil, nil, params, []string{"x0", "noise"})
	require.NoError(t, err)

	row := []float64{42, 0.5}
	assert.Equal(t, a.PredictRow(row), b.PredictRow(row))
}

func TestGainImportanceRanksSignal(t *testing.T) {
	x, y := syntheticData(400, 4)
	params := DefaultParams()
	params.NumRounds = 50
	params.ColsampleByTree = 1.0

	b, err := Train(x, y, nil, nil, params, []string{"x0", "noise"})
	require.NoError(t, err)

	imp := b.GainImportance()
	assert.Greater(t, imp["x0"], imp["noise"], "informative feature dominates gain")
}

func TestEarlyStoppingTruncates(t *testing.T) {
	x, y := syntheticData(300, 5)
	valX, valY := syntheticData(80, 6)

	params := DefaultParams()
	params.NumRounds = 1000
	params.EarlyStoppingRounds = 10

	b, err := Train(x, y, valX, valY, params, []string{"x0", "noise"})
	require.NoError(t, err)
	assert.Less(t, len(b.Trees), 1000, "early stopping should cap the ensemble")
	assert.Equal(t, b.BestRound, len(b.Trees))
}

func TestMarshalRoundTrip(t *testing.T) {
	x, y := syntheticData(100, 7)
	params := DefaultParams()
	params.NumRounds = 10

	b, err := Train(x, y, nil, nil, params, []string{"x0", "noise"})
	require.NoError(t, err)

	data, err := b.Marshal()
	require.NoError(t, err)
	restored, err := Unmarshal(data)
	require.NoError(t, err)

	row := []float64{33, 0.1}
	assert.Equal(t, b.PredictRow(row), restored.PredictRow(row))
}

func TestTrainRejectsBadShapes(t *testing.T) {
	_, err := Train(nil, nil, nil, nil, DefaultParams(), nil)
	assert.Error(t, err)

	_, err = Train([][]float64{{1}}, []float64{1}, nil, nil, DefaultParams(), []string{"a", "b"})
	assert.Error(t, err)
}
