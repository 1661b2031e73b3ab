package preprocess

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"valora/server/internal/features"
)

// ErrArtifactNotFound is returned when transform is attempted before a
// successful fit or load.
var ErrArtifactNotFound = errors.New("preprocessor artifact not found")

// Artifact is the persisted fit state of a preprocessor: column partition and
// order, standardization parameters, categorical vocabularies and the
// training-batch imputation statistics. It is written by the trainer and
// consumed read-only by the predictor.
type Artifact struct {
	PropertyType       string                   `json:"property_type"`
	NumericColumns     []string                 `json:"numeric_columns"`
	CategoricalColumns []string                 `json:"categorical_columns"`
	Means              map[string]float64       `json:"means"`
	Stds               map[string]float64       `json:"stds"`
	Vocabulary         map[string][]string      `json:"vocabulary"`
	Imputation         features.ImputationStats `json:"imputation"`
	FittedAt           time.Time                `json:"fitted_at"`
}

// Preprocessor standardizes numeric columns and one-hot encodes categorical
// columns using statistics captured at fit time. Each property type owns its
// own instance; applying one type's preprocessor to another type's table is a
// caller error the trainer guards against.
type Preprocessor struct {
	artifact *Artifact
}

// New returns an unfitted preprocessor.
func New() *Preprocessor {
	return &Preprocessor{}
}

// FromArtifact wraps a loaded artifact into a ready-to-transform preprocessor.
func FromArtifact(a *Artifact) *Preprocessor {
	return &Preprocessor{artifact: a}
}

// Artifact returns the fit state, or nil before fit.
func (p *Preprocessor) Artifact() *Artifact {
	return p.artifact
}

// Fit captures column order, per-column mean/std and categorical
// vocabularies from the engineered training table. Label columns are always
// excluded from the feature set. The imputation statistics of the training
// batch travel inside the artifact so prediction-time engineering can reuse
// them.
func (p *Preprocessor) Fit(t *features.Table, propertyType string, imputation *features.ImputationStats) error {
	if t.Len() == 0 {
		return fmt.Errorf("preprocess: empty table")
	}

	a := &Artifact{
		PropertyType: propertyType,
		Means:        make(map[string]float64),
		Stds:         make(map[string]float64),
		Vocabulary:   make(map[string][]string),
		FittedAt:     time.Now().UTC(),
	}
	if imputation != nil {
		a.Imputation = *imputation
	}

	for _, name := range t.NumericColumns() {
		if features.IsLabel(name) {
			continue
		}
		vals, _ := t.Numeric(name)
		mean := stat.Mean(vals, nil)
		std := stat.StdDev(vals, nil)
		if std == 0 || len(vals) < 2 {
			std = 1 // constant column, pass through centered
		}
		a.NumericColumns = append(a.NumericColumns, name)
		a.Means[name] = mean
		a.Stds[name] = std
	}

	for _, name := range t.CategoricalColumns() {
		vals, _ := t.Categorical(name)
		seen := make(map[string]bool)
		var vocab []string
		for _, v := range vals {
			if !seen[v] {
				seen[v] = true
				vocab = append(vocab, v)
			}
		}
		a.CategoricalColumns = append(a.CategoricalColumns, name)
		a.Vocabulary[name] = vocab
	}

	p.artifact = a
	return nil
}

// Transform produces the numeric matrix in the exact column order and
// cardinality captured at fit time. Unseen categories map to an all-zero
// indicator row; fit-time columns missing from the table are filled with the
// fit-time mean (numeric) or zeros (categorical) so the output width never
// changes.
func (p *Preprocessor) Transform(t *features.Table) ([][]float64, error) {
	if p.artifact == nil {
		return nil, ErrArtifactNotFound
	}
	a := p.artifact

	n := t.Len()
	width := len(a.NumericColumns)
	for _, name := range a.CategoricalColumns {
		width += len(a.Vocabulary[name])
	}

	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, width)
	}

	col := 0
	for _, name := range a.NumericColumns {
		mean, std := a.Means[name], a.Stds[name]
		vals, ok := t.Numeric(name)
		for i := 0; i < n; i++ {
			v := mean
			if ok {
				v = vals[i]
			}
			out[i][col] = (v - mean) / std
		}
		col++
	}

	for _, name := range a.CategoricalColumns {
		vocab := a.Vocabulary[name]
		index := make(map[string]int, len(vocab))
		for j, v := range vocab {
			index[v] = j
		}
		vals, ok := t.Categorical(name)
		for i := 0; i < n; i++ {
			if ok {
				if j, seen := index[vals[i]]; seen {
					out[i][col+j] = 1
				}
			}
		}
		col += len(vocab)
	}

	return out, nil
}

// FeatureNames returns the output column names in matrix order; one-hot
// columns are reported as column=value.
func (p *Preprocessor) FeatureNames() []string {
	if p.artifact == nil {
		return nil
	}
	a := p.artifact
	names := make([]string, 0, len(a.NumericColumns))
	names = append(names, a.NumericColumns...)
	for _, name := range a.CategoricalColumns {
		for _, v := range a.Vocabulary[name] {
			names = append(names, name+"="+v)
		}
	}
	return names
}
