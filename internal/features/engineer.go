package features

import (
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/sirupsen/logrus"

	"valora/server/internal/models"
)

// Regional reference points for geo-distance features: the primary
// commercial, transport and civic centers of the coverage area.
var referencePoints = []struct {
	name string
	pt   orb.Point // lon, lat
}{
	{"distance_to_commercial_center", orb.Point{-115.1728, 36.1147}},
	{"distance_to_transport_hub", orb.Point{-115.1537, 36.0840}},
	{"distance_to_civic_center", orb.Point{-115.1398, 36.1699}},
}

// ImputationStats holds the median/mode fill values captured from a training
// batch. Prediction-time engineering reuses these instead of recomputing them
// from whatever batch happens to be in flight.
type ImputationStats struct {
	Medians map[string]float64 `json:"medians"`
	Modes   map[string]string  `json:"modes"`
}

// Engineer turns batches of property records into feature tables. Output is a
// pure function of the input records and the evaluation date, so re-running
// on the same inputs yields identical tables.
type Engineer struct {
	logger   *logrus.Logger
	evalDate time.Time
}

// NewEngineer creates an engineer pinned to the given evaluation date.
func NewEngineer(logger *logrus.Logger, evalDate time.Time) *Engineer {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Engineer{logger: logger, evalDate: evalDate}
}

// Run engineers the batch. With stats == nil (training) imputation statistics
// are computed from the batch and returned; otherwise (prediction) the given
// training-time statistics are applied. Missing optional columns skip their
// derived features, they never fail.
func (e *Engineer) Run(records []models.PropertyRecord, stats *ImputationStats) (*Table, *ImputationStats, error) {
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("engineer: empty batch")
	}

	t := e.buildBase(records, stats)

	if stats == nil {
		stats = computeStats(t)
	}
	impute(t, stats)

	for _, d := range derivations {
		if !d.ready(t) {
			continue
		}
		d.apply(e, t)
	}

	return t, stats, nil
}

// buildBase extracts the raw columns. A column is present when at least one
// record carries it; with training stats supplied, columns known to the stats
// are materialized even when absent so imputation can fill them.
func (e *Engineer) buildBase(records []models.PropertyRecord, stats *ImputationStats) *Table {
	n := len(records)
	t := NewTable(n)

	for _, spec := range BaseSchema {
		switch spec.Kind {
		case KindNumeric:
			vals := make([]float64, n)
			present := false
			for i := range records {
				if v, ok := spec.Float(&records[i]); ok {
					vals[i] = v
					present = true
				} else {
					vals[i] = math.NaN()
				}
			}
			known := false
			if stats != nil && !IsLabel(spec.Name) {
				_, known = stats.Medians[spec.Name]
			}
			if present || known {
				t.SetNumeric(spec.Name, vals)
			}
		case KindCategorical:
			vals := make([]string, n)
			present := false
			for i := range records {
				if v, ok := spec.Str(&records[i]); ok {
					vals[i] = v
					present = true
				}
			}
			known := false
			if stats != nil {
				_, known = stats.Modes[spec.Name]
			}
			if present || known {
				t.SetCategorical(spec.Name, vals)
			}
		case KindTime:
			vals := make([]time.Time, n)
			present := false
			for i := range records {
				if v, ok := spec.Time(&records[i]); ok {
					vals[i] = v
					present = true
				}
			}
			if present {
				t.SetTime(spec.Name, vals)
			}
		}
	}

	return t
}

// computeStats captures batch medians and modes. Label columns are excluded;
// they are validated, never imputed.
func computeStats(t *Table) *ImputationStats {
	stats := &ImputationStats{
		Medians: make(map[string]float64),
		Modes:   make(map[string]string),
	}

	for _, name := range t.NumericColumns() {
		if IsLabel(name) {
			continue
		}
		vals, _ := t.Numeric(name)
		var clean []float64
		for _, v := range vals {
			if !math.IsNaN(v) {
				clean = append(clean, v)
			}
		}
		if len(clean) > 0 {
			stats.Medians[name] = median(clean)
		}
	}

	for _, name := range t.CategoricalColumns() {
		vals, _ := t.Categorical(name)
		stats.Modes[name] = mode(vals)
	}

	return stats
}

func impute(t *Table, stats *ImputationStats) {
	for _, name := range t.NumericColumns() {
		if IsLabel(name) {
			continue
		}
		fill, ok := stats.Medians[name]
		if !ok {
			continue
		}
		vals, _ := t.Numeric(name)
		for i, v := range vals {
			if math.IsNaN(v) {
				vals[i] = fill
			}
		}
	}

	for _, name := range t.CategoricalColumns() {
		fill, ok := stats.Modes[name]
		if !ok {
			fill = "Unknown"
		}
		vals, _ := t.Categorical(name)
		for i, v := range vals {
			if v == "" {
				vals[i] = fill
			}
		}
	}
}

func median(vals []float64) float64 {
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// mode returns the most frequent non-empty value; ties break to the
// lexicographically smallest so the result is deterministic. An all-empty
// column yields "Unknown".
func mode(vals []string) string {
	counts := make(map[string]int)
	for _, v := range vals {
		if v != "" {
			counts[v]++
		}
	}
	if len(counts) == 0 {
		return "Unknown"
	}
	best, bestCount := "", -1
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	return best
}

// derivation is one declarative feature rule: the columns it needs, the
// columns that must be strictly positive across the batch, and how to apply
// it. A rule whose preconditions fail is skipped, never an error.
type derivation struct {
	name     string
	requires []string
	positive []string
	apply    func(e *Engineer, t *Table)
}

func (d derivation) ready(t *Table) bool {
	for _, col := range d.requires {
		if !t.Has(col) {
			return false
		}
	}
	for _, col := range d.positive {
		vals, ok := t.Numeric(col)
		if !ok {
			return false
		}
		for _, v := range vals {
			if v <= 0 {
				return false
			}
		}
	}
	return true
}

var derivations = []derivation{
	{
		name:     "price_per_sqft",
		requires: []string{"square_feet"},
		positive: []string{"square_feet"},
		apply: func(e *Engineer, t *Table) {
			sqft, _ := t.Numeric("square_feet")
			price, ok := t.Numeric(ColSalePrice)
			if !ok {
				if price, ok = t.Numeric("list_price"); !ok {
					return
				}
			}
			out := make([]float64, t.Len())
			for i := range out {
				out[i] = price[i] / sqft[i]
			}
			t.SetNumeric("price_per_sqft", out)
		},
	},
	{
		name:     "property_age",
		requires: []string{"year_built"},
		apply: func(e *Engineer, t *Table) {
			yb, _ := t.Numeric("year_built")
			year := float64(e.evalDate.Year())
			out := make([]float64, t.Len())
			for i := range out {
				out[i] = year - yb[i]
			}
			t.SetNumeric("property_age", out)
		},
	},
	{
		name:     "years_since_renovation",
		requires: []string{"renovation_year"},
		apply: func(e *Engineer, t *Table) {
			reno, _ := t.Numeric("renovation_year")
			yb, hasYearBuilt := t.Numeric("year_built")
			year := float64(e.evalDate.Year())
			out := make([]float64, t.Len())
			for i := range out {
				if reno[i] <= 0 && hasYearBuilt {
					out[i] = year - yb[i]
				} else {
					out[i] = year - reno[i]
				}
			}
			t.SetNumeric("years_since_renovation", out)
		},
	},
	{
		name:     "total_rooms",
		requires: []string{"bedrooms", "bathrooms"},
		apply: func(e *Engineer, t *Table) {
			bed, _ := t.Numeric("bedrooms")
			bath, _ := t.Numeric("bathrooms")
			out := make([]float64, t.Len())
			for i := range out {
				out[i] = bed[i] + bath[i]
			}
			t.SetNumeric("total_rooms", out)
		},
	},
	{
		name:     "bed_bath_ratio",
		requires: []string{"bedrooms"},
		positive: []string{"bathrooms"},
		apply: func(e *Engineer, t *Table) {
			bed, _ := t.Numeric("bedrooms")
			bath, _ := t.Numeric("bathrooms")
			out := make([]float64, t.Len())
			for i := range out {
				out[i] = bed[i] / bath[i]
			}
			t.SetNumeric("bed_bath_ratio", out)
		},
	},
	{
		name:     "living_area_ratio",
		requires: []string{"square_feet"},
		positive: []string{"bedrooms"},
		apply: func(e *Engineer, t *Table) {
			sqft, _ := t.Numeric("square_feet")
			bed, _ := t.Numeric("bedrooms")
			out := make([]float64, t.Len())
			for i := range out {
				out[i] = sqft[i] / bed[i]
			}
			t.SetNumeric("living_area_ratio", out)
		},
	},
	{
		name:     "lot_to_house_ratio",
		requires: []string{"lot_size"},
		positive: []string{"square_feet"},
		apply: func(e *Engineer, t *Table) {
			lot, _ := t.Numeric("lot_size")
			sqft, _ := t.Numeric("square_feet")
			out := make([]float64, t.Len())
			for i := range out {
				out[i] = lot[i] / sqft[i]
			}
			t.SetNumeric("lot_to_house_ratio", out)
		},
	},
	{
		name:     "calendar",
		requires: []string{"sale_date"},
		apply: func(e *Engineer, t *Table) {
			dates, _ := t.Time("sale_date")
			n := t.Len()
			month := make([]float64, n)
			quarter := make([]float64, n)
			year := make([]float64, n)
			dow := make([]float64, n)
			weekend := make([]float64, n)
			summer := make([]float64, n)
			winter := make([]float64, n)
			for i, d := range dates {
				m := int(d.Month())
				month[i] = float64(m)
				quarter[i] = float64((m-1)/3 + 1)
				year[i] = float64(d.Year())
				wd := d.Weekday()
				dow[i] = float64(wd)
				if wd == time.Saturday || wd == time.Sunday {
					weekend[i] = 1
				}
				if m >= 6 && m <= 8 {
					summer[i] = 1
				}
				if m == 12 || m <= 2 {
					winter[i] = 1
				}
			}
			t.SetNumeric("month_of_year", month)
			t.SetNumeric("quarter", quarter)
			t.SetNumeric("year", year)
			t.SetNumeric("day_of_week", dow)
			t.SetNumeric("is_weekend", weekend)
			t.SetNumeric("is_summer", summer)
			t.SetNumeric("is_winter", winter)
		},
	},
	{
		name:     "days_since_last_sale",
		requires: []string{"sale_date", "previous_sale_date"},
		apply: func(e *Engineer, t *Table) {
			sale, _ := t.Time("sale_date")
			prev, _ := t.Time("previous_sale_date")
			out := make([]float64, t.Len())
			for i := range out {
				out[i] = sale[i].Sub(prev[i]).Hours() / 24
			}
			t.SetNumeric("days_since_last_sale", out)
		},
	},
	{
		name:     "price_change_since_last_sale",
		requires: []string{ColSalePrice, "previous_sale_price"},
		apply: func(e *Engineer, t *Table) {
			price, _ := t.Numeric(ColSalePrice)
			prev, _ := t.Numeric("previous_sale_price")
			out := make([]float64, t.Len())
			for i := range out {
				out[i] = price[i] - prev[i]
			}
			t.SetNumeric("price_change_since_last_sale", out)
		},
	},
	{
		name:     "price_change_pct",
		requires: []string{ColSalePrice},
		positive: []string{"previous_sale_price"},
		apply: func(e *Engineer, t *Table) {
			price, _ := t.Numeric(ColSalePrice)
			prev, _ := t.Numeric("previous_sale_price")
			out := make([]float64, t.Len())
			for i := range out {
				out[i] = (price[i] - prev[i]) / prev[i] * 100
			}
			t.SetNumeric("price_change_pct", out)
		},
	},
	{
		name:     "geo_distances",
		requires: []string{"latitude", "longitude"},
		apply: func(e *Engineer, t *Table) {
			lat, _ := t.Numeric("latitude")
			lon, _ := t.Numeric("longitude")
			for _, ref := range referencePoints {
				out := make([]float64, t.Len())
				for i := range out {
					out[i] = geo.DistanceHaversine(orb.Point{lon[i], lat[i]}, ref.pt) / 1000
				}
				t.SetNumeric(ref.name, out)
			}
		},
	},
	{
		name:     "neighborhood_quality",
		requires: []string{"school_rating", "crime_score", "walkability_score"},
		apply: func(e *Engineer, t *Table) {
			school := normalizeTen(mustNumeric(t, "school_rating"))
			crime := normalizeTen(mustNumeric(t, "crime_score"))
			walk := normalizeTen(mustNumeric(t, "walkability_score"))
			out := make([]float64, t.Len())
			for i := range out {
				out[i] = school[i]*0.4 + (10-crime[i])*0.4 + walk[i]*0.2
			}
			t.SetNumeric("neighborhood_quality", out)
		},
	},
	{
		name:     "economic_indices",
		requires: []string{"mortgage_rate_30yr", "unemployment_rate"},
		apply: func(e *Engineer, t *Table) {
			rate, _ := t.Numeric("mortgage_rate_30yr")
			unemp, _ := t.Numeric("unemployment_rate")
			afford := make([]float64, t.Len())
			health := make([]float64, t.Len())
			for i := range afford {
				afford[i] = 10 - rate[i]
				health[i] = 10 - unemp[i]
			}
			t.SetNumeric("affordability_index", afford)
			t.SetNumeric("economic_health_index", health)
		},
	},
	{
		name:     ColLogSalePrice,
		requires: []string{ColSalePrice},
		apply: func(e *Engineer, t *Table) {
			t.SetNumeric(ColLogSalePrice, log1pColumn(mustNumeric(t, ColSalePrice)))
		},
	},
	{
		name:     "log_square_feet",
		requires: []string{"square_feet"},
		apply: func(e *Engineer, t *Table) {
			t.SetNumeric("log_square_feet", log1pColumn(mustNumeric(t, "square_feet")))
		},
	},
	{
		name:     "log_lot_size",
		requires: []string{"lot_size"},
		apply: func(e *Engineer, t *Table) {
			t.SetNumeric("log_lot_size", log1pColumn(mustNumeric(t, "lot_size")))
		},
	},
	{
		name:     "log_price_per_sqft",
		requires: []string{"price_per_sqft"},
		apply: func(e *Engineer, t *Table) {
			t.SetNumeric("log_price_per_sqft", log1pColumn(mustNumeric(t, "price_per_sqft")))
		},
	},
}

func mustNumeric(t *Table, name string) []float64 {
	vals, _ := t.Numeric(name)
	return vals
}

func log1pColumn(vals []float64) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = math.Log1p(v)
	}
	return out
}

// normalizeTen rescales a column to the 0-10 range when its batch maximum
// exceeds 10; scores already on that scale pass through unchanged.
func normalizeTen(vals []float64) []float64 {
	max := math.Inf(-1)
	for _, v := range vals {
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(vals))
	copy(out, vals)
	if max > 10 {
		for i := range out {
			out[i] /= 10
		}
	}
	return out
}
