package features

import (
	"time"

	"valora/server/internal/models"
)

// Kind tags how a column is treated by the pipeline.
type Kind int

const (
	// KindNumeric columns are imputed with the batch median and standardized.
	KindNumeric Kind = iota
	// KindCategorical columns are imputed with the batch mode and one-hot encoded.
	KindCategorical
	// KindTime columns feed temporal derivations and never reach the model directly.
	KindTime
)

// FieldSpec declares one raw input column: its name, kind and how to read it
// from a PropertyRecord. Exactly one of the accessors is set, matching Kind.
type FieldSpec struct {
	Name  string
	Kind  Kind
	Float func(*models.PropertyRecord) (float64, bool)
	Str   func(*models.PropertyRecord) (string, bool)
	Time  func(*models.PropertyRecord) (time.Time, bool)
}

// Label columns are carried through engineering but always excluded from the
// model's feature set.
const (
	ColSalePrice    = "sale_price"
	ColLogSalePrice = "log_sale_price"
)

// IsLabel reports whether the column is a training label.
func IsLabel(name string) bool {
	return name == ColSalePrice || name == ColLogSalePrice
}

func floatField(get func(*models.PropertyRecord) *float64) func(*models.PropertyRecord) (float64, bool) {
	return func(r *models.PropertyRecord) (float64, bool) {
		if v := get(r); v != nil {
			return *v, true
		}
		return 0, false
	}
}

func intField(get func(*models.PropertyRecord) *int) func(*models.PropertyRecord) (float64, bool) {
	return func(r *models.PropertyRecord) (float64, bool) {
		if v := get(r); v != nil {
			return float64(*v), true
		}
		return 0, false
	}
}

func boolField(get func(*models.PropertyRecord) *bool) func(*models.PropertyRecord) (float64, bool) {
	return func(r *models.PropertyRecord) (float64, bool) {
		if v := get(r); v != nil {
			if *v {
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}
}

func strField(get func(*models.PropertyRecord) *string) func(*models.PropertyRecord) (string, bool) {
	return func(r *models.PropertyRecord) (string, bool) {
		if v := get(r); v != nil {
			return *v, true
		}
		return "", false
	}
}

func timeField(get func(*models.PropertyRecord) *time.Time) func(*models.PropertyRecord) (time.Time, bool) {
	return func(r *models.PropertyRecord) (time.Time, bool) {
		if v := get(r); v != nil {
			return *v, true
		}
		return time.Time{}, false
	}
}

// BaseSchema declares every raw column the engineer understands. A column is
// present in a batch when at least one record carries a value for it.
var BaseSchema = []FieldSpec{
	// Physical
	{Name: "bedrooms", Kind: KindNumeric, Float: floatField(func(r *models.PropertyRecord) *float64 { return r.Bedrooms })},
	{Name: "bathrooms", Kind: KindNumeric, Float: floatField(func(r *models.PropertyRecord) *float64 { return r.Bathrooms })},
	{Name: "square_feet", Kind: KindNumeric, Float: floatField(func(r *models.PropertyRecord) *float64 { return r.SquareFeet })},
	{Name: "lot_size", Kind: KindNumeric, Float: floatField(func(r *models.PropertyRecord) *float64 { return r.LotSize })},
	{Name: "year_built", Kind: KindNumeric, Float: intField(func(r *models.PropertyRecord) *int { return r.YearBuilt })},
	{Name: "stories", Kind: KindNumeric, Float: intField(func(r *models.PropertyRecord) *int { return r.Stories })},
	{Name: "pool", Kind: KindNumeric, Float: boolField(func(r *models.PropertyRecord) *bool { return r.Pool })},
	{Name: "garage_spaces", Kind: KindNumeric, Float: intField(func(r *models.PropertyRecord) *int { return r.GarageSpaces })},
	{Name: "renovation_year", Kind: KindNumeric, Float: intField(func(r *models.PropertyRecord) *int { return r.RenovationYear })},
	{Name: "quality_score", Kind: KindNumeric, Float: floatField(func(r *models.PropertyRecord) *float64 { return r.QualityScore })},
	{Name: "condition_score", Kind: KindNumeric, Float: floatField(func(r *models.PropertyRecord) *float64 { return r.ConditionScore })},

	// Location
	{Name: "zip_code", Kind: KindCategorical, Str: strField(func(r *models.PropertyRecord) *string { return r.ZipCode })},
	{Name: "latitude", Kind: KindNumeric, Float: floatField(func(r *models.PropertyRecord) *float64 { return r.Latitude })},
	{Name: "longitude", Kind: KindNumeric, Float: floatField(func(r *models.PropertyRecord) *float64 { return r.Longitude })},
	{Name: "school_rating", Kind: KindNumeric, Float: floatField(func(r *models.PropertyRecord) *float64 { return r.SchoolRating })},
	{Name: "crime_score", Kind: KindNumeric, Float: floatField(func(r *models.PropertyRecord) *float64 { return r.CrimeScore })},

	// Neighborhood
	{Name: "median_income", Kind: KindNumeric, Float: floatField(func(r *models.PropertyRecord) *float64 { return r.MedianIncome })},
	{Name: "population_density", Kind: KindNumeric, Float: floatField(func(r *models.PropertyRecord) *float64 { return r.PopulationDensity })},
	{Name: "walkability_score", Kind: KindNumeric, Float: floatField(func(r *models.PropertyRecord) *float64 { return r.WalkabilityScore })},
	{Name: "percent_owner_occupied", Kind: KindNumeric, Float: floatField(func(r *models.PropertyRecord) *float64 { return r.PercentOwnerOccupied })},

	// Market
	{Name: "days_on_market", Kind: KindNumeric, Float: intField(func(r *models.PropertyRecord) *int { return r.DaysOnMarket })},
	{Name: "list_price", Kind: KindNumeric, Float: floatField(func(r *models.PropertyRecord) *float64 { return r.ListPrice })},
	{Name: "price_per_sqft", Kind: KindNumeric, Float: floatField(func(r *models.PropertyRecord) *float64 { return r.PricePerSqft })},
	{Name: "inventory_months", Kind: KindNumeric, Float: floatField(func(r *models.PropertyRecord) *float64 { return r.InventoryMonths })},

	// Macroeconomic
	{Name: "mortgage_rate_30yr", Kind: KindNumeric, Float: floatField(func(r *models.PropertyRecord) *float64 { return r.MortgageRate30Yr })},
	{Name: "unemployment_rate", Kind: KindNumeric, Float: floatField(func(r *models.PropertyRecord) *float64 { return r.UnemploymentRate })},
	{Name: "gdp_growth_rate", Kind: KindNumeric, Float: floatField(func(r *models.PropertyRecord) *float64 { return r.GDPGrowthRate })},
	{Name: "inflation_rate", Kind: KindNumeric, Float: floatField(func(r *models.PropertyRecord) *float64 { return r.InflationRate })},

	// Temporal
	{Name: "sale_date", Kind: KindTime, Time: timeField(func(r *models.PropertyRecord) *time.Time { return r.SaleDate })},
	{Name: "previous_sale_date", Kind: KindTime, Time: timeField(func(r *models.PropertyRecord) *time.Time { return r.PreviousSaleDate })},
	{Name: "previous_sale_price", Kind: KindNumeric, Float: floatField(func(r *models.PropertyRecord) *float64 { return r.PreviousSalePrice })},

	// Label
	{Name: ColSalePrice, Kind: KindNumeric, Float: floatField(func(r *models.PropertyRecord) *float64 { return r.SalePrice })},
}
