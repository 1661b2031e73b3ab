package models

import "time"

// Property type tags. Every record carries exactly one; each tag is scoped to
// its own preprocessor/model pair.
const (
	TypeSingleFamily = "single_family"
	TypeCondo        = "condo"
	TypeTownhouse    = "townhouse"
	TypeMultiFamily  = "multi_family"
)

// PropertyTypes lists every supported property type tag.
var PropertyTypes = []string{TypeSingleFamily, TypeCondo, TypeTownhouse, TypeMultiFamily}

// ValidPropertyType reports whether s is a supported property type tag.
func ValidPropertyType(s string) bool {
	for _, t := range PropertyTypes {
		if s == t {
			return true
		}
	}
	return false
}

// PropertyRecord is one property observation. Every field except PropertyType
// is optional; absent fields simply skip the features derived from them.
// SalePrice is the training label and is absent on prediction inputs.
type PropertyRecord struct {
	ID           int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	PropertyType string `json:"property_type" gorm:"index"`

	// Physical attributes
	Bedrooms       *float64 `json:"bedrooms"`
	Bathrooms      *float64 `json:"bathrooms"`
	SquareFeet     *float64 `json:"square_feet"`
	LotSize        *float64 `json:"lot_size"`
	YearBuilt      *int     `json:"year_built"`
	Stories        *int     `json:"stories"`
	Pool           *bool    `json:"pool"`
	GarageSpaces   *int     `json:"garage_spaces"`
	RenovationYear *int     `json:"renovation_year"`
	QualityScore   *float64 `json:"quality_score"`
	ConditionScore *float64 `json:"condition_score"`

	// Location
	ZipCode      *string  `json:"zip_code"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	SchoolRating *float64 `json:"school_rating"`
	CrimeScore   *float64 `json:"crime_score"`

	// Neighborhood
	MedianIncome         *float64 `json:"median_income"`
	PopulationDensity    *float64 `json:"population_density"`
	WalkabilityScore     *float64 `json:"walkability_score"`
	PercentOwnerOccupied *float64 `json:"percent_owner_occupied"`

	// Market
	DaysOnMarket    *int     `json:"days_on_market"`
	ListPrice       *float64 `json:"list_price"`
	PricePerSqft    *float64 `json:"price_per_sqft"`
	InventoryMonths *float64 `json:"inventory_months"`

	// Macroeconomic
	MortgageRate30Yr *float64 `json:"mortgage_rate_30yr"`
	UnemploymentRate *float64 `json:"unemployment_rate"`
	GDPGrowthRate    *float64 `json:"gdp_growth_rate"`
	InflationRate    *float64 `json:"inflation_rate"`

	// Temporal
	SaleDate          *time.Time `json:"sale_date"`
	PreviousSaleDate  *time.Time `json:"previous_sale_date"`
	PreviousSalePrice *float64   `json:"previous_sale_price"`

	// Label (training records only)
	SalePrice *float64 `json:"sale_price"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
