package model

// Category is a member of the stable transaction taxonomy consumed by
// downstream summary and export collaborators.
type Category string

// The category taxonomy. The enumeration is closed; recategorization can
// only move a transaction between these values.
const (
	CategoryFoodDining    Category = "FOOD_DINING"
	CategoryGroceries     Category = "GROCERIES"
	CategoryTransport     Category = "TRANSPORT"
	CategoryShopping      Category = "SHOPPING"
	CategoryEntertainment Category = "ENTERTAINMENT"
	CategoryUtilities     Category = "UTILITIES"
	CategoryHealth        Category = "HEALTH"
	CategoryEducation     Category = "EDUCATION"
	CategoryTravel        Category = "TRAVEL"
	CategorySubscription  Category = "SUBSCRIPTION"
	CategoryEMI           Category = "EMI"
	CategoryInsurance     Category = "INSURANCE"
	CategoryRent          Category = "RENT"
	CategorySalary        Category = "SALARY"
	CategoryRefund        Category = "REFUND"
	CategoryCashback      Category = "CASHBACK"
	CategoryTransfer      Category = "TRANSFER"
	CategoryInvestment    Category = "INVESTMENT"
	CategoryOther         Category = "OTHER"
)

// AllCategories lists every taxonomy member in a stable order.
func AllCategories() []Category {
	return []Category{
		CategoryFoodDining, CategoryGroceries, CategoryTransport,
		CategoryShopping, CategoryEntertainment, CategoryUtilities,
		CategoryHealth, CategoryEducation, CategoryTravel,
		CategorySubscription, CategoryEMI, CategoryInsurance,
		CategoryInvestment, CategoryRent, CategorySalary, CategoryRefund,
		CategoryCashback, CategoryTransfer, CategoryOther,
	}
}

// Valid reports whether c is a member of the taxonomy.
func (c Category) Valid() bool {
	for _, known := range AllCategories() {
		if c == known {
			return true
		}
	}
	return false
}
