package persistence

// FoodDescription is one row of the food_description table. Every column
// except ID is nullable, so nil means NULL rather than empty.
type FoodDescription struct {
	ID           int64   `db:"id"`
	NdbNo        *string `db:"ndbno_id"`
	ShortDesc    *string `db:"short_desc"`
	FoodCategory *string `db:"food_cat"`
}
