package persistence

import "context"

// FoodDescriptionFilter narrows food description queries.
type FoodDescriptionFilter struct {
	// Category matches food_cat exactly when set.
	Category *string
	// Limit caps the number of rows returned; zero means no limit.
	Limit uint64
}

// FoodDescriptionRepository exposes CRUD operations for food descriptions.
type FoodDescriptionRepository interface {
	CreateFoodDescription(ctx context.Context, food FoodDescription) error
	GetFoodDescription(ctx context.Context, id int64) (FoodDescription, error)
	ListFoodDescriptions(ctx context.Context, filter FoodDescriptionFilter) ([]FoodDescription, error)
	DeleteFoodDescription(ctx context.Context, id int64) error
}
