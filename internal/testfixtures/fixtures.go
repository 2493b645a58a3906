package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/fooddb/internal/persistence"
)

var foodCounter int64

var referenceTime = time.Date(2017, time.August, 3, 13, 49, 33, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// FoodDescriptionFixture is a deterministic food description row. Fields left
// nil by options are stored as NULL.
type FoodDescriptionFixture struct {
	ID           int64
	NdbNo        *string
	ShortDesc    *string
	FoodCategory *string
}

// FoodDescriptionOption configures the generated fixture.
type FoodDescriptionOption func(*FoodDescriptionFixture)

// NewFoodDescriptionFixture returns a fully populated fixture with a fresh id.
func NewFoodDescriptionFixture(opts ...FoodDescriptionOption) FoodDescriptionFixture {
	idx := atomic.AddInt64(&foodCounter, 1)
	fixture := FoodDescriptionFixture{
		ID:           idx,
		NdbNo:        stringPtr(fmt.Sprintf("%05d", idx)),
		ShortDesc:    stringPtr(fmt.Sprintf("FOOD %03d,RAW", idx)),
		FoodCategory: stringPtr("0100"),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithFoodID overrides the generated id.
func WithFoodID(id int64) FoodDescriptionOption {
	return func(f *FoodDescriptionFixture) {
		f.ID = id
	}
}

// WithFoodCategory sets food_cat.
func WithFoodCategory(category string) FoodDescriptionOption {
	return func(f *FoodDescriptionFixture) {
		f.FoodCategory = stringPtr(category)
	}
}

// WithShortDesc sets short_desc.
func WithShortDesc(desc string) FoodDescriptionOption {
	return func(f *FoodDescriptionFixture) {
		f.ShortDesc = stringPtr(desc)
	}
}

// WithNullColumns clears every nullable column.
func WithNullColumns() FoodDescriptionOption {
	return func(f *FoodDescriptionFixture) {
		f.NdbNo = nil
		f.ShortDesc = nil
		f.FoodCategory = nil
	}
}

// Persistence converts the fixture into a persistence model.
func (f FoodDescriptionFixture) Persistence() persistence.FoodDescription {
	return persistence.FoodDescription{
		ID:           f.ID,
		NdbNo:        cloneString(f.NdbNo),
		ShortDesc:    cloneString(f.ShortDesc),
		FoodCategory: cloneString(f.FoodCategory),
	}
}

func stringPtr(value string) *string {
	return &value
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	return stringPtr(*value)
}
