package persistence_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/example/fooddb/internal/persistence"
	"github.com/example/fooddb/internal/testfixtures"
)

func newPersistenceFood(opts ...testfixtures.FoodDescriptionOption) persistence.FoodDescription {
	return testfixtures.NewFoodDescriptionFixture(opts...).Persistence()
}

func TestFoodDescriptionRepositoryContract(t *testing.T) {
	ctx := context.Background()
	repo := testfixtures.NewSQLiteHarness(t).Foods

	full := newPersistenceFood(testfixtures.WithFoodCategory("0100"))
	sparse := newPersistenceFood(testfixtures.WithNullColumns())

	for _, food := range []persistence.FoodDescription{full, sparse} {
		if err := repo.CreateFoodDescription(ctx, food); err != nil {
			t.Fatalf("create %d: %v", food.ID, err)
		}
	}

	t.Run("get returns stored columns", func(t *testing.T) {
		for _, want := range []persistence.FoodDescription{full, sparse} {
			got, err := repo.GetFoodDescription(ctx, want.ID)
			if err != nil {
				t.Fatalf("get %d: %v", want.ID, err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("food %d mismatch (-want +got):\n%s", want.ID, diff)
			}
		}
	})

	t.Run("duplicate id", func(t *testing.T) {
		err := repo.CreateFoodDescription(ctx, newPersistenceFood(testfixtures.WithFoodID(full.ID)))
		if !errors.Is(err, persistence.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("list by category", func(t *testing.T) {
		category := "0100"
		foods, err := repo.ListFoodDescriptions(ctx, persistence.FoodDescriptionFilter{Category: &category})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if diff := cmp.Diff([]persistence.FoodDescription{full}, foods); diff != "" {
			t.Errorf("list mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := repo.DeleteFoodDescription(ctx, sparse.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := repo.GetFoodDescription(ctx, sparse.ID); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
		if err := repo.DeleteFoodDescription(ctx, sparse.ID); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second delete, got %v", err)
		}
	})
}

func TestFoodDescriptionRepositoryWithoutTable(t *testing.T) {
	ctx := context.Background()
	repo := testfixtures.NewUnmigratedSQLiteHarness(t).Foods

	err := repo.CreateFoodDescription(ctx, newPersistenceFood())
	if err == nil {
		t.Fatal("expected an error before the table exists")
	}
	for _, sentinel := range []error{persistence.ErrNotFound, persistence.ErrDuplicate, persistence.ErrConstraintViolation} {
		if errors.Is(err, sentinel) {
			t.Fatalf("missing table should not map to %v: %v", sentinel, err)
		}
	}
}
