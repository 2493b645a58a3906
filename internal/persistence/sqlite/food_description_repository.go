package sqlite

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/example/fooddb/internal/persistence"
)

const foodDescriptionTable = "food_description"

var foodDescriptionColumns = []string{"id", "ndbno_id", "short_desc", "food_cat"}

// FoodDescriptionRepository implements persistence.FoodDescriptionRepository using SQLite
type FoodDescriptionRepository struct {
	pool    *ConnectionPool
	builder sq.StatementBuilderType
	retry   *RetryHelper
}

// NewFoodDescriptionRepository creates a new SQLite food description repository
func NewFoodDescriptionRepository(pool *ConnectionPool, retry RetryConfig) *FoodDescriptionRepository {
	return &FoodDescriptionRepository{
		pool:    pool,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
		retry:   NewRetryHelper(retry),
	}
}

// CreateFoodDescription inserts a new row. An existing id yields persistence.ErrDuplicate.
func (r *FoodDescriptionRepository) CreateFoodDescription(ctx context.Context, food persistence.FoodDescription) error {
	query, args, err := r.insert(food)
	if err != nil {
		return err
	}

	return r.retry.WithRetry(ctx, func() error {
		_, err := r.pool.DB().ExecContext(ctx, query, args...)
		return err
	})
}

// GetFoodDescription retrieves a row by id.
func (r *FoodDescriptionRepository) GetFoodDescription(ctx context.Context, id int64) (persistence.FoodDescription, error) {
	query, args, err := r.builder.
		Select(foodDescriptionColumns...).
		From(foodDescriptionTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return persistence.FoodDescription{}, fmt.Errorf("build select: %w", err)
	}

	var food persistence.FoodDescription
	err = r.retry.WithRetry(ctx, func() error {
		return r.pool.DB().GetContext(ctx, &food, query, args...)
	})
	if err != nil {
		return persistence.FoodDescription{}, err
	}

	return food, nil
}

// ListFoodDescriptions returns rows matching filter ordered by id.
func (r *FoodDescriptionRepository) ListFoodDescriptions(ctx context.Context, filter persistence.FoodDescriptionFilter) ([]persistence.FoodDescription, error) {
	builder := r.builder.
		Select(foodDescriptionColumns...).
		From(foodDescriptionTable).
		OrderBy("id ASC")

	if filter.Category != nil {
		builder = builder.Where(sq.Eq{"food_cat": *filter.Category})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(filter.Limit)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	foods := make([]persistence.FoodDescription, 0)
	err = r.retry.WithRetry(ctx, func() error {
		foods = foods[:0]
		return r.pool.DB().SelectContext(ctx, &foods, query, args...)
	})
	if err != nil {
		return nil, err
	}

	return foods, nil
}

// DeleteFoodDescription removes a row by id.
func (r *FoodDescriptionRepository) DeleteFoodDescription(ctx context.Context, id int64) error {
	query, args, err := r.builder.
		Delete(foodDescriptionTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	var affected int64
	err = r.retry.WithRetry(ctx, func() error {
		result, err := r.pool.DB().ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}

	return nil
}

// ImportFoodDescriptions inserts every row in a single transaction. Any
// failing row rolls back the whole batch.
func (r *FoodDescriptionRepository) ImportFoodDescriptions(ctx context.Context, foods []persistence.FoodDescription) error {
	type statement struct {
		query string
		args  []any
	}

	statements := make([]statement, 0, len(foods))
	for _, food := range foods {
		query, args, err := r.insert(food)
		if err != nil {
			return err
		}
		statements = append(statements, statement{query: query, args: args})
	}

	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sqlx.Tx) error {
			for i, stmt := range statements {
				if _, err := tx.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
					return fmt.Errorf("import row %d (id %d): %w", i+1, foods[i].ID, err)
				}
			}
			return nil
		})
	})
}

func (r *FoodDescriptionRepository) insert(food persistence.FoodDescription) (string, []any, error) {
	query, args, err := r.builder.
		Insert(foodDescriptionTable).
		Columns(foodDescriptionColumns...).
		Values(food.ID, nullable(food.NdbNo), nullable(food.ShortDesc), nullable(food.FoodCategory)).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build insert: %w", err)
	}
	return query, args, nil
}

// nullable passes NULL for a nil pointer and the pointed-to value otherwise.
func nullable(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}
