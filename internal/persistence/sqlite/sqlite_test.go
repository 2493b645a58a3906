package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/fooddb/internal/persistence"
	"github.com/example/fooddb/internal/persistence/sqlite/migration"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "fooddb.db")
	storage, err := Open(migration.TempFileTestSQLiteConfig(dsn), DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = storage.Close()
	})

	require.NoError(t, storage.Migrate(context.Background()))
	return storage
}

func ptr(s string) *string { return &s }

func TestFoodDescriptionRepository(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	butter := persistence.FoodDescription{
		ID:           1001,
		NdbNo:        ptr("01001"),
		ShortDesc:    ptr("BUTTER,WITH SALT"),
		FoodCategory: ptr("0100"),
	}
	require.NoError(t, storage.CreateFoodDescription(ctx, butter))

	fetched, err := storage.GetFoodDescription(ctx, butter.ID)
	require.NoError(t, err)
	require.Equal(t, butter, fetched)

	err = storage.CreateFoodDescription(ctx, butter)
	require.ErrorIs(t, err, persistence.ErrDuplicate)

	require.NoError(t, storage.DeleteFoodDescription(ctx, butter.ID))

	_, err = storage.GetFoodDescription(ctx, butter.ID)
	require.ErrorIs(t, err, persistence.ErrNotFound)

	require.ErrorIs(t, storage.DeleteFoodDescription(ctx, butter.ID), persistence.ErrNotFound)
}

func TestFoodDescriptionRepository_NullColumns(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	require.NoError(t, storage.CreateFoodDescription(ctx, persistence.FoodDescription{ID: 7}))

	fetched, err := storage.GetFoodDescription(ctx, 7)
	require.NoError(t, err)
	require.Nil(t, fetched.NdbNo)
	require.Nil(t, fetched.ShortDesc)
	require.Nil(t, fetched.FoodCategory)
}

func TestFoodDescriptionRepository_List(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	dairy, fats := ptr("0100"), ptr("0400")
	require.NoError(t, storage.ImportFoodDescriptions(ctx, []persistence.FoodDescription{
		{ID: 4001, ShortDesc: ptr("FAT,BEEF TALLOW"), FoodCategory: fats},
		{ID: 1002, ShortDesc: ptr("BUTTER,WHIPPED"), FoodCategory: dairy},
		{ID: 1001, ShortDesc: ptr("BUTTER,WITH SALT"), FoodCategory: dairy},
		{ID: 9999},
	}))

	all, err := storage.ListFoodDescriptions(ctx, persistence.FoodDescriptionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, []int64{1001, 1002, 4001, 9999}, ids(all))

	onlyDairy, err := storage.ListFoodDescriptions(ctx, persistence.FoodDescriptionFilter{Category: dairy})
	require.NoError(t, err)
	require.Equal(t, []int64{1001, 1002}, ids(onlyDairy))

	limited, err := storage.ListFoodDescriptions(ctx, persistence.FoodDescriptionFilter{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []int64{1001, 1002}, ids(limited))

	none, err := storage.ListFoodDescriptions(ctx, persistence.FoodDescriptionFilter{Category: ptr("9900")})
	require.NoError(t, err)
	require.NotNil(t, none)
	require.Empty(t, none)
}

func TestFoodDescriptionRepository_ImportRollsBack(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	err := storage.ImportFoodDescriptions(ctx, []persistence.FoodDescription{
		{ID: 1},
		{ID: 2},
		{ID: 1},
	})
	require.ErrorIs(t, err, persistence.ErrDuplicate)
	require.Contains(t, err.Error(), "import row 3")

	all, err := storage.ListFoodDescriptions(ctx, persistence.FoodDescriptionFilter{})
	require.NoError(t, err)
	require.Empty(t, all, "failed import must not leave partial rows")
}

func TestFoodDescriptionRepository_ConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			errs <- storage.CreateFoodDescription(ctx, persistence.FoodDescription{ID: id})
		}(int64(i))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	all, err := storage.ListFoodDescriptions(ctx, persistence.FoodDescriptionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 20)
}

func TestStorage_MigrationsAndInspection(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	require.NoError(t, storage.Ping(ctx))

	versions, err := storage.Migrations().GetAppliedVersions(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"001"}, versions)

	require.NoError(t, storage.Migrate(ctx), "migrating twice is a no-op")

	exists, err := storage.Inspector().TableExists(ctx, foodDescriptionTable)
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, storage.Migrations().Rollback(ctx, 1))

	exists, err = storage.Inspector().TableExists(ctx, foodDescriptionTable)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestStorage_MigrationDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_create_food_group.up.sql"),
		[]byte("CREATE TABLE food_group (code VARCHAR NOT NULL, PRIMARY KEY (code));"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_create_food_group.down.sql"),
		[]byte("DROP TABLE food_group;"), 0644))

	opts := DefaultOptions()
	opts.Migration.MigrationDir = dir

	storage, err := Open(migration.InMemoryTestSQLiteConfig(), opts)
	require.NoError(t, err)
	defer storage.Close()

	ctx := context.Background()
	require.NoError(t, storage.Migrate(ctx))

	tables, err := storage.Inspector().ListTables(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"food_group", "schema_migrations"}, tables)
}

func TestOpen_InvalidOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.Migration.MigrationDir = filepath.Join(t.TempDir(), "missing")

	_, err := Open(migration.InMemoryTestSQLiteConfig(), opts)
	require.ErrorContains(t, err, "migration directory does not exist")

	_, err = Open(migration.SQLiteConfig{}, DefaultOptions())
	require.ErrorContains(t, err, "DSN cannot be empty")
}

func ids(foods []persistence.FoodDescription) []int64 {
	out := make([]int64, len(foods))
	for i, food := range foods {
		out[i] = food.ID
	}
	return out
}
