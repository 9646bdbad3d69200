// Package storetest provides an in-memory SQLite store for tests.
package storetest

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kart-io/docvector/internal/docvector/store"
)

// NewDB opens a private in-memory SQLite database.
// A single connection keeps the database alive for the whole test.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

// NewFactory returns a migrated store factory and its database.
func NewFactory(t testing.TB) (store.Factory, *gorm.DB) {
	t.Helper()

	db := NewDB(t)
	factory := store.NewFactory(db)
	require.NoError(t, factory.Migrate(context.Background(), store.MigrateOptions{}))
	return factory, db
}
