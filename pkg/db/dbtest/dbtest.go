// Package dbtest opens isolated sqlite databases migrated with the embedded
// goose migrations.
package dbtest

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/newsletter-backend/pkg/db/models"
	"github.com/angelmondragon/newsletter-backend/pkg/enums"
	"github.com/angelmondragon/newsletter-backend/pkg/migrate"
)

// Open returns a private in-memory database limited to one connection, so
// concurrent transactions queue behind each other the way row locks would.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrate.Up(context.Background(), sqlDB, migrate.DialectSQLite); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return conn
}

// PostgresDSNEnv names the database used by the integration-tagged tests.
const PostgresDSNEnv = "NEWSLETTER_TEST_POSTGRES_DSN"

// OpenPostgres migrates a throwaway schema in the database named by
// NEWSLETTER_TEST_POSTGRES_DSN and drops it when the test ends. The test is
// skipped when the variable is unset. Unlike Open, the pool has several
// connections, so row locks and unique-index waits behave as in production.
func OpenPostgres(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv(PostgresDSNEnv))
	if dsn == "" {
		t.Skipf("%s not set", PostgresDSNEnv)
	}

	admin, err := gorm.Open(postgres.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	adminDB, err := admin.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	schema := "newsletter_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := admin.Exec("CREATE SCHEMA " + schema).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		_ = admin.Exec("DROP SCHEMA " + schema + " CASCADE").Error
		_ = adminDB.Close()
	})

	conn, err := gorm.Open(postgres.Open(withSearchPath(dsn, schema)), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open postgres schema: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(16)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrate.Up(context.Background(), sqlDB, migrate.DialectPostgres); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return conn
}

func withSearchPath(dsn, schema string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
		q := u.Query()
		q.Set("search_path", schema)
		u.RawQuery = q.Encode()
		return u.String()
	}
	return dsn + " search_path=" + schema
}

// AddSubscriber inserts a subscriber with the given status and returns it.
func AddSubscriber(t *testing.T, conn *gorm.DB, email string, status enums.SubscriptionStatus) models.Subscription {
	t.Helper()
	sub := models.Subscription{
		ID:           uuid.New(),
		Email:        email,
		Name:         "Subscriber " + email,
		SubscribedAt: time.Now().UTC(),
		Status:       status,
	}
	if err := conn.Create(&sub).Error; err != nil {
		t.Fatalf("insert subscriber: %v", err)
	}
	return sub
}

// CountRows counts rows of model's table.
func CountRows(t *testing.T, conn *gorm.DB, model any) int64 {
	t.Helper()
	var count int64
	if err := conn.Model(model).Count(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return count
}
