package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"catalogsync/internal/database"

	"gorm.io/gorm"
)

var dbCounter atomic.Int64

// NewDB returns a migrated in-memory sqlite database private to the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	url := fmt.Sprintf("sqlite://file:%s_%d?mode=memory&cache=shared", name, dbCounter.Add(1))

	db, err := database.New(url, "silent")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db.DB
}
