package seed

import (
	"testing"

	"atrium/internal/database"
	"atrium/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openSeedDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(database.PersistentModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestRun_PopulatesAllEntities(t *testing.T) {
	t.Parallel()

	db := openSeedDB(t)
	err := Run(db, Options{NumUsers: 8, NumTiles: 5, NumRequests: 10, ShouldClean: false})
	if err != nil {
		t.Fatalf("seed run: %v", err)
	}

	var userCount int64
	if err := db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		t.Fatalf("count users: %v", err)
	}
	if userCount != 8 {
		t.Fatalf("expected 8 users, got %d", userCount)
	}

	var adminCount int64
	if err := db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&adminCount).Error; err != nil {
		t.Fatalf("count admins: %v", err)
	}
	if adminCount != 1 {
		t.Fatalf("expected 1 admin, got %d", adminCount)
	}

	var tileCount int64
	if err := db.Model(&models.ApplicationTile{}).Where("catalog_id <> ''").Count(&tileCount).Error; err != nil {
		t.Fatalf("count tiles: %v", err)
	}
	if tileCount != 5 {
		t.Fatalf("expected 5 catalog tiles, got %d", tileCount)
	}

	var reqCount int64
	if err := db.Model(&models.AppRequest{}).Count(&reqCount).Error; err != nil {
		t.Fatalf("count requests: %v", err)
	}
	if reqCount != 10 {
		t.Fatalf("expected 10 requests, got %d", reqCount)
	}

	// Every request carries at least the submitted history entry.
	var histCount int64
	if err := db.Model(&models.AppRequestHistory{}).Where("to_status = ?", models.StatusSubmitted).Count(&histCount).Error; err != nil {
		t.Fatalf("count history: %v", err)
	}
	if histCount != reqCount {
		t.Fatalf("expected %d submitted history rows, got %d", reqCount, histCount)
	}
}

func TestRun_CleanRemovesPreviousData(t *testing.T) {
	t.Parallel()

	db := openSeedDB(t)
	if err := Run(db, Options{NumUsers: 4, NumTiles: 3, NumRequests: 5, ShouldClean: false}); err != nil {
		t.Fatalf("first seed run: %v", err)
	}
	if err := Run(db, Options{NumUsers: 4, NumTiles: 3, NumRequests: 5, ShouldClean: true}); err != nil {
		t.Fatalf("second seed run: %v", err)
	}

	var userCount int64
	if err := db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		t.Fatalf("count users: %v", err)
	}
	if userCount != 4 {
		t.Fatalf("expected 4 users after clean reseed, got %d", userCount)
	}
}
