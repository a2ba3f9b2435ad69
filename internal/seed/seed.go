// Package seed provides demo data generation for development environments.
package seed

import (
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"atrium/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers    int
	NumTiles    int
	NumRequests int
	ShouldClean bool
}

var categories = []string{
	"communication", "design", "engineering", "finance",
	"hr", "productivity", "analytics", "security",
}

var appNames = []string{
	"Figma", "Slack", "Miro", "Notion", "Jira", "Confluence", "Tableau",
	"Datadog", "PagerDuty", "Zoom", "Linear", "Airtable", "Asana",
	"GitLab", "Sentry", "Grafana", "Looker", "Retool", "1Password",
	"Postman", "Okta Admin", "Workday", "Greenhouse", "Amplitude",
}

// Run populates the database with demo users, catalog tiles, assignments,
// and app requests in assorted lifecycle states.
func Run(db *gorm.DB, opts Options) error {
	gofakeit.Seed(time.Now().UnixNano())
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	if opts.ShouldClean {
		if err := clean(db); err != nil {
			return fmt.Errorf("clean: %w", err)
		}
	}

	users, err := seedUsers(db, opts.NumUsers)
	if err != nil {
		return fmt.Errorf("seed users: %w", err)
	}

	tiles, err := seedTiles(db, opts.NumTiles, r)
	if err != nil {
		return fmt.Errorf("seed tiles: %w", err)
	}

	if err := seedAssignments(db, users, tiles, r); err != nil {
		return fmt.Errorf("seed assignments: %w", err)
	}

	if err := seedRequests(db, users, opts.NumRequests, r); err != nil {
		return fmt.Errorf("seed requests: %w", err)
	}

	log.Printf("seeded %d users, %d tiles, %d requests", len(users), len(tiles), opts.NumRequests)
	return nil
}

func clean(db *gorm.DB) error {
	tables := []any{
		&models.AppRequestHistory{},
		&models.AppRequest{},
		&models.UserAppAssignment{},
		&models.ApplicationTile{},
		&models.CatalogSyncLog{},
		&models.AuditLog{},
		&models.User{},
	}
	for _, table := range tables {
		if err := db.Unscoped().Where("1 = 1").Delete(table).Error; err != nil {
			return err
		}
	}
	return nil
}

// seedUsers creates accounts with the shared password "atrium-demo". The
// first user is an admin and the next two are approvers so every role is
// represented.
func seedUsers(db *gorm.DB, count int) ([]models.User, error) {
	if count <= 0 {
		count = 12
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("atrium-demo"), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	users := make([]models.User, 0, count)
	for i := 0; i < count; i++ {
		first := gofakeit.FirstName()
		last := gofakeit.LastName()
		username := strings.ToLower(fmt.Sprintf("%s.%s%d", first, last, i))

		role := models.RoleEmployee
		switch i {
		case 0:
			role = models.RoleAdmin
		case 1, 2:
			role = models.RoleApprover
		}

		users = append(users, models.User{
			Username:     username,
			Email:        username + "@atrium.example.com",
			PasswordHash: string(hash),
			DisplayName:  first + " " + last,
			Department:   gofakeit.JobDescriptor(),
			Role:         role,
			IsActive:     true,
		})
	}

	if err := db.Create(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// seedTiles creates catalog-linked tiles. A handful are left with a stale
// LastSeenAt so the first sync sweep has something to mark unavailable.
func seedTiles(db *gorm.DB, count int, r *rand.Rand) ([]models.ApplicationTile, error) {
	if count <= 0 || count > len(appNames) {
		count = len(appNames)
	}

	now := time.Now()
	tiles := make([]models.ApplicationTile, 0, count)
	for i := 0; i < count; i++ {
		name := appNames[i]
		seen := now.Add(-time.Duration(r.Intn(12)) * time.Hour)
		if i%7 == 6 {
			// Stale entry for the sweep to pick up.
			seen = now.Add(-72 * time.Hour)
		}

		tiles = append(tiles, models.ApplicationTile{
			Name:        name,
			Identifier:  models.DeriveIdentifier(name),
			CatalogID:   gofakeit.UUID(),
			Description: gofakeit.Sentence(8),
			Category:    categories[r.Intn(len(categories))],
			IconURL:     fmt.Sprintf("https://icons.atrium.example.com/%s.png", models.DeriveIdentifier(name)),
			LaunchURL:   fmt.Sprintf("https://%s.example.com", models.DeriveIdentifier(name)),
			Source:      models.TileSourceCatalog,
			Available:   true,
			LastSeenAt:  &seen,
		})
	}

	if err := db.Create(&tiles).Error; err != nil {
		return nil, err
	}
	return tiles, nil
}

func seedAssignments(db *gorm.DB, users []models.User, tiles []models.ApplicationTile, r *rand.Rand) error {
	if len(users) == 0 || len(tiles) == 0 {
		return nil
	}

	admin := users[0]
	for _, user := range users {
		for _, tile := range tiles {
			if r.Intn(4) != 0 {
				continue
			}
			a := models.UserAppAssignment{
				UserID:     user.ID,
				TileID:     tile.ID,
				Status:     models.AssignmentActive,
				GrantedBy:  &admin.ID,
				SourceType: "manual",
			}
			if err := db.Create(&a).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// seedRequests creates requests spread across the lifecycle, each carrying
// a consistent history trail.
func seedRequests(db *gorm.DB, users []models.User, count int, r *rand.Rand) error {
	if count <= 0 {
		count = 20
	}
	if len(users) < 4 {
		return nil
	}
	approver := users[1]

	statuses := []string{
		models.StatusSubmitted, models.StatusSubmitted, models.StatusInReview,
		models.StatusImplemented, models.StatusRejected, models.StatusCancelled,
	}

	for i := 0; i < count; i++ {
		requester := users[3+r.Intn(len(users)-3)]
		name := gofakeit.AppName() + " " + gofakeit.HackerNoun()
		status := statuses[r.Intn(len(statuses))]

		req := models.AppRequest{
			RequesterID:   requester.ID,
			AppName:       name,
			AppIdentifier: models.DeriveIdentifier(name),
			Justification: gofakeit.Sentence(10),
			Status:        status,
		}
		if status == models.StatusRejected || status == models.StatusImplemented {
			if status == models.StatusRejected {
				req.DecisionNote = gofakeit.Sentence(6)
			}
			req.DecidedByID = &approver.ID
			now := time.Now()
			req.DecidedAt = &now
		}
		if err := db.Create(&req).Error; err != nil {
			return err
		}

		if err := seedHistory(db, &req, approver.ID); err != nil {
			return err
		}
	}
	return nil
}

func seedHistory(db *gorm.DB, req *models.AppRequest, approverID uint) error {
	trail := [][2]string{{"", models.StatusSubmitted}}
	switch req.Status {
	case models.StatusInReview:
		trail = append(trail, [2]string{models.StatusSubmitted, models.StatusInReview})
	case models.StatusImplemented:
		trail = append(trail,
			[2]string{models.StatusSubmitted, models.StatusApproved},
			[2]string{models.StatusApproved, models.StatusImplemented})
	case models.StatusRejected:
		trail = append(trail, [2]string{models.StatusSubmitted, models.StatusRejected})
	case models.StatusCancelled:
		trail = append(trail, [2]string{models.StatusSubmitted, models.StatusCancelled})
	}

	for _, hop := range trail {
		actor := req.RequesterID
		if hop[1] != models.StatusSubmitted && hop[1] != models.StatusCancelled {
			actor = approverID
		}
		h := models.AppRequestHistory{
			RequestID:  req.ID,
			FromStatus: hop[0],
			ToStatus:   hop[1],
			ActorID:    actor,
			Note:       req.DecisionNote,
		}
		if err := db.Create(&h).Error; err != nil {
			return err
		}
	}
	return nil
}
