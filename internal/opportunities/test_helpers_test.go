package opportunities

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/catalog"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var testClockTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type sequentialIDGenerator struct {
	next  int
	limit int
}

func (g *sequentialIDGenerator) NewID() (string, error) {
	if g.limit > 0 && g.next >= g.limit {
		return "", errors.New("exhausted ids")
	}
	g.next++
	return fmt.Sprintf("id-%03d", g.next), nil
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "opportunities.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := Migrate(db); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := openTestDatabase(t)
	clockNow := testClockTime
	service, err := NewService(ServiceConfig{
		Database:   db,
		IDProvider: &sequentialIDGenerator{},
		Clock: func() time.Time {
			return clockNow
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func record(title, organization, description string, categories ...string) catalog.Record {
	activities := make([]catalog.Activity, 0, len(categories))
	for _, name := range categories {
		activities = append(activities, catalog.Activity{Category: name})
	}
	return catalog.Record{
		Title:        title,
		Description:  description,
		Organization: catalog.Organization{Name: organization},
		Activities:   activities,
	}
}

type graphSnapshot struct {
	opportunities map[string]Opportunity
	categories    []string
	links         []string
}

func snapshotGraph(t *testing.T, db *gorm.DB) graphSnapshot {
	t.Helper()
	var opportunities []Opportunity
	if err := db.Find(&opportunities).Error; err != nil {
		t.Fatalf("failed to load opportunities: %v", err)
	}
	var categories []Category
	if err := db.Find(&categories).Error; err != nil {
		t.Fatalf("failed to load categories: %v", err)
	}
	var links []OpportunityCategory
	if err := db.Find(&links).Error; err != nil {
		t.Fatalf("failed to load links: %v", err)
	}

	snapshot := graphSnapshot{opportunities: make(map[string]Opportunity, len(opportunities))}
	titleByID := make(map[string]string, len(opportunities))
	for _, opportunity := range opportunities {
		if _, exists := snapshot.opportunities[opportunity.Title]; exists {
			t.Fatalf("duplicate opportunity title %q", opportunity.Title)
		}
		snapshot.opportunities[opportunity.Title] = opportunity
		titleByID[opportunity.ID] = opportunity.Title
	}
	nameByID := make(map[string]string, len(categories))
	for _, category := range categories {
		snapshot.categories = append(snapshot.categories, category.Name)
		nameByID[category.ID] = category.Name
	}
	for _, link := range links {
		snapshot.links = append(snapshot.links, titleByID[link.OpportunityID]+"->"+nameByID[link.CategoryID])
	}
	sort.Strings(snapshot.categories)
	sort.Strings(snapshot.links)
	return snapshot
}

func equalStrings(left, right []string) bool {
	if len(left) != len(right) {
		return false
	}
	for index := range left {
		if left[index] != right[index] {
			return false
		}
	}
	return true
}
