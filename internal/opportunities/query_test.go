package opportunities

import (
	"context"
	"errors"
	"testing"

	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/catalog"
)

func seedCatalog(t *testing.T, service *Service) {
	t.Helper()
	if _, err := service.Synchronize(context.Background(), []catalog.Record{
		record("Meal delivery", "Food Bank", "Deliver meals", "Health", "Seniors"),
		record("Clinic greeter", "General Hospital", "Greet visitors", "Health"),
		record("Park cleanup", "City Parks", "Pick up litter", "Environment"),
	}); err != nil {
		t.Fatalf("failed to seed catalog: %v", err)
	}
}

func TestOpportunitiesByCategory(t *testing.T) {
	service, _ := newTestService(t)
	seedCatalog(t, service)

	opportunities, err := service.OpportunitiesByCategory(context.Background(), "Health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(opportunities) != 2 {
		t.Fatalf("expected 2 opportunities, got %d", len(opportunities))
	}
	if opportunities[0].Title != "Clinic greeter" || opportunities[1].Title != "Meal delivery" {
		t.Fatalf("unexpected opportunities: %q, %q", opportunities[0].Title, opportunities[1].Title)
	}
}

func TestOpportunitiesByCategoryDistinguishesMissingFromEmpty(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	seedCatalog(t, service)

	if _, err := service.OpportunitiesByCategory(ctx, "NoSuchCategory"); !errors.Is(err, ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}
	if _, err := service.OpportunitiesByCategory(ctx, "health"); !errors.Is(err, ErrCategoryNotFound) {
		t.Fatalf("expected exact-match lookup, got %v", err)
	}

	if _, err := service.Synchronize(ctx, []catalog.Record{
		record("Meal delivery", "Food Bank", "Deliver meals", "Health"),
	}); err != nil {
		t.Fatalf("failed to resync: %v", err)
	}
	opportunities, err := service.OpportunitiesByCategory(ctx, "Environment")
	if err != nil {
		t.Fatalf("expected existing empty category, got %v", err)
	}
	if opportunities == nil || len(opportunities) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", opportunities)
	}
}

func TestOpportunitiesByCategorySlug(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	seedCatalog(t, service)

	category, opportunities, err := service.OpportunitiesByCategorySlug(ctx, "health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if category.Name != "Health" || category.Slug != "health" {
		t.Fatalf("unexpected category %+v", category)
	}
	if len(opportunities) != 2 || opportunities[0].Title != "Clinic greeter" {
		t.Fatalf("unexpected opportunities %+v", opportunities)
	}

	for _, slug := range []string{"", "Health", "unknown"} {
		if _, _, err := service.OpportunitiesByCategorySlug(ctx, slug); !errors.Is(err, ErrCategoryNotFound) {
			t.Fatalf("slug %q: expected ErrCategoryNotFound, got %v", slug, err)
		}
	}
}

func TestCategoriesCarrySlugs(t *testing.T) {
	service, _ := newTestService(t)
	seedCatalog(t, service)

	categories, err := service.Categories(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := make([]string, 0, len(categories))
	for _, category := range categories {
		got = append(got, category.Name+"="+category.Slug)
	}
	if !equalStrings(got, []string{"Environment=environment", "Health=health", "Seniors=seniors"}) {
		t.Fatalf("unexpected categories %v", got)
	}
}

func TestCategoryNames(t *testing.T) {
	service, _ := newTestService(t)

	names, err := service.CategoryNames(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if names == nil || len(names) != 0 {
		t.Fatalf("expected empty names, got %#v", names)
	}

	seedCatalog(t, service)
	names, err = service.CategoryNames(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !equalStrings(names, []string{"Environment", "Health", "Seniors"}) {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestOpportunityByID(t *testing.T) {
	service, db := newTestService(t)
	seedCatalog(t, service)
	stored := snapshotGraph(t, db).opportunities["Meal delivery"]

	opportunity, err := service.OpportunityByID(context.Background(), stored.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opportunity.Title != "Meal delivery" || opportunity.Organization != "Food Bank" {
		t.Fatalf("unexpected opportunity: %+v", opportunity)
	}
	if len(opportunity.Categories) != 2 || opportunity.Categories[0].Name != "Health" || opportunity.Categories[1].Name != "Seniors" {
		t.Fatalf("unexpected categories: %+v", opportunity.Categories)
	}

	for _, id := range []string{"missing", ""} {
		if _, err := service.OpportunityByID(context.Background(), id); !errors.Is(err, ErrOpportunityNotFound) {
			t.Fatalf("expected ErrOpportunityNotFound for %q, got %v", id, err)
		}
	}
}

func TestQueriesRequireDatabase(t *testing.T) {
	service := &Service{}
	ctx := context.Background()

	testCases := []struct {
		name string
		call func() error
		code string
	}{
		{
			name: "by-category",
			call: func() error {
				_, err := service.OpportunitiesByCategory(ctx, "Health")
				return err
			},
			code: "opportunities.by_category.missing_database",
		},
		{
			name: "category-names",
			call: func() error {
				_, err := service.CategoryNames(ctx)
				return err
			},
			code: "opportunities.category_names.missing_database",
		},
		{
			name: "by-id",
			call: func() error {
				_, err := service.OpportunityByID(ctx, "id")
				return err
			},
			code: "opportunities.by_id.missing_database",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			var serviceErr *ServiceError
			if err := testCase.call(); !errors.As(err, &serviceErr) || serviceErr.Code() != testCase.code {
				t.Fatalf("expected code %s, got %v", testCase.code, err)
			}
		})
	}
}
