package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/catalog"
)

func decodeBody(t *testing.T, body []byte, target any) {
	t.Helper()
	if err := json.Unmarshal(body, target); err != nil {
		t.Fatalf("failed to decode response %q: %v", string(body), err)
	}
}

func TestCatalogRoutes(t *testing.T) {
	app := newTestApp(t)
	app.seed(t,
		catalogRecord("Meal delivery", "Food Bank", "Health", "Food"),
		catalogRecord("Park cleanup", "Green City", "Environment"),
	)

	health := app.do(t, http.MethodGet, "/healthz", "")
	if health.Code != http.StatusOK {
		t.Fatalf("unexpected health status %d", health.Code)
	}

	categories := app.do(t, http.MethodGet, "/categories", "")
	var categoriesPayload categoriesResponsePayload
	decodeBody(t, categories.Body.Bytes(), &categoriesPayload)
	expected := []string{"Environment", "Food", "Health"}
	if len(categoriesPayload.Categories) != len(expected) {
		t.Fatalf("unexpected categories %v", categoriesPayload.Categories)
	}
	for index, name := range expected {
		category := categoriesPayload.Categories[index]
		if category.Name != name || category.Slug == "" {
			t.Fatalf("expected %s at %d, got %v", name, index, categoriesPayload.Categories)
		}
	}

	byCategory := app.do(t, http.MethodGet, "/categories/Health/opportunities", "")
	if byCategory.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", byCategory.Code)
	}
	var listing categoryOpportunitiesPayload
	decodeBody(t, byCategory.Body.Bytes(), &listing)
	if listing.Category != "Health" || len(listing.Opportunities) != 1 || listing.Opportunities[0].Title != "Meal delivery" {
		t.Fatalf("unexpected listing %+v", listing)
	}

	detail := app.do(t, http.MethodGet, "/opportunities/"+listing.Opportunities[0].ID, "")
	var opportunity opportunityPayload
	decodeBody(t, detail.Body.Bytes(), &opportunity)
	if opportunity.Organization != "Food Bank" || len(opportunity.Categories) != 2 ||
		opportunity.Categories[0] != (categoryPayload{Name: "Food", Slug: "food"}) {
		t.Fatalf("unexpected opportunity %+v", opportunity)
	}
}

func TestCatalogRoutesNotFound(t *testing.T) {
	app := newTestApp(t)
	app.seed(t, catalogRecord("Meal delivery", "Food Bank", "Health"))

	testCases := []struct {
		name      string
		path      string
		wantError string
	}{
		{name: "unknown category", path: "/categories/" + url.PathEscape("Arts & Culture") + "/opportunities", wantError: "category_not_found"},
		{name: "category name is exact", path: "/categories/health/opportunities", wantError: "category_not_found"},
		{name: "unknown opportunity", path: "/opportunities/missing", wantError: "opportunity_not_found"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := app.do(t, http.MethodGet, testCase.path, "")
			if recorder.Code != http.StatusNotFound {
				t.Fatalf("expected 404, got %d", recorder.Code)
			}
			var payload map[string]string
			decodeBody(t, recorder.Body.Bytes(), &payload)
			if payload["error"] != testCase.wantError {
				t.Fatalf("expected %s, got %v", testCase.wantError, payload)
			}
		})
	}
}

func TestCategoryRoutesReachNamesWithSlashes(t *testing.T) {
	app := newTestApp(t)
	app.seed(t,
		catalogRecord("Gallery guide", "City Museum", "Arts/Culture"),
		catalogRecord("Mural painting", "Youth Arts", "Arts Culture"),
	)

	byName := app.do(t, http.MethodGet, "/categories/"+url.PathEscape("Arts/Culture")+"/opportunities", "")
	if byName.Code != http.StatusOK {
		t.Fatalf("expected 200 for an escaped slash, got %d: %s", byName.Code, byName.Body.String())
	}
	var listing categoryOpportunitiesPayload
	decodeBody(t, byName.Body.Bytes(), &listing)
	if listing.Category != "Arts/Culture" || len(listing.Opportunities) != 1 || listing.Opportunities[0].Title != "Gallery guide" {
		t.Fatalf("unexpected listing %+v", listing)
	}

	testCases := []struct {
		slug      string
		wantName  string
		wantTitle string
	}{
		{slug: "arts-culture", wantName: "Arts/Culture", wantTitle: "Gallery guide"},
		{slug: "arts-culture-2", wantName: "Arts Culture", wantTitle: "Mural painting"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.slug, func(t *testing.T) {
			recorder := app.do(t, http.MethodGet, "/categories/by-slug/"+testCase.slug+"/opportunities", "")
			if recorder.Code != http.StatusOK {
				t.Fatalf("unexpected status %d", recorder.Code)
			}
			var bySlug categoryOpportunitiesPayload
			decodeBody(t, recorder.Body.Bytes(), &bySlug)
			if bySlug.Category != testCase.wantName || bySlug.Slug != testCase.slug {
				t.Fatalf("unexpected category %+v", bySlug)
			}
			if len(bySlug.Opportunities) != 1 || bySlug.Opportunities[0].Title != testCase.wantTitle {
				t.Fatalf("unexpected opportunities %+v", bySlug.Opportunities)
			}
		})
	}

	missing := app.do(t, http.MethodGet, "/categories/by-slug/unknown/opportunities", "")
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown slug, got %d", missing.Code)
	}
	var payload map[string]string
	decodeBody(t, missing.Body.Bytes(), &payload)
	if payload["error"] != "category_not_found" {
		t.Fatalf("unexpected error payload %v", payload)
	}
}

func TestCategoryWithoutOpportunitiesReturnsEmptyList(t *testing.T) {
	app := newTestApp(t)
	app.seed(t, catalogRecord("Meal delivery", "Food Bank", "Health"))
	app.seed(t)

	recorder := app.do(t, http.MethodGet, "/categories/Health/opportunities", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 for a known empty category, got %d", recorder.Code)
	}
	var listing categoryOpportunitiesPayload
	decodeBody(t, recorder.Body.Bytes(), &listing)
	if listing.Opportunities == nil || len(listing.Opportunities) != 0 {
		t.Fatalf("expected an empty list, got %+v", listing.Opportunities)
	}
}

func TestSavedOpportunityRoutes(t *testing.T) {
	app := newTestApp(t)
	app.seed(t, catalogRecord("Meal delivery", "Food Bank", "Health"))
	session := signSession(t, "google:42")

	if recorder := app.do(t, http.MethodGet, "/me/saved", ""); recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", recorder.Code)
	}

	seeded, err := app.catalog.OpportunitiesByCategory(t.Context(), "Health")
	if err != nil || len(seeded) != 1 {
		t.Fatalf("failed to look up seeded opportunity: %v", err)
	}
	opportunityID := seeded[0].ID

	if recorder := app.do(t, http.MethodPut, "/me/saved/"+opportunityID, session); recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on save, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if recorder := app.do(t, http.MethodPut, "/me/saved/missing", session); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 saving an unknown opportunity, got %d", recorder.Code)
	}

	listed := app.do(t, http.MethodGet, "/me/saved", session)
	var saved savedOpportunitiesPayload
	decodeBody(t, listed.Body.Bytes(), &saved)
	if len(saved.Opportunities) != 1 || saved.Opportunities[0].ID != opportunityID {
		t.Fatalf("unexpected saved list %+v", saved)
	}

	// A sync that drops the listing drops the bookmark with it.
	app.seed(t, catalogRecord("Park cleanup", "Green City", "Environment"))
	listed = app.do(t, http.MethodGet, "/me/saved", session)
	decodeBody(t, listed.Body.Bytes(), &saved)
	if len(saved.Opportunities) != 0 {
		t.Fatalf("expected bookmark to vanish with its opportunity, got %+v", saved)
	}

	if recorder := app.do(t, http.MethodDelete, "/me/saved/"+opportunityID, session); recorder.Code != http.StatusNoContent {
		t.Fatalf("expected idempotent delete, got %d", recorder.Code)
	}
}

func TestSyncRoutes(t *testing.T) {
	app := newTestApp(t)

	if recorder := app.do(t, http.MethodGet, "/sync/status", ""); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any run, got %d", recorder.Code)
	}

	app.source.records = []catalog.Record{catalogRecord("Meal delivery", "Food Bank", "Health")}

	if recorder := app.do(t, http.MethodPost, "/sync", signSession(t, "google:1")); recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without admin role, got %d", recorder.Code)
	}

	admin := signSession(t, "google:2", "admin")
	triggered := app.do(t, http.MethodPost, "/sync", admin)
	if triggered.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", triggered.Code, triggered.Body.String())
	}
	var report syncReportPayload
	decodeBody(t, triggered.Body.Bytes(), &report)
	if report.Fetched != 1 || report.Created != 1 || report.CategoriesCreated != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	app.source.err = &catalog.FetchError{Page: 1, StatusCode: http.StatusServiceUnavailable, Err: catalog.ErrUnexpectedStatus}
	failed := app.do(t, http.MethodPost, "/sync", admin)
	if failed.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 on fetch failure, got %d", failed.Code)
	}

	status := app.do(t, http.MethodGet, "/sync/status", "")
	var run syncRunPayload
	decodeBody(t, status.Body.Bytes(), &run)
	if run.Status != "failed" || run.ErrorCode != "catalog.fetch_failed" {
		t.Fatalf("unexpected last run %+v", run)
	}
}
