package server

import (
	"time"

	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/opportunities"
	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/syncjob"
)

type categoryPayload struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type categoriesResponsePayload struct {
	Categories []categoryPayload `json:"categories"`
}

type categoryOpportunitiesPayload struct {
	Category      string               `json:"category"`
	Slug          string               `json:"slug,omitempty"`
	Opportunities []opportunityPayload `json:"opportunities"`
}

type savedOpportunitiesPayload struct {
	Opportunities []opportunityPayload `json:"opportunities"`
}

type opportunityPayload struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Organization string            `json:"organization"`
	Description  string            `json:"description"`
	LogoURL      string            `json:"logo_url,omitempty"`
	Categories   []categoryPayload `json:"categories,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

type syncReportPayload struct {
	Fetched           int `json:"fetched"`
	Created           int `json:"created"`
	Updated           int `json:"updated"`
	Unchanged         int `json:"unchanged"`
	Deleted           int `json:"deleted"`
	CategoriesCreated int `json:"categories_created"`
	LinksCreated      int `json:"links_created"`
}

type syncRunPayload struct {
	RunID        string            `json:"run_id"`
	Status       string            `json:"status"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
	ErrorCode    string            `json:"error_code,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Report       syncReportPayload `json:"report"`
}

type catalogEventPayload struct {
	RunID     string            `json:"run_id"`
	Report    syncReportPayload `json:"report"`
	Timestamp time.Time         `json:"timestamp"`
}

func newOpportunityPayload(opportunity opportunities.Opportunity) opportunityPayload {
	payload := opportunityPayload{
		ID:           opportunity.ID,
		Title:        opportunity.Title,
		Organization: opportunity.Organization,
		Description:  opportunity.Description,
		LogoURL:      opportunity.LogoURL,
		UpdatedAt:    opportunity.UpdatedAt.UTC(),
	}
	for _, category := range opportunity.Categories {
		payload.Categories = append(payload.Categories, newCategoryPayload(category))
	}
	return payload
}

func newCategoryPayload(category opportunities.Category) categoryPayload {
	return categoryPayload{Name: category.Name, Slug: category.Slug}
}

func newCategoryPayloads(values []opportunities.Category) []categoryPayload {
	payloads := make([]categoryPayload, 0, len(values))
	for _, value := range values {
		payloads = append(payloads, newCategoryPayload(value))
	}
	return payloads
}

func newOpportunityPayloads(values []opportunities.Opportunity) []opportunityPayload {
	payloads := make([]opportunityPayload, 0, len(values))
	for _, value := range values {
		payloads = append(payloads, newOpportunityPayload(value))
	}
	return payloads
}

func newSyncReportPayload(report opportunities.SyncReport) syncReportPayload {
	return syncReportPayload{
		Fetched:           report.Fetched,
		Created:           report.Created,
		Updated:           report.Updated,
		Unchanged:         report.Unchanged,
		Deleted:           report.Deleted,
		CategoriesCreated: report.CategoriesCreated,
		LinksCreated:      report.LinksCreated,
	}
}

func newSyncRunPayload(run syncjob.SyncRun) syncRunPayload {
	return syncRunPayload{
		RunID:        run.RunID,
		Status:       string(run.Status),
		StartedAt:    run.StartedAt.UTC(),
		FinishedAt:   run.FinishedAt.UTC(),
		ErrorCode:    run.ErrorCode,
		ErrorMessage: run.ErrorMessage,
		Report:       newSyncReportPayload(run.Report()),
	}
}
