package opportunities

import (
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/catalog"
)

// persistedState is the slice of the store a synchronization diffs against.
type persistedState struct {
	opportunities []Opportunity
	categories    []Category
	links         []OpportunityCategory
}

// syncPlan holds every pending change of one synchronization. Nothing is written
// until the whole plan has been computed.
type syncPlan struct {
	deletions     []string
	creations     []*Opportunity
	updates       []*Opportunity
	newCategories []*Category
	newLinks      []OpportunityCategory
	unchanged     int
}

func (p syncPlan) report(fetched int) SyncReport {
	return SyncReport{
		Fetched:           fetched,
		Created:           len(p.creations),
		Updated:           len(p.updates),
		Unchanged:         p.unchanged,
		Deleted:           len(p.deletions),
		CategoriesCreated: len(p.newCategories),
		LinksCreated:      len(p.newLinks),
	}
}

type opportunityDraft struct {
	original  Opportunity
	current   Opportunity
	persisted bool
	touched   bool
}

func (d *opportunityDraft) changed() bool {
	return d.original.Organization != d.current.Organization ||
		d.original.Description != d.current.Description ||
		d.original.LogoURL != d.current.LogoURL
}

// planSync diffs fetched records against the persisted state.
//
// Opportunities whose title is absent from records are deleted, as are all but the
// oldest of several rows sharing a live title. Every record is upserted by title in
// input order, so a title repeated in one fetch ends with the fields of its last
// occurrence. Categories are resolved by exact name and created on first sight with
// a slug no other category holds; an (opportunity, category) pair is staged only
// when missing. Existing pairs are never removed here.
func planSync(state persistedState, records []catalog.Record, newID func() (string, error), now time.Time) (syncPlan, error) {
	var plan syncPlan

	live := make(map[string]struct{}, len(records))
	for _, record := range records {
		live[record.Title] = struct{}{}
	}

	drafts := make(map[string]*opportunityDraft, len(state.opportunities))
	for _, opportunity := range state.opportunities {
		if _, ok := live[opportunity.Title]; !ok {
			plan.deletions = append(plan.deletions, opportunity.ID)
			continue
		}
		// The oldest row carrying a title is its identity; younger twins are removed.
		if _, exists := drafts[opportunity.Title]; exists {
			plan.deletions = append(plan.deletions, opportunity.ID)
			continue
		}
		drafts[opportunity.Title] = &opportunityDraft{
			original:  opportunity,
			current:   opportunity,
			persisted: true,
		}
	}

	categoryIDs := make(map[string]string, len(state.categories))
	slugs := make(SlugSet, len(state.categories))
	for _, category := range state.categories {
		categoryIDs[category.Name] = category.ID
		slugs.Reserve(category.Slug)
	}

	links := make(map[OpportunityCategory]struct{}, len(state.links))
	for _, link := range state.links {
		links[link] = struct{}{}
	}

	touched := make([]*opportunityDraft, 0, len(records))
	for _, record := range records {
		draft, ok := drafts[record.Title]
		if !ok {
			id, err := newID()
			if err != nil {
				return syncPlan{}, err
			}
			draft = &opportunityDraft{
				current: Opportunity{
					ID:        id,
					Title:     record.Title,
					CreatedAt: now,
					UpdatedAt: now,
				},
			}
			drafts[record.Title] = draft
		}
		if !draft.touched {
			draft.touched = true
			touched = append(touched, draft)
		}

		draft.current.Organization = record.Organization.Name
		draft.current.Description = record.Description
		draft.current.LogoURL = record.Organization.Logo

		for _, name := range record.CategoryNames() {
			if strings.TrimSpace(name) == "" {
				continue
			}
			categoryID, ok := categoryIDs[name]
			if !ok {
				id, err := newID()
				if err != nil {
					return syncPlan{}, err
				}
				categoryID = id
				categoryIDs[name] = id
				plan.newCategories = append(plan.newCategories, &Category{
					ID:        id,
					Name:      name,
					Slug:      slugs.Claim(name),
					CreatedAt: now,
				})
			}

			link := OpportunityCategory{OpportunityID: draft.current.ID, CategoryID: categoryID}
			if _, exists := links[link]; exists {
				continue
			}
			links[link] = struct{}{}
			plan.newLinks = append(plan.newLinks, link)
		}
	}

	for _, draft := range touched {
		switch {
		case !draft.persisted:
			created := draft.current
			plan.creations = append(plan.creations, &created)
		case draft.changed():
			updated := draft.current
			updated.UpdatedAt = now
			plan.updates = append(plan.updates, &updated)
		default:
			plan.unchanged++
		}
	}

	return plan, nil
}
