package opportunities

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const joinOpportunityCategories = "JOIN opportunity_categories ON opportunity_categories.opportunity_id = opportunities.id"

// OpportunitiesByCategory returns the opportunities linked to the category with
// exactly this name. An unknown name yields ErrCategoryNotFound; a known category
// without opportunities yields an empty slice.
func (s *Service) OpportunitiesByCategory(ctx context.Context, name string) ([]Opportunity, error) {
	_, opportunities, err := s.opportunitiesInCategory(ctx, opOpportunitiesByCategory, "name", name)
	return opportunities, err
}

// OpportunitiesByCategorySlug resolves a category by slug and returns it with its
// opportunities. Missing slugs yield ErrCategoryNotFound.
func (s *Service) OpportunitiesByCategorySlug(ctx context.Context, slug string) (Category, []Opportunity, error) {
	return s.opportunitiesInCategory(ctx, opOpportunitiesByCategorySlug, "slug", strings.TrimSpace(slug))
}

func (s *Service) opportunitiesInCategory(ctx context.Context, operation, column, value string) (Category, []Opportunity, error) {
	if s.db == nil {
		s.logError(operation, reasonMissingDatabase, errMissingDatabase)
		return Category{}, nil, newServiceError(operation, reasonMissingDatabase, errMissingDatabase)
	}
	if value == "" {
		return Category{}, nil, ErrCategoryNotFound
	}

	var category Category
	opportunities := make([]Opportunity, 0)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(column+" = ?", value).Order("created_at ASC, id ASC").Take(&category).Error; err != nil {
			return err
		}
		return tx.Joins(joinOpportunityCategories).
			Where("opportunity_categories.category_id = ?", category.ID).
			Order("opportunities.title ASC").
			Find(&opportunities).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Category{}, nil, ErrCategoryNotFound
	}
	if err != nil {
		s.logError(operation, reasonQueryFailed, err, zap.String(column, value))
		return Category{}, nil, newPersistenceError(operation, reasonQueryFailed, err)
	}
	if opportunities == nil {
		opportunities = []Opportunity{}
	}
	return category, opportunities, nil
}

// Categories lists every category in name order.
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	if s.db == nil {
		s.logError(opCategories, reasonMissingDatabase, errMissingDatabase)
		return nil, newServiceError(opCategories, reasonMissingDatabase, errMissingDatabase)
	}

	categories := make([]Category, 0)
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&categories).Error; err != nil {
		s.logError(opCategories, reasonQueryFailed, err)
		return nil, newPersistenceError(opCategories, reasonQueryFailed, err)
	}
	return categories, nil
}

// CategoryNames lists every distinct category name in name order.
func (s *Service) CategoryNames(ctx context.Context) ([]string, error) {
	if s.db == nil {
		s.logError(opCategoryNames, reasonMissingDatabase, errMissingDatabase)
		return nil, newServiceError(opCategoryNames, reasonMissingDatabase, errMissingDatabase)
	}

	names := make([]string, 0)
	if err := s.db.WithContext(ctx).
		Model(&Category{}).
		Distinct().
		Order("name ASC").
		Pluck("name", &names).Error; err != nil {
		s.logError(opCategoryNames, reasonQueryFailed, err)
		return nil, newPersistenceError(opCategoryNames, reasonQueryFailed, err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// OpportunityByID loads one opportunity with its categories.
func (s *Service) OpportunityByID(ctx context.Context, id string) (Opportunity, error) {
	if s.db == nil {
		s.logError(opOpportunityByID, reasonMissingDatabase, errMissingDatabase)
		return Opportunity{}, newServiceError(opOpportunityByID, reasonMissingDatabase, errMissingDatabase)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Opportunity{}, ErrOpportunityNotFound
	}

	var opportunity Opportunity
	err := s.db.WithContext(ctx).
		Preload("Categories", func(db *gorm.DB) *gorm.DB {
			return db.Order("categories.name ASC")
		}).
		Where("id = ?", id).
		Take(&opportunity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Opportunity{}, ErrOpportunityNotFound
	}
	if err != nil {
		s.logError(opOpportunityByID, reasonQueryFailed, err, zap.String("opportunity_id", id))
		return Opportunity{}, newPersistenceError(opOpportunityByID, reasonQueryFailed, err)
	}
	return opportunity, nil
}
