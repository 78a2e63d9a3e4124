package opportunities

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrCategoryNotFound indicates that no category carries the requested name.
	ErrCategoryNotFound = errors.New("opportunities: category not found")
	// ErrOpportunityNotFound indicates that no opportunity carries the requested id.
	ErrOpportunityNotFound = errors.New("opportunities: opportunity not found")
	// ErrPersistence marks failures raised by the underlying store.
	ErrPersistence = errors.New("opportunities: persistence failure")
	// ErrInvalidIdentifier indicates an empty account or opportunity identifier.
	ErrInvalidIdentifier = errors.New("opportunities: invalid identifier")
)

// Opportunity is a volunteer listing. Title is its natural identity: the catalog
// publishes no stable id, so a renamed listing is treated as a new one.
type Opportunity struct {
	ID           string     `gorm:"column:id;primaryKey;size:64;not null"`
	Title        string     `gorm:"column:title;not null;index:idx_opportunities_title"`
	Organization string     `gorm:"column:organization;not null"`
	Description  string     `gorm:"column:description;type:text"`
	LogoURL      string     `gorm:"column:logo_url;size:512"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;not null"`
	Categories   []Category `gorm:"many2many:opportunity_categories"`
}

// TableName provides the explicit table binding for GORM.
func (Opportunity) TableName() string {
	return "opportunities"
}

// Category groups opportunities. Categories are never deleted by synchronization.
// Name is the identity; Slug is a distinct URL-safe alias assigned at creation.
type Category struct {
	ID        string    `gorm:"column:id;primaryKey;size:64;not null"`
	Name      string    `gorm:"column:name;size:190;not null;uniqueIndex:idx_categories_name"`
	Slug      string    `gorm:"column:slug;size:190;not null;default:'';index:idx_categories_slug"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Category) TableName() string {
	return "categories"
}

// OpportunityCategory is one edge of the opportunity/category graph.
type OpportunityCategory struct {
	OpportunityID string `gorm:"column:opportunity_id;primaryKey;size:64"`
	CategoryID    string `gorm:"column:category_id;primaryKey;size:64;index:idx_opportunity_categories_category"`
}

// TableName provides the explicit table binding for GORM.
func (OpportunityCategory) TableName() string {
	return "opportunity_categories"
}

// SavedOpportunity records an account bookmark.
type SavedOpportunity struct {
	AccountID     string    `gorm:"column:account_id;primaryKey;size:190"`
	OpportunityID string    `gorm:"column:opportunity_id;primaryKey;size:64;index:idx_saved_opportunities_opportunity"`
	SavedAt       time.Time `gorm:"column:saved_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (SavedOpportunity) TableName() string {
	return "saved_opportunities"
}

// SyncReport summarises a committed synchronization.
type SyncReport struct {
	Fetched           int
	Created           int
	Updated           int
	Unchanged         int
	Deleted           int
	CategoriesCreated int
	LinksCreated      int
}

// Migrate registers the join model and creates the catalog tables.
func Migrate(db *gorm.DB) error {
	if err := db.SetupJoinTable(&Opportunity{}, "Categories", &OpportunityCategory{}); err != nil {
		return err
	}
	return db.AutoMigrate(&Category{}, &Opportunity{}, &OpportunityCategory{}, &SavedOpportunity{})
}
