package opportunities

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/catalog"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew                  = "opportunities.service.new"
	opSynchronize                 = "opportunities.synchronize"
	opOpportunitiesByCategory     = "opportunities.by_category"
	opOpportunitiesByCategorySlug = "opportunities.by_category_slug"
	opCategoryNames               = "opportunities.category_names"
	opCategories                  = "opportunities.categories"
	opOpportunityByID             = "opportunities.by_id"
	opSaveForUser                 = "opportunities.save_for_user"
	opRemoveForUser               = "opportunities.remove_for_user"
	opSavedForUser                = "opportunities.saved_for_user"
	reasonMissingDatabase         = "missing_database"
	reasonMissingIDProvider       = "missing_id_provider"
	reasonStateLoadFailed         = "state_load_failed"
	reasonIDGenerationFailed      = "id_generation_failed"
	reasonDeleteFailed            = "delete_failed"
	reasonCategoryInsertFailed    = "category_insert_failed"
	reasonInsertFailed            = "opportunity_insert_failed"
	reasonUpdateFailed            = "opportunity_update_failed"
	reasonLinkInsertFailed        = "link_insert_failed"
	reasonQueryFailed             = "query_failed"
	reasonSaveFailed              = "save_failed"
	insertBatchSize               = 200
	deleteChunkSize               = 500
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

func newPersistenceError(operation, reason string, cause error) error {
	return newServiceError(operation, reason, fmt.Errorf("%w: %w", ErrPersistence, cause))
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service owns the opportunity/category graph: it reconciles catalog fetches into
// the store and answers read queries for the presentation layer.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
	syncMu     sync.Mutex
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, reasonMissingIDProvider, errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Synchronize makes the store mirror records. Deletions, creations, updates and new
// category links are committed in a single transaction; on error nothing is written.
// Calls are serialized.
func (s *Service) Synchronize(ctx context.Context, records []catalog.Record) (SyncReport, error) {
	if s.db == nil {
		s.logError(opSynchronize, reasonMissingDatabase, errMissingDatabase)
		return SyncReport{}, newServiceError(opSynchronize, reasonMissingDatabase, errMissingDatabase)
	}
	if s.idProvider == nil {
		s.logError(opSynchronize, reasonMissingIDProvider, errMissingIDProvider)
		return SyncReport{}, newServiceError(opSynchronize, reasonMissingIDProvider, errMissingIDProvider)
	}

	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	now := s.clock().UTC()
	var report SyncReport
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state, err := loadState(tx)
		if err != nil {
			s.logError(opSynchronize, reasonStateLoadFailed, err)
			return newPersistenceError(opSynchronize, reasonStateLoadFailed, err)
		}

		plan, err := planSync(state, records, s.idProvider.NewID, now)
		if err != nil {
			s.logError(opSynchronize, reasonIDGenerationFailed, err)
			return newServiceError(opSynchronize, reasonIDGenerationFailed, err)
		}

		if err := s.applyPlan(tx, plan); err != nil {
			return err
		}
		report = plan.report(len(records))
		return nil
	})
	if txErr != nil {
		return SyncReport{}, txErr
	}

	s.logger.Info("catalog synchronized",
		zap.Int("fetched", report.Fetched),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("deleted", report.Deleted),
		zap.Int("categories_created", report.CategoriesCreated),
		zap.Int("links_created", report.LinksCreated))
	return report, nil
}

func loadState(tx *gorm.DB) (persistedState, error) {
	var state persistedState
	if err := tx.Order("created_at ASC, id ASC").Find(&state.opportunities).Error; err != nil {
		return persistedState{}, err
	}
	if err := tx.Find(&state.categories).Error; err != nil {
		return persistedState{}, err
	}
	if err := tx.Find(&state.links).Error; err != nil {
		return persistedState{}, err
	}
	return state, nil
}

func (s *Service) applyPlan(tx *gorm.DB, plan syncPlan) error {
	for _, ids := range chunk(plan.deletions, deleteChunkSize) {
		if err := tx.Where("opportunity_id IN ?", ids).Delete(&OpportunityCategory{}).Error; err != nil {
			s.logError(opSynchronize, reasonDeleteFailed, err, zap.Int("opportunities", len(ids)))
			return newPersistenceError(opSynchronize, reasonDeleteFailed, err)
		}
		if err := tx.Where("opportunity_id IN ?", ids).Delete(&SavedOpportunity{}).Error; err != nil {
			s.logError(opSynchronize, reasonDeleteFailed, err, zap.Int("opportunities", len(ids)))
			return newPersistenceError(opSynchronize, reasonDeleteFailed, err)
		}
		if err := tx.Where("id IN ?", ids).Delete(&Opportunity{}).Error; err != nil {
			s.logError(opSynchronize, reasonDeleteFailed, err, zap.Int("opportunities", len(ids)))
			return newPersistenceError(opSynchronize, reasonDeleteFailed, err)
		}
	}

	if len(plan.newCategories) > 0 {
		if err := tx.CreateInBatches(plan.newCategories, insertBatchSize).Error; err != nil {
			s.logError(opSynchronize, reasonCategoryInsertFailed, err)
			return newPersistenceError(opSynchronize, reasonCategoryInsertFailed, err)
		}
	}

	if len(plan.creations) > 0 {
		if err := tx.Omit(clause.Associations).CreateInBatches(plan.creations, insertBatchSize).Error; err != nil {
			s.logError(opSynchronize, reasonInsertFailed, err)
			return newPersistenceError(opSynchronize, reasonInsertFailed, err)
		}
	}

	for _, opportunity := range plan.updates {
		err := tx.Model(&Opportunity{}).
			Where("id = ?", opportunity.ID).
			Updates(map[string]any{
				"organization": opportunity.Organization,
				"description":  opportunity.Description,
				"logo_url":     opportunity.LogoURL,
				"updated_at":   opportunity.UpdatedAt,
			}).Error
		if err != nil {
			s.logError(opSynchronize, reasonUpdateFailed, err, zap.String("opportunity_id", opportunity.ID))
			return newPersistenceError(opSynchronize, reasonUpdateFailed, err)
		}
	}

	if len(plan.newLinks) > 0 {
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			CreateInBatches(plan.newLinks, insertBatchSize).Error
		if err != nil {
			s.logError(opSynchronize, reasonLinkInsertFailed, err)
			return newPersistenceError(opSynchronize, reasonLinkInsertFailed, err)
		}
	}

	return nil
}

func chunk(values []string, size int) [][]string {
	var chunks [][]string
	for start := 0; start < len(values); start += size {
		end := start + size
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[start:end])
	}
	return chunks
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("opportunities service error", attrs...)
}
