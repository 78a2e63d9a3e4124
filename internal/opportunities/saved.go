package opportunities

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaveForUser bookmarks an opportunity for an account. Saving twice is a no-op.
func (s *Service) SaveForUser(ctx context.Context, accountID, opportunityID string) error {
	if s.db == nil {
		s.logError(opSaveForUser, reasonMissingDatabase, errMissingDatabase)
		return newServiceError(opSaveForUser, reasonMissingDatabase, errMissingDatabase)
	}
	accountID, opportunityID = strings.TrimSpace(accountID), strings.TrimSpace(opportunityID)
	if accountID == "" || opportunityID == "" {
		return ErrInvalidIdentifier
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var opportunity Opportunity
		if err := tx.Select("id").Where("id = ?", opportunityID).Take(&opportunity).Error; err != nil {
			return err
		}
		saved := SavedOpportunity{
			AccountID:     accountID,
			OpportunityID: opportunityID,
			SavedAt:       s.clock().UTC(),
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&saved).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrOpportunityNotFound
	}
	if err != nil {
		s.logError(opSaveForUser, reasonSaveFailed, err,
			zap.String("account_id", accountID),
			zap.String("opportunity_id", opportunityID))
		return newPersistenceError(opSaveForUser, reasonSaveFailed, err)
	}
	return nil
}

// RemoveForUser drops a bookmark. Removing a missing bookmark is a no-op.
func (s *Service) RemoveForUser(ctx context.Context, accountID, opportunityID string) error {
	if s.db == nil {
		s.logError(opRemoveForUser, reasonMissingDatabase, errMissingDatabase)
		return newServiceError(opRemoveForUser, reasonMissingDatabase, errMissingDatabase)
	}
	accountID, opportunityID = strings.TrimSpace(accountID), strings.TrimSpace(opportunityID)
	if accountID == "" || opportunityID == "" {
		return ErrInvalidIdentifier
	}

	if err := s.db.WithContext(ctx).
		Where("account_id = ? AND opportunity_id = ?", accountID, opportunityID).
		Delete(&SavedOpportunity{}).Error; err != nil {
		s.logError(opRemoveForUser, reasonSaveFailed, err,
			zap.String("account_id", accountID),
			zap.String("opportunity_id", opportunityID))
		return newPersistenceError(opRemoveForUser, reasonSaveFailed, err)
	}
	return nil
}

// SavedForUser lists an account's bookmarks, most recently saved first.
func (s *Service) SavedForUser(ctx context.Context, accountID string) ([]Opportunity, error) {
	if s.db == nil {
		s.logError(opSavedForUser, reasonMissingDatabase, errMissingDatabase)
		return nil, newServiceError(opSavedForUser, reasonMissingDatabase, errMissingDatabase)
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, ErrInvalidIdentifier
	}

	opportunities := make([]Opportunity, 0)
	if err := s.db.WithContext(ctx).
		Joins("JOIN saved_opportunities ON saved_opportunities.opportunity_id = opportunities.id").
		Where("saved_opportunities.account_id = ?", accountID).
		Order("saved_opportunities.saved_at DESC, opportunities.title ASC").
		Find(&opportunities).Error; err != nil {
		s.logError(opSavedForUser, reasonQueryFailed, err, zap.String("account_id", accountID))
		return nil, newPersistenceError(opSavedForUser, reasonQueryFailed, err)
	}
	if opportunities == nil {
		opportunities = []Opportunity{}
	}
	return opportunities, nil
}
