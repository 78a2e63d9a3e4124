package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/auth"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultProvider    = "default"
	lastSeenResolution = 5 * time.Minute
)

// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
var ErrInvalidIdentity = errors.New("users: invalid identity")

type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service resolves session claims to accounts.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
	cache  sync.Map
}

type cachedAccount struct {
	account  Account
	storedAt time.Time
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// Migrate creates the accounts table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Account{})
}

// ResolveAccount returns the account for the session, creating it on first sight
// and refreshing profile fields the session carries.
func (s *Service) ResolveAccount(ctx context.Context, claims auth.SessionClaims) (Account, error) {
	provider, subject := deriveProviderSubject(claims)
	if subject == "" {
		return Account{}, ErrInvalidIdentity
	}

	cacheKey := provider + ":" + subject
	if cached, ok := s.cache.Load(cacheKey); ok {
		if entry, ok := cached.(cachedAccount); ok && s.now().Sub(entry.storedAt) < lastSeenResolution {
			return entry.account, nil
		}
	}

	db := s.db.WithContext(ctx)
	var account Account
	err := db.Where("provider = ? AND subject = ?", provider, subject).First(&account).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		accountID, idErr := uuid.NewV7()
		if idErr != nil {
			return Account{}, idErr
		}
		account = Account{
			ID:          accountID.String(),
			Provider:    provider,
			Subject:     subject,
			Email:       normalizeEmail(claims.UserEmail),
			DisplayName: normalize(claims.UserDisplayName),
			AvatarURL:   normalize(claims.UserAvatarURL),
			LastSeenAt:  s.now().UTC(),
		}
		if err := db.Create(&account).Error; err != nil {
			return Account{}, err
		}
		s.logger.Info("account created", zap.String("account_id", account.ID), zap.String("provider", provider))
	case err != nil:
		return Account{}, err
	default:
		updates := map[string]interface{}{}
		if email := normalizeEmail(claims.UserEmail); email != "" && email != account.Email {
			updates["email"] = email
			account.Email = email
		}
		if display := normalize(claims.UserDisplayName); display != "" && display != account.DisplayName {
			updates["display_name"] = display
			account.DisplayName = display
		}
		if avatar := normalize(claims.UserAvatarURL); avatar != "" && avatar != account.AvatarURL {
			updates["avatar_url"] = avatar
			account.AvatarURL = avatar
		}
		account.LastSeenAt = s.now().UTC()
		updates["last_seen_at"] = account.LastSeenAt
		if err := db.Model(&Account{}).Where("id = ?", account.ID).Updates(updates).Error; err != nil {
			s.logger.Warn("failed to refresh account", zap.String("account_id", account.ID), zap.Error(err))
		}
	}

	s.cache.Store(cacheKey, cachedAccount{account: account, storedAt: s.now()})
	return account, nil
}

// deriveProviderSubject splits "provider:subject" user ids, falling back to the
// registered subject and finally the email.
func deriveProviderSubject(claims auth.SessionClaims) (string, string) {
	provider := defaultProvider
	subject := normalize(claims.Subject)

	raw := normalize(claims.UserID)
	if raw != "" {
		if strings.Contains(raw, ":") {
			segments := strings.SplitN(raw, ":", 2)
			if normalize(segments[0]) != "" && normalize(segments[1]) != "" {
				provider = normalize(segments[0])
				subject = normalize(segments[1])
			}
		} else if subject == "" {
			subject = raw
		}
	}

	if subject == "" {
		subject = normalizeEmail(claims.UserEmail)
	}

	return provider, subject
}
