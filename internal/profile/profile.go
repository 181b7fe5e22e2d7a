// Package profile provisions users and owns the credit ledger.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/trustlend/trustlend/internal/apperr"
	"github.com/trustlend/trustlend/internal/models"
	"github.com/trustlend/trustlend/internal/settings"
	"gorm.io/gorm"
)

// Service reads and mutates user profiles.
type Service struct {
	db *gorm.DB
}

// NewService constructs a profile Service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// View is a profile enriched with account level counters.
type View struct {
	Profile        models.Profile
	Email          string
	WalletsCount   int64
	DocumentsCount int64
}

// IsBorrower reports whether the viewed profile may borrow.
func (v View) IsBorrower() bool { return v.Profile.IsBorrower() }

// IsLender reports whether the viewed profile may lend.
func (v View) IsLender() bool { return v.Profile.IsLender() }

// UpdateInput holds editable profile fields.
type UpdateInput struct {
	DisplayName      string
	Role             models.ProfileRole
	AllowAssessments *bool
}

// Provision returns the user for subject, creating the user and a starting
// profile on first sight.
func (s *Service) Provision(ctx context.Context, subject, email, displayName, avatarURL string) (*models.User, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, apperr.ErrNotAuthenticated
	}
	if existing, errFind := s.findBySubject(ctx, subject); errFind == nil {
		return existing, nil
	} else if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("profile: find user: %w", errFind)
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = defaultDisplayName(email)
	}
	now := time.Now().UTC()
	user := models.User{Subject: subject, Email: strings.TrimSpace(email), CreatedAt: now}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&user).Error; errCreate != nil {
			return errCreate
		}
		profile := models.Profile{
			UserID:           user.ID,
			DisplayName:      displayName,
			AvatarURL:        strings.TrimSpace(avatarURL),
			Role:             models.ProfileRoleBoth,
			AllowAssessments: true,
			Credits:          decimal.NewFromInt(settings.StartingCredits),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if errCreate := tx.Create(&profile).Error; errCreate != nil {
			return errCreate
		}
		user.Profile = &profile
		return nil
	})
	if errTx != nil {
		// A concurrent first sign-in may have won the unique index.
		if existing, errFind := s.findBySubject(ctx, subject); errFind == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("profile: provision user: %w", errTx)
	}
	log.WithFields(log.Fields{"user_id": user.ID, "subject": subject}).Info("profile: provisioned user")
	return &user, nil
}

func (s *Service) findBySubject(ctx context.Context, subject string) (*models.User, error) {
	var user models.User
	if errFind := s.db.WithContext(ctx).Preload("Profile").Where("subject = ?", subject).First(&user).Error; errFind != nil {
		return nil, errFind
	}
	return &user, nil
}

// Get returns the caller's profile with email, wallet and document counts.
func (s *Service) Get(ctx context.Context, userID uint64) (*View, error) {
	var user models.User
	if errFind := s.db.WithContext(ctx).Preload("Profile").First(&user, userID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.ErrNotFound, "User not found")
		}
		return nil, fmt.Errorf("profile: get user: %w", errFind)
	}
	if user.Profile == nil {
		return nil, apperr.New(apperr.ErrNotFound, "Profile not found")
	}

	view := &View{Profile: *user.Profile, Email: user.Email}
	if errCount := s.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("user_id = ?", userID).
		Count(&view.WalletsCount).Error; errCount != nil {
		return nil, fmt.Errorf("profile: count wallets: %w", errCount)
	}
	if errCount := s.db.WithContext(ctx).Model(&models.Document{}).
		Where("user_id = ? AND is_deleted = ?", userID, false).
		Count(&view.DocumentsCount).Error; errCount != nil {
		return nil, fmt.Errorf("profile: count documents: %w", errCount)
	}
	return view, nil
}

// Find returns the raw profile of a user.
func (s *Service) Find(ctx context.Context, userID uint64) (*models.Profile, error) {
	var profile models.Profile
	if errFind := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.ErrNotFound, "Profile not found")
		}
		return nil, fmt.Errorf("profile: find: %w", errFind)
	}
	return &profile, nil
}

// Update edits the display name, role and assessment consent.
func (s *Service) Update(ctx context.Context, userID uint64, in UpdateInput) (*models.Profile, error) {
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if in.DisplayName == "" {
		return nil, apperr.New(apperr.ErrInvalidInput, "displayName is required")
	}
	if !in.Role.Valid() {
		return nil, apperr.New(apperr.ErrInvalidInput, "role must be borrower, lender or both")
	}
	profile, errFind := s.Find(ctx, userID)
	if errFind != nil {
		return nil, errFind
	}

	updates := map[string]any{
		"display_name": in.DisplayName,
		"role":         in.Role,
		"updated_at":   time.Now().UTC(),
	}
	if in.AllowAssessments != nil {
		updates["allow_assessments"] = *in.AllowAssessments
	}
	if errUpdate := s.db.WithContext(ctx).Model(&models.Profile{}).
		Where("id = ?", profile.ID).
		Updates(updates).Error; errUpdate != nil {
		return nil, fmt.Errorf("profile: update: %w", errUpdate)
	}
	return s.Find(ctx, userID)
}

// Credits returns the balance, or zero when the user has no profile.
func (s *Service) Credits(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	profile, errFind := s.Find(ctx, userID)
	if errFind != nil {
		if errors.Is(errFind, apperr.ErrNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, errFind
	}
	return profile.Credits, nil
}

// AddCredits tops up the balance and returns the new value.
func (s *Service) AddCredits(ctx context.Context, userID uint64, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, apperr.New(apperr.ErrInvalidInput, "amount must be greater than zero")
	}
	var balance decimal.Decimal
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Profile{}).
			Where("user_id = ?", userID).
			Updates(map[string]any{
				"credits":    gorm.Expr("credits + ?", amount),
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.ErrNotFound, "Profile not found")
		}
		var profile models.Profile
		if errFind := tx.Where("user_id = ?", userID).First(&profile).Error; errFind != nil {
			return errFind
		}
		balance = profile.Credits
		return nil
	})
	if errTx != nil {
		if errors.Is(errTx, apperr.ErrNotFound) {
			return decimal.Zero, errTx
		}
		return decimal.Zero, fmt.Errorf("profile: add credits: %w", errTx)
	}
	return balance, nil
}

func defaultDisplayName(email string) string {
	if local, _, ok := strings.Cut(strings.TrimSpace(email), "@"); ok && local != "" {
		return local
	}
	return settings.UnknownDisplayName
}

// DisplayNames maps user IDs to display names. Users without a profile are
// absent from the map; callers default them with NameOr.
func DisplayNames(ctx context.Context, conn *gorm.DB, userIDs []uint64) (map[uint64]string, error) {
	out := make(map[uint64]string, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var rows []models.Profile
	if errFind := conn.WithContext(ctx).
		Select("user_id", "display_name").
		Where("user_id IN ?", userIDs).
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("profile: display names: %w", errFind)
	}
	for _, row := range rows {
		out[row.UserID] = row.DisplayName
	}
	return out, nil
}

// NameOr returns the display name for userID or the unknown placeholder.
func NameOr(names map[uint64]string, userID uint64) string {
	if name := strings.TrimSpace(names[userID]); name != "" {
		return name
	}
	return settings.UnknownDisplayName
}
