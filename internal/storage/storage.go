package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/C4T-BuT-S4D/promobot/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("not found")

type Storage struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Storage {
	return &Storage{db: db}
}

func (s *Storage) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(
		&models.User{},
		&models.BlockedPhone{},
		&models.PromoCode{},
		&models.GlobalState{},
	); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting sql db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	return nil
}

func (s *Storage) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &user, nil
}

// SaveUser registers a user. Registering again from the same Telegram account
// overwrites the profile fields but keeps the id.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "telegram_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"chat_id", "name", "phone", "address", "photo_file_id", "updated_at"}),
			}).
			Create(user).
			Error; err != nil {
			return fmt.Errorf("upserting user: %w", err)
		}

		var stored models.User
		if err := tx.Where("telegram_id = ?", user.TelegramID).First(&stored).Error; err != nil {
			return fmt.Errorf("getting user: %w", err)
		}
		*user = stored
		return nil
	}); err != nil {
		return fmt.Errorf("in tx: %w", err)
	}

	return nil
}

func (s *Storage) ListUsers(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	if err := s.db.WithContext(ctx).Order("created_at").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

func (s *Storage) IsPhoneBlocked(ctx context.Context, phone string) (bool, error) {
	var count int64
	if err := s.db.
		WithContext(ctx).
		Model(&models.BlockedPhone{}).
		Where("phone = ?", phone).
		Count(&count).
		Error; err != nil {
		return false, fmt.Errorf("checking blocked phone: %w", err)
	}
	return count > 0, nil
}

func (s *Storage) ListBlockedPhones(ctx context.Context) ([]string, error) {
	var phones []string
	if err := s.db.WithContext(ctx).Model(&models.BlockedPhone{}).Pluck("phone", &phones).Error; err != nil {
		return nil, fmt.Errorf("listing blocked phones: %w", err)
	}
	return phones, nil
}

func (s *Storage) BlockPhone(ctx context.Context, phone string, blockedBy int64) error {
	if err := s.db.
		WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.BlockedPhone{Phone: phone, BlockedBy: blockedBy}).
		Error; err != nil {
		return fmt.Errorf("blocking phone: %w", err)
	}
	return nil
}

// RedeemPromo inserts the promo unless its code is already taken, and labels
// it with its zero-padded id. Returns false if the code was taken.
func (s *Storage) RedeemPromo(ctx context.Context, promo *models.PromoCode) (bool, error) {
	promo.Date = promo.Date.UTC()

	redeemed := false
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "code"}},
				DoNothing: true,
			}).
			Create(promo)
		if res.Error != nil {
			return fmt.Errorf("inserting promo: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		promo.SpecialCode = fmt.Sprintf("%06d", promo.ID)
		if err := tx.
			Model(&models.PromoCode{}).
			Where("id = ?", promo.ID).
			Update("special_code", promo.SpecialCode).
			Error; err != nil {
			return fmt.Errorf("labelling promo: %w", err)
		}

		redeemed = true
		return nil
	}); err != nil {
		return false, fmt.Errorf("in tx: %w", err)
	}

	return redeemed, nil
}

func (s *Storage) ListPromosForUser(ctx context.Context, userID string) ([]*models.PromoCode, error) {
	var result []*models.PromoCode
	if err := s.db.
		WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id").
		Find(&result).
		Error; err != nil {
		return nil, fmt.Errorf("listing promos for user: %w", err)
	}
	return result, nil
}

// ListPromosBetween returns promos with from <= date < to, oldest first, with
// owners preloaded.
func (s *Storage) ListPromosBetween(ctx context.Context, from, to time.Time) ([]*models.PromoCode, error) {
	var result []*models.PromoCode
	if err := s.db.
		WithContext(ctx).
		Preload("User").
		Where("date >= ? AND date < ?", from.UTC(), to.UTC()).
		Order("date, id").
		Find(&result).
		Error; err != nil {
		return nil, fmt.Errorf("listing promos: %w", err)
	}
	return result, nil
}

func (s *Storage) ListPromosBefore(ctx context.Context, before time.Time) ([]*models.PromoCode, error) {
	var result []*models.PromoCode
	if err := s.db.
		WithContext(ctx).
		Where("date < ?", before.UTC()).
		Order("id").
		Find(&result).
		Error; err != nil {
		return nil, fmt.Errorf("listing promos: %w", err)
	}
	return result, nil
}

func (s *Storage) SetSpecialCode(ctx context.Context, promoID uint, specialCode string) error {
	if err := s.db.
		WithContext(ctx).
		Model(&models.PromoCode{}).
		Where("id = ?", promoID).
		Update("special_code", specialCode).
		Error; err != nil {
		return fmt.Errorf("updating special code: %w", err)
	}
	return nil
}

func (s *Storage) LatestPromo(ctx context.Context) (*models.PromoCode, error) {
	var promo models.PromoCode
	if err := s.db.WithContext(ctx).Order("date DESC, id DESC").First(&promo).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting latest promo: %w", err)
	}
	return &promo, nil
}

// EraseAll drops every promo and every user in one transaction. Blocked
// phones survive.
func (s *Storage) EraseAll(ctx context.Context) (int64, error) {
	var removed int64
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = tx.Session(&gorm.Session{AllowGlobalUpdate: true})

		res := tx.Delete(&models.PromoCode{})
		if res.Error != nil {
			return fmt.Errorf("deleting promos: %w", res.Error)
		}
		removed += res.RowsAffected

		res = tx.Delete(&models.User{})
		if res.Error != nil {
			return fmt.Errorf("deleting users: %w", res.Error)
		}
		removed += res.RowsAffected
		return nil
	}); err != nil {
		return 0, fmt.Errorf("in tx: %w", err)
	}
	return removed, nil
}

func (s *Storage) Stats(ctx context.Context) (*models.PromoStats, error) {
	var stats models.PromoStats
	if err := s.db.WithContext(ctx).Model(&models.User{}).Count(&stats.Users).Error; err != nil {
		return nil, fmt.Errorf("counting users: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.PromoCode{}).Count(&stats.Promos).Error; err != nil {
		return nil, fmt.Errorf("counting promos: %w", err)
	}
	return &stats, nil
}

func (s *Storage) GetOrCreateGlobalState(ctx context.Context) (*models.GlobalState, error) {
	state := models.GlobalState{ID: models.GlobalStateID}
	if err := s.db.WithContext(ctx).FirstOrCreate(&state, models.GlobalState{ID: models.GlobalStateID}).Error; err != nil {
		return nil, fmt.Errorf("getting global state: %w", err)
	}
	return &state, nil
}

// UpdateLastUpdate stores the id of the last received update, so polling
// resumes after it on restart. The id never goes backwards.
func (s *Storage) UpdateLastUpdate(ctx context.Context, updateID int) error {
	state := models.GlobalState{ID: models.GlobalStateID, LastUpdateID: updateID}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Set{{
			Column: clause.Column{Name: "last_update_id"},
			Value:  gorm.Expr("CASE WHEN global_states.last_update_id > excluded.last_update_id THEN global_states.last_update_id ELSE excluded.last_update_id END"),
		}},
	}).Create(&state).Error; err != nil {
		return fmt.Errorf("updating last update: %w", err)
	}
	return nil
}
