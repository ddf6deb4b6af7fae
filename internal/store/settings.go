package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dropcast/dropcast/internal/models"
)

// Settings returns the account's mutable settings, or a zero-value record
// when none have been written yet.
func (s *Store) Settings(account string) (*models.AccountSettings, error) {
	var settings models.AccountSettings
	err := s.db.Where("account = ?", account).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.AccountSettings{Account: account}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return &settings, nil
}

func (s *Store) SetCaption(account, caption string) error {
	return s.updateSettings(account, func(settings *models.AccountSettings) {
		settings.Caption = caption
	})
}

func (s *Store) SetPaused(account string, paused bool) error {
	return s.updateSettings(account, func(settings *models.AccountSettings) {
		settings.Paused = paused
	})
}

func (s *Store) SetTokenExpiry(account string, expiry time.Time) error {
	return s.updateSettings(account, func(settings *models.AccountSettings) {
		settings.TokenExpiry = &expiry
	})
}

func (s *Store) updateSettings(account string, mutate func(*models.AccountSettings)) error {
	var settings models.AccountSettings
	err := s.db.Where("account = ?", account).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		settings = models.AccountSettings{Account: account}
	} else if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	mutate(&settings)

	if err := s.db.Save(&settings).Error; err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
