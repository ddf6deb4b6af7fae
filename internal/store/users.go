package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dropcast/dropcast/internal/models"
)

// IsBanned reports whether a wizard user has been locked out.
func (s *Store) IsBanned(telegramID int64) (bool, error) {
	user, err := s.botUser(telegramID)
	if err != nil {
		return false, err
	}
	return user != nil && user.Banned, nil
}

// Ban locks a user out of all future wizard sessions.
func (s *Store) Ban(telegramID int64) error {
	user, err := s.botUser(telegramID)
	if err != nil {
		return err
	}
	if user == nil {
		user = &models.BotUser{TelegramID: telegramID}
	}
	user.Banned = true
	if err := s.db.Save(user).Error; err != nil {
		return fmt.Errorf("failed to ban user: %w", err)
	}
	return nil
}

// Authorize records a successful password check for a user.
func (s *Store) Authorize(telegramID int64) error {
	user, err := s.botUser(telegramID)
	if err != nil {
		return err
	}
	if user == nil {
		user = &models.BotUser{TelegramID: telegramID}
	}
	now := time.Now().UTC()
	user.AuthorizedAt = &now
	if err := s.db.Save(user).Error; err != nil {
		return fmt.Errorf("failed to authorize user: %w", err)
	}
	return nil
}

func (s *Store) botUser(telegramID int64) (*models.BotUser, error) {
	var user models.BotUser
	err := s.db.Where("telegram_id = ?", telegramID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}
