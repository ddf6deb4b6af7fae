package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dropcast/dropcast/internal/models"
)

// RecordResult overwrites the account's last-attempt record. One row per
// account, updated on every attempt whether it succeeded or not.
func (s *Store) RecordResult(result *models.PostResult) error {
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account"}},
		DoUpdates: clause.AssignmentColumns([]string{"run_id", "filename", "success", "error", "posted_at"}),
	}).Create(result).Error
	if err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}
	return nil
}

// LastResult returns the most recent attempt record for an account, or nil
// when no attempt has been recorded yet.
func (s *Store) LastResult(account string) (*models.PostResult, error) {
	var result models.PostResult
	err := s.db.Where("account = ?", account).First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load result: %w", err)
	}
	return &result, nil
}
