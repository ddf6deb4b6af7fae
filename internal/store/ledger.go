package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dropcast/dropcast/internal/models"
)

// IsDuplicate reports whether the fingerprint has already been published.
func (s *Store) IsDuplicate(fingerprint string) (bool, error) {
	var entry models.PostedFile
	err := s.db.Where("fingerprint = ?", fingerprint).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check ledger: %w", err)
	}
	return true, nil
}

// MarkPublished records a fingerprint as published. Entries are never
// mutated afterwards.
func (s *Store) MarkPublished(account, fingerprint, filename string) error {
	entry := &models.PostedFile{
		Account:     account,
		Fingerprint: fingerprint,
		Filename:    filename,
		PublishedAt: time.Now().UTC(),
	}
	if err := s.db.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to mark published: %w", err)
	}
	return nil
}

// ResetLedger drops all ledger entries for an account. This is the only
// way entries leave the ledger and is meant for out-of-band use.
func (s *Store) ResetLedger(account string) error {
	if err := s.db.Where("account = ?", account).Delete(&models.PostedFile{}).Error; err != nil {
		return fmt.Errorf("failed to reset ledger: %w", err)
	}
	return nil
}
