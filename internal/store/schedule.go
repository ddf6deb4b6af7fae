package store

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/dropcast/dropcast/internal/models"
)

// Weekdays are the seven fixed keys a schedule table may carry.
var Weekdays = []string{
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}

// ValidWeekday reports whether name is one of the seven fixed weekday keys.
func ValidWeekday(name string) bool {
	for _, day := range Weekdays {
		if day == name {
			return true
		}
	}
	return false
}

// TimesFor returns the configured HH:MM publish times for an account on a
// weekday, in stored order.
func (s *Store) TimesFor(account, weekday string) ([]string, error) {
	var slots []models.ScheduleSlot
	err := s.db.Where("account = ? AND weekday = ?", account, weekday).
		Order("position ASC").
		Find(&slots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}

	times := make([]string, 0, len(slots))
	for _, slot := range slots {
		times = append(times, slot.Time)
	}
	return times, nil
}

// ReplaceDay swaps an account's slots for one weekday with the given times.
// Last writer wins; there is no optimistic concurrency control.
func (s *Store) ReplaceDay(account, weekday string, times []string) error {
	if !ValidWeekday(weekday) {
		return fmt.Errorf("invalid weekday %q", weekday)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account = ? AND weekday = ?", account, weekday).
			Delete(&models.ScheduleSlot{}).Error; err != nil {
			return fmt.Errorf("failed to clear schedule day: %w", err)
		}

		for i, t := range times {
			slot := &models.ScheduleSlot{
				Account:  account,
				Weekday:  weekday,
				Time:     t,
				Position: i,
			}
			if err := tx.Create(slot).Error; err != nil {
				return fmt.Errorf("failed to store schedule slot: %w", err)
			}
		}
		return nil
	})
}
