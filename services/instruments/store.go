// Package instruments resolves trading symbols to SmartAPI exchange tokens
// from the broker's scrip master, cached in a gorm table.
package instruments

import (
	"context"
	"fmt"

	"breakout_bot/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists instruments
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store over db and migrates the instrument table
func NewStore(db *gorm.DB) (*Store, error) {
	if err := models.MigrateInstrumentModels(db); err != nil {
		return nil, fmt.Errorf("migrate instruments: %w", err)
	}
	return &Store{db: db}, nil
}

// Count returns the number of cached instruments for exchange
func (s *Store) Count(ctx context.Context, exchange string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Instrument{}).Where("exchange = ?", exchange).Count(&n).Error
	return n, err
}

// Upsert inserts instruments, refreshing token and name on conflict
func (s *Store) Upsert(ctx context.Context, rows []models.Instrument) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "exchange"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "name", "updated_at"}),
	}).CreateInBatches(rows, 500).Error
}

// All returns every cached instrument for exchange
func (s *Store) All(ctx context.Context, exchange string) ([]models.Instrument, error) {
	var rows []models.Instrument
	err := s.db.WithContext(ctx).Where("exchange = ?", exchange).Find(&rows).Error
	return rows, err
}
