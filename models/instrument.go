package models

import (
	"time"

	"gorm.io/gorm"
)

// Instrument maps an exchange trading symbol to its broker token
type Instrument struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Symbol    string    `gorm:"uniqueIndex:idx_instrument_symbol_exchange;not null" json:"symbol"` // e.g. RELIANCE-EQ
	Exchange  string    `gorm:"uniqueIndex:idx_instrument_symbol_exchange;not null" json:"exchange"`
	Token     string    `gorm:"not null" json:"token"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MigrateInstrumentModels runs database migrations for the instrument cache
func MigrateInstrumentModels(db *gorm.DB) error {
	return db.AutoMigrate(&Instrument{})
}
