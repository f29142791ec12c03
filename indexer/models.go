package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventRow is one committed ledger event.
type EventRow struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64    `gorm:"index"`
	CampaignID uint64    `gorm:"index"`
	Type       string    `gorm:"size:64;index"`
	Actor      string    `gorm:"size:42;index"`
	Amount     string    `gorm:"size:80"`
	Attributes string    `gorm:"type:text"`
	OccurredAt time.Time `gorm:"index"`
	CreatedAt  time.Time
}

// TableName pins the table name independent of gorm's pluralisation rules.
func (EventRow) TableName() string { return "crowdfund_events" }

// AutoMigrate performs all schema migrations for the indexer.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRow{})
}
