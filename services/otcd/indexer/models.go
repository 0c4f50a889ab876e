package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OfferRow mirrors the latest known state of an offer. Addresses are stored
// as 0x-prefixed hex so the table joins cleanly with event attributes.
type OfferRow struct {
	Address             string `gorm:"primaryKey;size:42"`
	OfferID             uint64 `gorm:"not null"`
	Maker               string `gorm:"size:42;index"`
	InputAsset          string `gorm:"size:42;index"`
	OutputAsset         string `gorm:"size:42;index"`
	TokenAmount         uint64
	Remaining           uint64
	ExpectedTotalAmount uint64
	FeePercentage       uint64
	Deadline            int64
	Status              string `gorm:"size:32;index"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (OfferRow) TableName() string { return "otc_offers" }

// Fill records one settled fill.
type Fill struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	Offer         string    `gorm:"size:42;index"`
	Taker         string    `gorm:"size:42;index"`
	InputAsset    string    `gorm:"size:42"`
	OutputAsset   string    `gorm:"size:42"`
	InputAmount   uint64
	PaymentAmount uint64
	FeeAmount     uint64
	Remaining     uint64
	CreatedAt     time.Time `gorm:"index"`
}

func (Fill) TableName() string { return "otc_fills" }

// EventLog keeps every emitted event verbatim for audit.
type EventLog struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Type      string    `gorm:"size:64;index"`
	Offer     string    `gorm:"size:42;index"`
	Payload   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index"`
}

func (EventLog) TableName() string { return "otc_events" }

// AutoMigrate creates or updates the indexer tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&OfferRow{}, &Fill{}, &EventLog{})
}
