package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BehaviorAction is the kind of user interaction being recorded
type BehaviorAction string

const (
	ActionSearch   BehaviorAction = "search"
	ActionView     BehaviorAction = "view"
	ActionFavorite BehaviorAction = "favorite"
)

// BehaviorEvent is an append-only record of a user interaction.
// It feeds the offline popularity/personalization recomputation and
// is never updated after insert.
type BehaviorEvent struct {
	ID             uuid.UUID      `gorm:"type:uuid;primary_key"`
	UserID         *uuid.UUID     `gorm:"type:uuid;index"`
	SessionID      string         `gorm:"size:64;index"`
	Action         BehaviorAction `gorm:"size:20;not null;index"`
	Query          string         `gorm:"size:500"`
	OpportunityID  *uuid.UUID     `gorm:"type:uuid;index"`
	ResultPosition int            `gorm:"default:0"`
	OccurredAt     time.Time      `gorm:"index"`
	CreatedAt      time.Time
}

// BeforeCreate assigns an event id and a timestamp when missing.
func (e *BehaviorEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return nil
}
