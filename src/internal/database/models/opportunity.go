package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OpportunityType classifies a posting
type OpportunityType string

const (
	TypeInternship OpportunityType = "internship"
	TypeHackathon  OpportunityType = "hackathon"
	TypeWorkshop   OpportunityType = "workshop"
)

// OrganizerType classifies who published a posting
type OrganizerType string

const (
	OrganizerCorporate  OrganizerType = "corporate"
	OrganizerUniversity OrganizerType = "university"
	OrganizerCommunity  OrganizerType = "community"
)

// Mode describes how an opportunity is attended
type Mode string

const (
	ModeRemote Mode = "remote"
	ModeOnsite Mode = "onsite"
	ModeHybrid Mode = "hybrid"
)

// Opportunity is the canonical record for a third-party posting.
// It is owned by the ingestion pipeline; the search subsystem only
// reads it and derives index documents from it.
type Opportunity struct {
	ID            uuid.UUID       `gorm:"type:uuid;primary_key"`
	Title         string          `gorm:"size:255;not null"`
	Description   string          `gorm:"type:text"`
	Type          OpportunityType `gorm:"size:30;index"`
	OrganizerName string          `gorm:"size:255"`
	OrganizerType OrganizerType   `gorm:"size:30;index"`
	SkillsString  string          `gorm:"size:500" json:"-"`
	Mode          Mode            `gorm:"size:20;index"`
	Location      string          `gorm:"size:255"`

	ApplicationDeadline *time.Time `gorm:"index"`
	StartsAt            *time.Time
	EndsAt              *time.Time

	TagsString   string  `gorm:"size:500" json:"-"`
	QualityScore float64 `gorm:"default:0"`
	HasPrizes    bool    `gorm:"default:false"`
	HasStipend   bool    `gorm:"default:false"`
	IsActive     bool    `gorm:"default:true;index"`

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// BeforeCreate generates a UUID when none was supplied by the pipeline.
func (o *Opportunity) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// Skills returns the required skills as a slice
func (o *Opportunity) Skills() []string {
	return splitList(o.SkillsString)
}

// SetSkills stores a skill slice in the backing column
func (o *Opportunity) SetSkills(skills []string) {
	o.SkillsString = strings.Join(skills, ",")
}

// Tags returns the tags as a slice
func (o *Opportunity) Tags() []string {
	return splitList(o.TagsString)
}

// SetTags stores a tag slice in the backing column
func (o *Opportunity) SetTags(tags []string) {
	o.TagsString = strings.Join(tags, ",")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
