package models

import (
	"time"
)

type InterestLedger struct {
	UserID            string    `json:"userId" gorm:"primaryKey;type:text"`
	TotalInteractions int       `json:"totalInteractions" gorm:"default:0"`
	CDate             time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	MDate             time.Time `json:"mdate" gorm:"autoUpdateTime"`
}

type LedgerEntry struct {
	UserID           string         `json:"userId" gorm:"primaryKey;type:text"`
	Ledger           InterestLedger `json:"-" gorm:"foreignKey:UserID;references:UserID;constraint:OnDelete:CASCADE;"`
	Tag              string         `json:"tag" gorm:"primaryKey;type:text"`
	Weight           float64        `json:"weight"`
	InteractionCount int            `json:"interactionCount" gorm:"default:0"`
	LastUpdated      time.Time      `json:"lastUpdated" gorm:"type:timestamp with time zone"`
}

type ViewRecord struct {
	UserID              string    `json:"userId" gorm:"primaryKey;type:text"`
	ContentID           uint      `json:"contentId" gorm:"primaryKey"`
	Content             Content   `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	ViewedAt            time.Time `json:"viewedAt" gorm:"index;type:timestamp with time zone"`
	ViewDurationSeconds int       `json:"viewDurationSeconds"`
	Completed           bool      `json:"completed"`
}
