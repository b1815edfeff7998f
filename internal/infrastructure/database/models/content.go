package models

import (
	"time"

	"github.com/lib/pq"
)

type Content struct {
	ID              uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	ExternalID      string         `json:"externalId" gorm:"type:text;not null;uniqueIndex:idx_contents_kind_external"`
	Kind            string         `json:"kind" gorm:"type:text;not null;uniqueIndex:idx_contents_kind_external;index"`
	Library         string         `json:"library" gorm:"type:text;index"`
	Title           string         `json:"title" gorm:"type:text"`
	Description     string         `json:"description" gorm:"type:text"`
	URL             string         `json:"url" gorm:"type:text"`
	ThumbnailURL    string         `json:"thumbnailUrl" gorm:"type:text"`
	Category        string         `json:"category" gorm:"type:text;index"`
	Tags            pq.StringArray `json:"tags" gorm:"type:text[]"`
	Active          bool           `json:"active" gorm:"index;default:true"`
	ExpiresAt       *time.Time     `json:"expiresAt" gorm:"index"`
	ViewCount       int64          `json:"viewCount" gorm:"default:0"`
	UniqueViewCount int64          `json:"uniqueViewCount" gorm:"default:0"`
	LikeCount       int64          `json:"likeCount" gorm:"default:0"`
	SizeBytes       int64          `json:"sizeBytes"`
	DurationSeconds int            `json:"durationSeconds"`
	CDate           time.Time      `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	MDate           time.Time      `json:"mdate" gorm:"autoUpdateTime"`
}
