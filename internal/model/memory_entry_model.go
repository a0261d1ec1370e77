package model

import (
	"time"

	"gorm.io/datatypes"
)

type MemoryEntry struct {
	Id              string         `gorm:"type:varchar(64);primaryKey"`
	Email           string         `gorm:"type:varchar(255);index:idx_memory_email_session"`
	SessionId       string         `gorm:"type:varchar(64);index:idx_memory_email_session"`
	Query           string         `gorm:"type:text"`
	ResponseSummary string         `gorm:"type:text"`
	FullResponse    string         `gorm:"type:text"`
	Source          string         `gorm:"type:varchar(32)"`
	Context         datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt       time.Time      `gorm:"autoCreateTime;index"`
}

func (MemoryEntry) TableName() string {
	return "memory_entries"
}
