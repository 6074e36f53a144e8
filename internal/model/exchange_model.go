package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Exchange rows are append-only; updates never touch persisted rows.
type Exchange struct {
	Id            uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ChatSessionId uuid.UUID      `gorm:"type:uuid;not null;index"`
	Query         string         `gorm:"type:text;not null"`
	Response      string         `gorm:"type:text"`
	Results       datatypes.JSON `gorm:"type:jsonb"` // retrieval result set that grounded the response
	Temperature   float64        `gorm:"type:numeric"`
	TopP          float64        `gorm:"type:numeric"`
	Incomplete    bool           `gorm:"default:false"`
	CreatedAt     time.Time      `gorm:"autoCreateTime;index"`
}

func (Exchange) TableName() string {
	return "exchanges"
}
