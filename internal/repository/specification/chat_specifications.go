package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByChatSessionID struct {
	ChatSessionID uuid.UUID
}

func (s ByChatSessionID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("chat_session_id = ?", s.ChatSessionID)
}

type ByPlanName struct {
	PlanName string
}

func (s ByPlanName) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("plan_name = ?", s.PlanName)
}
