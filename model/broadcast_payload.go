package model

import (
	"time"
)

// BroadcastPayload holds a group message too large for a NOTIFY payload.
// Listeners load it by id; rows are pruned by the cleanup job.
type BroadcastPayload struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Channel   string    `gorm:"type:varchar(100);not null" json:"channel"`
	Payload   string    `gorm:"type:text;not null" json:"payload"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (BroadcastPayload) TableName() string {
	return "broadcast_payloads"
}
