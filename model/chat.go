package model

import (
	"time"
)

// ChatType distinguishes the two chat variants a session can belong to
type ChatType string

const (
	ChatTypeSingle ChatType = "single"
	ChatTypeGroup  ChatType = "group"
)

// SingleChat is a durable one-to-one conversation between a user and an agent.
// Summary is empty until the first session closes and a summary is generated.
type SingleChat struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	AgentID   uint      `gorm:"not null;index" json:"agent_id"`
	Summary   string    `gorm:"type:text;not null;default:''" json:"summary"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	User  User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Agent Agent `gorm:"foreignKey:AgentID;constraint:OnDelete:CASCADE" json:"agent,omitempty"`
}

func (SingleChat) TableName() string {
	return "single_chats"
}

// GroupChat is a durable conversation between a user and several agents
type GroupChat struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Name      string    `gorm:"type:varchar(255)" json:"name"`
	Summary   string    `gorm:"type:text;not null;default:''" json:"summary"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	User   User    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Agents []Agent `gorm:"many2many:group_chat_agents;constraint:OnDelete:CASCADE" json:"agents,omitempty"`
}

func (GroupChat) TableName() string {
	return "group_chats"
}
