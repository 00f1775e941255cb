package model

import (
	"time"

	"github.com/google/uuid"
)

// SenderKind tags who authored a message
type SenderKind string

const (
	SenderUser  SenderKind = "user"
	SenderAgent SenderKind = "agent"
)

// Label is the capitalised kind used in transcripts, e.g. "User" or "Agent"
func (k SenderKind) Label() string {
	switch k {
	case SenderUser:
		return "User"
	case SenderAgent:
		return "Agent"
	}
	return string(k)
}

// Message is immutable once created and belongs to exactly one session and one chat
type Message struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	SessionID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"session_id"`
	SingleChatID *uint      `gorm:"index" json:"single_chat_id,omitempty"`
	GroupChatID  *uint      `gorm:"index" json:"group_chat_id,omitempty"`
	Sender       SenderKind `gorm:"type:varchar(10);not null" json:"sender"`
	UserID       *uint      `gorm:"index" json:"user_id,omitempty"`
	AgentID      *uint      `gorm:"index" json:"agent_id,omitempty"`
	Content      string     `gorm:"type:text;not null" json:"content"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`

	// Relationships
	Session Session `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
	User    *User   `gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL" json:"user,omitempty"`
	Agent   *Agent  `gorm:"foreignKey:AgentID;constraint:OnDelete:SET NULL" json:"agent,omitempty"`
}

func (Message) TableName() string {
	return "messages"
}

// SenderName returns the display name of the author, when the relation is loaded
func (m *Message) SenderName() string {
	switch m.Sender {
	case SenderUser:
		if m.User != nil {
			return m.User.Name
		}
		return "user"
	case SenderAgent:
		if m.Agent != nil {
			return m.Agent.Name
		}
		return "agent"
	}
	return "unknown"
}
