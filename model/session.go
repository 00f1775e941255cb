package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrSessionChatExclusive = errors.New("session must belong to exactly one of single chat or group chat")

// Session is one live conversational run bound to exactly one chat.
// A chat has at most one active session; the partial unique indexes
// back that up at the database level.
type Session struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SingleChatID *uint     `gorm:"index:idx_sessions_active_single,unique,where:is_active = true" json:"single_chat_id"`
	GroupChatID  *uint     `gorm:"index:idx_sessions_active_group,unique,where:is_active = true" json:"group_chat_id"`
	IsActive     bool      `gorm:"not null;default:true;index" json:"is_active"`
	LLMID        *uint     `gorm:"index" json:"llm_id"` // selector and summary model
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Relationships
	SingleChat *SingleChat `gorm:"foreignKey:SingleChatID;constraint:OnDelete:CASCADE" json:"-"`
	GroupChat  *GroupChat  `gorm:"foreignKey:GroupChatID;constraint:OnDelete:CASCADE" json:"-"`
	LLM        *LLM        `gorm:"foreignKey:LLMID;constraint:OnDelete:SET NULL" json:"-"`
}

func (Session) TableName() string {
	return "sessions"
}

// Validate checks the single/group exclusivity rule
func (s *Session) Validate() error {
	if (s.SingleChatID == nil) == (s.GroupChatID == nil) {
		return ErrSessionChatExclusive
	}
	return nil
}

// ChatType returns which chat variant the session belongs to
func (s *Session) ChatType() ChatType {
	if s.GroupChatID != nil {
		return ChatTypeGroup
	}
	return ChatTypeSingle
}

// ChatID returns the id of the owning chat
func (s *Session) ChatID() uint {
	if s.GroupChatID != nil {
		return *s.GroupChatID
	}
	if s.SingleChatID != nil {
		return *s.SingleChatID
	}
	return 0
}

// GroupName is the broadcast group every connection watching this session joins
func (s *Session) GroupName() string {
	return SessionGroupName(s.ID)
}

// SessionGroupName formats the broadcast group name for a session id.
// Hyphens are dropped so the name is also a valid Postgres channel identifier.
func SessionGroupName(id uuid.UUID) string {
	b := make([]byte, 0, 40)
	b = append(b, "session_"...)
	for _, c := range id.String() {
		if c != '-' {
			b = append(b, byte(c))
		}
	}
	return string(b)
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return s.Validate()
}
