package model

import "time"

// Agent is an LLM-backed persona that can take part in single and group chats
type Agent struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"not null;index" json:"organization_id"`
	Name           string    `gorm:"type:varchar(255);not null" json:"name"`
	Description    string    `gorm:"type:text" json:"description"`
	SystemPrompt   string    `gorm:"type:text" json:"system_prompt"`
	LLMID          *uint     `gorm:"index" json:"llm_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Relationships
	LLM        *LLM        `gorm:"foreignKey:LLMID;constraint:OnDelete:SET NULL" json:"llm,omitempty"`
	MCPServers []MCPServer `gorm:"many2many:agent_mcp_servers;constraint:OnDelete:CASCADE" json:"mcp_servers,omitempty"`
}

func (Agent) TableName() string {
	return "agents"
}
