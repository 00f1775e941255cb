package model

import "time"

// Organization is the tenant that owns agents, LLM configurations, MCP servers and chats
type Organization struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Users      []User      `gorm:"foreignKey:OrganizationID;constraint:OnDelete:CASCADE" json:"-"`
	Agents     []Agent     `gorm:"foreignKey:OrganizationID;constraint:OnDelete:CASCADE" json:"-"`
	LLMs       []LLM       `gorm:"foreignKey:OrganizationID;constraint:OnDelete:CASCADE" json:"-"`
	MCPServers []MCPServer `gorm:"foreignKey:OrganizationID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Organization) TableName() string {
	return "organizations"
}
