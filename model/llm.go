package model

import "time"

// APIType selects the provider protocol used to talk to an LLM
type APIType string

const (
	APITypeOpenAI           APIType = "openai"
	APITypeOpenAICompatible APIType = "openai_compatible"
	APITypeAnthropic        APIType = "anthropic"
	APITypeOllama           APIType = "ollama"
)

// Valid reports whether t is a known provider type. The empty value is
// accepted and means "infer from the base URL".
func (t APIType) Valid() bool {
	switch t {
	case "", APITypeOpenAI, APITypeOpenAICompatible, APITypeAnthropic, APITypeOllama:
		return true
	}
	return false
}

// LLM is a model configuration an agent or a session can point at.
// The API key is stored encrypted (AES-256-GCM) with a per-row salt.
type LLM struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	OrganizationID  uint      `gorm:"not null;index" json:"organization_id"`
	Name            string    `gorm:"type:varchar(255);not null" json:"name"`
	APIType         APIType   `gorm:"type:varchar(32);not null;default:'openai_compatible'" json:"api_type"`
	BaseURL         string    `gorm:"type:varchar(512)" json:"base_url"`
	Model           string    `gorm:"type:varchar(255);not null" json:"model"`
	MaxTokens       int       `gorm:"default:4096" json:"max_tokens"`
	APIKeyEncrypted []byte    `json:"-"`
	APIKeyNonce     []byte    `json:"-"`
	APIKeySalt      []byte    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (LLM) TableName() string {
	return "llms"
}

// HasAPIKey reports whether an encrypted key is stored
func (l *LLM) HasAPIKey() bool {
	return len(l.APIKeyEncrypted) > 0 && len(l.APIKeyNonce) > 0
}
