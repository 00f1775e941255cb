package model

// ChatInfo is the chat a session belongs to, resolved to its concrete variant
type ChatInfo struct {
	Type       ChatType
	SingleChat *SingleChat
	GroupChat  *GroupChat
}

// Summary returns the stored summary of whichever chat is set
func (c *ChatInfo) Summary() string {
	switch {
	case c.SingleChat != nil:
		return c.SingleChat.Summary
	case c.GroupChat != nil:
		return c.GroupChat.Summary
	}
	return ""
}

// ChatID returns the id of whichever chat is set
func (c *ChatInfo) ChatID() uint {
	switch {
	case c.SingleChat != nil:
		return c.SingleChat.ID
	case c.GroupChat != nil:
		return c.GroupChat.ID
	}
	return 0
}

// LLMDetails is an LLM configuration with its API key decrypted, ready to build a client.
// It is never persisted or serialised.
type LLMDetails struct {
	APIType   APIType
	BaseURL   string
	Model     string
	MaxTokens int
	APIKey    string
}

// UserID returns the owner of whichever chat is set
func (c *ChatInfo) UserID() uint {
	switch {
	case c.SingleChat != nil:
		return c.SingleChat.UserID
	case c.GroupChat != nil:
		return c.GroupChat.UserID
	}
	return 0
}
