package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uintPtr(v uint) *uint { return &v }

func TestSessionValidateExclusivity(t *testing.T) {
	tests := []struct {
		name    string
		session Session
		wantErr bool
	}{
		{"single only", Session{SingleChatID: uintPtr(1)}, false},
		{"group only", Session{GroupChatID: uintPtr(2)}, false},
		{"both", Session{SingleChatID: uintPtr(1), GroupChatID: uintPtr(2)}, true},
		{"neither", Session{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.session.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrSessionChatExclusive)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSessionBeforeCreateAssignsID(t *testing.T) {
	s := &Session{GroupChatID: uintPtr(3)}
	require.NoError(t, s.BeforeCreate(nil))
	assert.NotEqual(t, uuid.Nil, s.ID)
	assert.Equal(t, ChatTypeGroup, s.ChatType())
	assert.Equal(t, uint(3), s.ChatID())

	bad := &Session{}
	assert.ErrorIs(t, bad.BeforeCreate(nil), ErrSessionChatExclusive)
}

func TestSessionGroupName(t *testing.T) {
	id := uuid.MustParse("6f1c2a8e-3b4d-4c5e-9f60-718293a4b5c6")
	assert.Equal(t, "session_6f1c2a8e3b4d4c5e9f60718293a4b5c6", SessionGroupName(id))
}

func TestSenderKindLabel(t *testing.T) {
	assert.Equal(t, "User", SenderUser.Label())
	assert.Equal(t, "Agent", SenderAgent.Label())
}
