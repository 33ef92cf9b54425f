package token

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", 5)

	tok, convID, err := m.GenerateChatToken("")
	require.NoError(t, err)
	_, err = uuid.Parse(convID)
	require.NoError(t, err)

	claims, err := m.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, convID, claims.ConversationID)

	again, sameID, err := m.GenerateChatToken(convID)
	require.NoError(t, err)
	assert.Equal(t, convID, sameID)
	assert.NotEqual(t, tok, again)
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	tok, _, err := NewJWTManager("a", 5).GenerateChatToken("")
	require.NoError(t, err)
	_, err = NewJWTManager("b", 5).VerifyToken(tok)
	assert.Error(t, err)

	_, err = NewJWTManager("a", 5).VerifyToken("not-a-token")
	assert.Error(t, err)
}

func TestGenerateChatTokenRejectsBadID(t *testing.T) {
	_, _, err := NewJWTManager("a", 5).GenerateChatToken("../etc")
	assert.Error(t, err)
}

func TestGenerateRandomString(t *testing.T) {
	assert.Len(t, GenerateRandomString(8), 16)
	assert.NotEqual(t, GenerateRandomString(8), GenerateRandomString(8))
}
