package telegram

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"persona-chat-relay/internal/config"
	"persona-chat-relay/internal/domain"
	"persona-chat-relay/internal/usecase/conversation"
)

func TestSplitText(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitText("short", 10))
	assert.Equal(t, []string{"abc"}, splitText("abc", 0))

	chunks := splitText(strings.Repeat("好", 25), 10)
	require.Len(t, chunks, 3)
	assert.Equal(t, strings.Repeat("好", 10), chunks[0])
	assert.Equal(t, strings.Repeat("好", 5), chunks[2])
}

func TestIsAllowedUser(t *testing.T) {
	open := &config.BotConfig{}
	assert.True(t, isAllowedUser(42, open))

	restricted := &config.BotConfig{AdminUserIDs: []int64{1}, AllowedUserIDs: []int64{2, 3}}
	assert.True(t, isAllowedUser(1, restricted))
	assert.True(t, isAllowedUser(3, restricted))
	assert.False(t, isAllowedUser(4, restricted))

	adminsOnly := &config.BotConfig{AdminUserIDs: []int64{1}}
	assert.True(t, isAllowedUser(5, adminsOnly))
}

func TestUserMessageFor(t *testing.T) {
	assert.Equal(t, msgPickContact, userMessageFor(conversation.ErrNoActivePersona))
	assert.Equal(t, msgUnknownTarget, userMessageFor(conversation.ErrUnknownPersona))
	assert.Equal(t, msgBusy, userMessageFor(fmt.Errorf("send: %w", conversation.ErrTurnInFlight)))
	assert.Equal(t, msgEmpty, userMessageFor(conversation.ErrEmptyMessage))
	assert.Equal(t, conversation.FallbackReply, userMessageFor(errors.New("other")))
}

func TestFormatContacts(t *testing.T) {
	out := formatContacts([]domain.Contact{
		{ID: "girl", Name: "小雨"},
		{ID: "boy", Name: "陈阳"},
	})
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "小雨  /chat girl", lines[1])
	assert.Equal(t, "陈阳  /chat boy", lines[2])
}

func TestFormatHistory(t *testing.T) {
	contact := domain.Contact{ID: "girl", Name: "小雨"}
	assert.Equal(t, msgNoHistory, formatHistory(contact, nil))

	out := formatHistory(contact, []domain.Message{
		{Role: domain.RoleAssistant, Content: "嗨~"},
		{Role: domain.RoleUser, Content: "你好", Timestamp: time.Now()},
	})
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "小雨：嗨~", lines[1])
	assert.True(t, strings.HasSuffix(lines[2], "我：你好"))
}
