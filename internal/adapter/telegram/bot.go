package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"persona-chat-relay/internal/config"
	"persona-chat-relay/internal/domain"
	"persona-chat-relay/internal/usecase/conversation"
)

const chunkSize = 2048

const (
	msgAccessDenied  = "抱歉，你没有权限使用这个机器人。"
	msgPickContact   = "先用 /chat <联系人ID> 选一个聊天对象吧。"
	msgUnknownTarget = "没有这个联系人。用 /contacts 看看有谁在线。"
	msgBusy          = "上一条消息还在路上，稍等一下。"
	msgEmpty         = "说点什么吧。"
	msgChatUsage     = "用法：/chat <联系人ID>"
	msgUnknownCmd    = "不认识这个命令。可用命令：/contacts /chat /reset /history"
	msgNoHistory     = "还没有聊天记录。"
)

type Bot struct {
	api  *tgbotapi.BotAPI
	cfg  *config.BotConfig
	conv *conversation.Service
	log  zerolog.Logger
}

func NewBot(cfg *config.BotConfig, conv *conversation.Service, log zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("init telegram api: %w", err)
	}

	return &Bot{
		api:  api,
		cfg:  cfg,
		conv: conv,
		log:  log,
	}, nil
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	b.log.Info().Str("bot", b.api.Self.UserName).Msg("telegram bot started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return errors.New("telegram update channel closed")
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			go b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if !isAllowedUser(msg.From.ID, b.cfg) {
		b.log.Warn().Int64("user_id", msg.From.ID).Msg("rejected user outside allow-list")
		b.sendText(chatID, msg.MessageID, msgAccessDenied)
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	b.sendChatAction(chatID)
	reply, err := b.conv.SendTurn(ctx, chatID, msg.Text)
	if err != nil {
		b.sendText(chatID, msg.MessageID, userMessageFor(err))
		return
	}
	b.sendText(chatID, msg.MessageID, reply)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start", "contacts":
		b.sendText(chatID, 0, formatContacts(b.conv.Contacts()))

	case "chat":
		personaID := strings.TrimSpace(msg.CommandArguments())
		if personaID == "" {
			b.sendText(chatID, msg.MessageID, msgChatUsage)
			return
		}
		contact, history, err := b.conv.Open(chatID, personaID)
		if err != nil {
			b.sendText(chatID, msg.MessageID, userMessageFor(err))
			return
		}
		b.sendText(chatID, 0, formatHistory(contact, history))

	case "reset":
		b.sendChatAction(chatID)
		greeting, err := b.conv.Reset(ctx, chatID)
		if err != nil {
			b.sendText(chatID, msg.MessageID, userMessageFor(err))
			return
		}
		b.sendText(chatID, 0, greeting)

	case "history":
		contact, history, err := b.conv.History(chatID)
		if err != nil {
			b.sendText(chatID, msg.MessageID, userMessageFor(err))
			return
		}
		b.sendText(chatID, 0, formatHistory(contact, history))

	default:
		b.sendText(chatID, msg.MessageID, msgUnknownCmd)
	}
}

// sendText sends plain text; persona replies are never parsed as markup.
func (b *Bot) sendText(chatID int64, replyTo int, text string) {
	for idx, chunk := range splitText(text, chunkSize) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		if idx == 0 && replyTo != 0 {
			msg.ReplyToMessageID = replyTo
		}
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send reply")
		}
	}
}

func (b *Bot) sendChatAction(chatID int64) {
	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		b.log.Debug().Err(err).Int64("chat_id", chatID).Msg("failed to send chat action")
	}
}

func userMessageFor(err error) string {
	switch {
	case errors.Is(err, conversation.ErrNoActivePersona):
		return msgPickContact
	case errors.Is(err, conversation.ErrUnknownPersona):
		return msgUnknownTarget
	case errors.Is(err, conversation.ErrTurnInFlight):
		return msgBusy
	case errors.Is(err, conversation.ErrEmptyMessage):
		return msgEmpty
	default:
		return conversation.FallbackReply
	}
}

func formatContacts(contacts []domain.Contact) string {
	var sb strings.Builder
	sb.WriteString("可以聊天的联系人：\n")
	for _, c := range contacts {
		fmt.Fprintf(&sb, "%s  /chat %s\n", c.Name, c.ID)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatHistory(contact domain.Contact, history []domain.Message) string {
	if len(history) == 0 {
		return msgNoHistory
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "和%s的聊天记录：\n", contact.Name)
	for _, m := range history {
		speaker := contact.Name
		if m.Role == domain.RoleUser {
			speaker = "我"
		}
		stamp := ""
		if !m.Timestamp.IsZero() {
			stamp = m.Timestamp.Local().Format("15:04") + " "
		}
		fmt.Fprintf(&sb, "%s%s：%s\n", stamp, speaker, m.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func isAllowedUser(userID int64, cfg *config.BotConfig) bool {
	for _, id := range cfg.AdminUserIDs {
		if id == userID {
			return true
		}
	}

	if len(cfg.AllowedUserIDs) == 0 {
		return true
	}

	for _, id := range cfg.AllowedUserIDs {
		if id == userID {
			return true
		}
	}

	return false
}

func splitText(text string, chunkSize int) []string {
	if chunkSize <= 0 {
		return []string{text}
	}

	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []string{text}
	}

	chunks := make([]string, 0, len(runes)/chunkSize+1)
	for start := 0; start < len(runes); start += chunkSize {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}

	return chunks
}
