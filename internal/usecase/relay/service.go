package relay

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"persona-chat-relay/internal/domain"
	"persona-chat-relay/internal/metrics"
)

const (
	// HistoryWindow is how many trailing history entries reach the upstream.
	HistoryWindow = 10
	// MaxReplyRunes caps normal-path replies.
	MaxReplyRunes = 100
	Ellipsis      = "..."

	DefaultTimeout = 30 * time.Second

	ResetPrompt = "请重新开始我们的对话，用你的角色设定向我打个招呼。"
)

// Canned replies. They keep the conversation in character when the
// upstream cannot answer.
const (
	FallbackRateLimited  = "消息发得太快了，等一下再发吧。"
	FallbackTimeout      = "网络有点问题，再发一次试试？"
	FallbackUnauthorized = "API密钥有问题，请联系管理员。"
	FallbackBusy         = "现在有点忙，晚点聊。"
	FallbackEmptyReply   = "抱歉，我现在有点忙，晚点回复你。"
	FallbackEmptyReset   = "你好，我们重新开始吧？"
)

type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type CompletionRequest struct {
	APIKey      string
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

type Message struct {
	Role    string
	Content string
}

// Request is one relay call. History is the client's copy and is never
// retained.
type Request struct {
	Message   string
	PersonaID string
	History   []domain.Message
}

type Service struct {
	personas *domain.PersonaCatalog
	client   Client
	timeout  time.Duration
	log      zerolog.Logger
}

func NewService(personas *domain.PersonaCatalog, client Client, timeout time.Duration, log zerolog.Logger) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{
		personas: personas,
		client:   client,
		timeout:  timeout,
		log:      log,
	}
}

// HandleTurn produces the persona's reply. The only error it returns is
// *InvalidRequestError; every other failure becomes an in-character reply.
func (s *Service) HandleTurn(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Message) == "" {
		return "", &InvalidRequestError{Err: ErrEmptyMessage}
	}
	if strings.TrimSpace(req.PersonaID) == "" {
		return "", &InvalidRequestError{Err: ErrEmptyPersonaID}
	}

	persona, ok := s.personas.Lookup(req.PersonaID)
	if !ok {
		err := &PersonaResolutionError{PersonaID: req.PersonaID}
		s.logFor(ctx).Warn().Err(err).Str("persona", req.PersonaID).Msg("persona resolution failed")
		metrics.RecordFallback("persona_unresolved")
		return FallbackBusy, nil
	}

	reset := req.Message == domain.ResetSentinel
	path := "normal"
	if reset {
		path = "reset"
	}
	metrics.RecordTurn(persona.ID, path)

	messages := BuildMessages(persona, req)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	reply, err := s.client.Complete(callCtx, CompletionRequest{
		APIKey:      persona.APIKey,
		Model:       persona.Model,
		Messages:    messages,
		MaxTokens:   persona.MaxTokens,
		Temperature: persona.Temperature,
	})
	metrics.ObserveUpstream(persona.ID, time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && KindOf(err) == UpstreamOther {
			err = &UpstreamError{Kind: UpstreamTimeout, Err: err}
		}
		kind := KindOf(err)
		s.logFor(ctx).Error().Err(err).
			Str("persona", persona.ID).
			Str("path", path).
			Str("kind", kind.String()).
			Msg("upstream completion failed")
		metrics.RecordFallback(kind.String())
		return fallbackFor(kind), nil
	}

	if reply == "" {
		metrics.RecordFallback("empty_reply")
		if reset {
			return FallbackEmptyReset, nil
		}
		return FallbackEmptyReply, nil
	}

	if reset {
		return reply, nil
	}
	return TruncateReply(reply), nil
}

// logFor prefers the request-scoped logger carried by ctx.
func (s *Service) logFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.log
}

// BuildMessages assembles the upstream message list. A reset ignores the
// history entirely; a normal turn keeps the last HistoryWindow entries.
func BuildMessages(persona domain.Persona, req Request) []Message {
	system := Message{Role: domain.RoleSystem, Content: SystemPrompt(persona)}

	if req.Message == domain.ResetSentinel {
		return []Message{
			system,
			{Role: domain.RoleUser, Content: ResetPrompt},
		}
	}

	history := req.History
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}

	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, system)
	for _, h := range history {
		messages = append(messages, Message{Role: h.Role, Content: h.Content})
	}
	messages = append(messages, Message{Role: domain.RoleUser, Content: req.Message})
	return messages
}

// TruncateReply cuts replies longer than MaxReplyRunes and marks the cut.
func TruncateReply(reply string) string {
	runes := []rune(reply)
	if len(runes) <= MaxReplyRunes {
		return reply
	}
	return string(runes[:MaxReplyRunes]) + Ellipsis
}

func fallbackFor(kind UpstreamErrorKind) string {
	switch kind {
	case UpstreamRateLimited:
		return FallbackRateLimited
	case UpstreamTimeout:
		return FallbackTimeout
	case UpstreamUnauthorized:
		return FallbackUnauthorized
	default:
		return FallbackBusy
	}
}
