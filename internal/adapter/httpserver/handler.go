package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"persona-chat-relay/internal/domain"
	"persona-chat-relay/internal/usecase/relay"
)

const (
	msgInternalError = "服务器内部错误"
	msgBadJSON       = "请求格式错误"
)

type TurnHandler interface {
	HandleTurn(ctx context.Context, req relay.Request) (string, error)
}

type chatRequest struct {
	Message             string        `json:"message"`
	ContactID           string        `json:"contactId"`
	ConversationHistory []historyItem `json:"conversationHistory"`
}

type historyItem struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type chatHandler struct {
	turns TurnHandler
	log   zerolog.Logger
}

func (h *chatHandler) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// an absent body reads like a request without a message
		if errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, errorResponse{Error: relay.ErrEmptyMessage.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, errorResponse{Error: msgBadJSON})
		return
	}

	history := make([]domain.Message, 0, len(req.ConversationHistory))
	for _, item := range req.ConversationHistory {
		history = append(history, domain.Message{Role: item.Role, Content: item.Content})
	}

	reply, err := h.turns.HandleTurn(c.Request.Context(), relay.Request{
		Message:   req.Message,
		PersonaID: req.ContactID,
		History:   history,
	})
	if err != nil {
		var invalid *relay.InvalidRequestError
		if errors.As(err, &invalid) {
			c.JSON(http.StatusBadRequest, errorResponse{Error: invalid.Error()})
			return
		}
		requestLogger(c, h.log).Error().Err(err).Msg("chat turn failed")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: msgInternalError})
		return
	}

	c.JSON(http.StatusOK, chatResponse{Reply: reply})
}

func health(now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, healthResponse{
			Status:    "ok",
			Timestamp: now().UTC().Format(time.RFC3339Nano),
		})
	}
}
