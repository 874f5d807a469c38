package relayhttp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"persona-chat-relay/internal/domain"
	"persona-chat-relay/internal/usecase/conversation"
)

const chatPath = "/api/chat"

// Client talks to the relay's chat endpoint.
type Client struct {
	http *resty.Client
}

var _ conversation.Relay = (*Client)(nil)

type chatRequest struct {
	Message             string           `json:"message"`
	ContactID           string           `json:"contactId"`
	ConversationHistory []domain.Message `json:"conversationHistory"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	return &Client{http: rc}
}

func (c *Client) Chat(ctx context.Context, req conversation.RelayRequest) (string, error) {
	history := req.History
	if history == nil {
		history = []domain.Message{}
	}

	var (
		result  chatResponse
		failure errorResponse
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Message:             req.Message,
			ContactID:           req.PersonaID,
			ConversationHistory: history,
		}).
		SetResult(&result).
		SetError(&failure).
		Post(chatPath)
	if err != nil {
		return "", fmt.Errorf("relay request: %w", err)
	}

	if resp.IsError() {
		if failure.Error != "" {
			return "", fmt.Errorf("relay error (status %d): %s", resp.StatusCode(), failure.Error)
		}
		return "", fmt.Errorf("relay error (status %d): %s", resp.StatusCode(), resp.String())
	}
	if result.Reply == "" {
		return "", errors.New("relay returned an empty reply")
	}
	return result.Reply, nil
}
