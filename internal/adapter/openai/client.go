package openai

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	openaiapi "github.com/sashabaranov/go-openai"

	"persona-chat-relay/internal/usecase/relay"
)

// Client talks to an OpenAI-compatible chat completion endpoint. Each call
// authenticates with the persona's own key.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Complete(ctx context.Context, req relay.CompletionRequest) (string, error) {
	cfg := openaiapi.DefaultConfig(req.APIKey)
	cfg.BaseURL = c.baseURL
	cfg.HTTPClient = c.httpClient
	api := openaiapi.NewClientWithConfig(cfg)

	apiReq := openaiapi.ChatCompletionRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      false,
		Messages:    toAPIMessages(req.Messages),
	}

	resp, err := api.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func toAPIMessages(msgs []relay.Message) []openaiapi.ChatCompletionMessage {
	res := make([]openaiapi.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		res = append(res, openaiapi.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return res
}

// classify turns go-openai and transport errors into *relay.UpstreamError.
func classify(err error) error {
	status := 0
	var apiErr *openaiapi.APIError
	var reqErr *openaiapi.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case http.StatusTooManyRequests:
		return &relay.UpstreamError{Kind: relay.UpstreamRateLimited, Status: status, Err: err}
	case http.StatusUnauthorized:
		return &relay.UpstreamError{Kind: relay.UpstreamUnauthorized, Status: status, Err: err}
	case 0:
	default:
		return &relay.UpstreamError{Kind: relay.UpstreamOther, Status: status, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &relay.UpstreamError{Kind: relay.UpstreamTimeout, Err: err}
	}
	// connection failures read as "network trouble" to the user, same as timeouts
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &relay.UpstreamError{Kind: relay.UpstreamTimeout, Err: err}
	}
	return &relay.UpstreamError{Kind: relay.UpstreamOther, Err: err}
}
