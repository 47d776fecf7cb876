package oracle

import (
	"context"
	"net/http"
	"strings"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	"github.com/pkg/errors"
)

type Cohere struct {
	client *cohereclient.Client
	model  string
}

func NewCohere(apiKey, model string, timeout time.Duration) *Cohere {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := cohereclient.NewClient(
		cohereclient.WithToken(apiKey),
		cohereclient.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	return &Cohere{client: client, model: model}
}

func (c *Cohere) Name() string { return VendorCohere }

func (c *Cohere) Generate(ctx context.Context, req Request) (string, error) {
	model := c.model
	temperature := float64(req.Temperature)
	chat := &cohere.ChatRequest{
		Message:     req.Prompt,
		Model:       &model,
		Temperature: &temperature,
	}
	if req.System != "" {
		preamble := req.System
		chat.Preamble = &preamble
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		chat.MaxTokens = &maxTokens
	}

	resp, err := c.client.Chat(ctx, chat)
	if err != nil {
		return "", errors.Wrap(err, "cohere chat")
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(resp.Text), nil
}
