package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/rx-ocr/internal/domain/ocr"
	"github.com/bryanwahyu/rx-ocr/internal/infra/ai/prompt"
)

const (
	providerName = "OpenAI"
	maxTokens    = 2048
)

type Client struct {
	*openai.Client
	Model string
}

// NewClient builds a vision extractor; baseURL may be empty for the public API.
func NewClient(apiKey, model, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model}
}

func (c *Client) Extract(ctx context.Context, img ocr.EncodedImage) (ocr.Result, error) {
	model := c.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = ocr.DefaultMIMEType
	}

	req := openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt.Prescription},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    "data:" + mimeType + ";base64," + img.Data,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		// Rejections carrying an HTTP status are diagnostics, not failures.
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
			return ocr.UpstreamError(providerName, apiErr.Message), nil
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
			return ocr.UpstreamError(providerName, reqErr.Error()), nil
		}
		return ocr.Result{}, fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return ocr.NoText(providerName), nil
	}
	return ocr.Extracted(providerName, strings.TrimSpace(resp.Choices[0].Message.Content)), nil
}
