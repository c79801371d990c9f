package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bryanwahyu/rx-ocr/internal/domain/ocr"
	"github.com/bryanwahyu/rx-ocr/internal/infra/ai/prompt"
)

const (
	providerName   = "Gemini"
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.0-flash"
)

type Client struct {
	HTTP    *http.Client
	APIKey  string
	Model   string
	BaseURL string
}

func NewClient(apiKey, model, baseURL string) *Client {
	return &Client{HTTP: &http.Client{}, APIKey: apiKey, Model: model, BaseURL: baseURL}
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

// The response is walked one level at a time so that only the first
// candidate and its first part have to match; later entries are never decoded.
type generateResponse struct {
	Candidates []json.RawMessage `json:"candidates"`
}

type candidate struct {
	Content *struct {
		Parts []json.RawMessage `json:"parts"`
	} `json:"content"`
}

type textPart struct {
	Text *string `json:"text"`
}

func (c *Client) endpoint() string {
	base := c.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	model := c.Model
	if model == "" {
		model = defaultModel
	}
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimRight(base, "/"), url.PathEscape(model))
}

func (c *Client) Extract(ctx context.Context, img ocr.EncodedImage) (ocr.Result, error) {
	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = ocr.DefaultMIMEType
	}
	payload := generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: prompt.Prescription},
				{InlineData: &inlineData{MimeType: mimeType, Data: img.Data}},
			},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return ocr.Result{}, fmt.Errorf("marshal gemini request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return ocr.Result{}, fmt.Errorf("build gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Header, not ?key=: transport errors echo the request URL.
	req.Header.Set("x-goog-api-key", c.APIKey)

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return ocr.Result{}, fmt.Errorf("call gemini: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ocr.Result{}, fmt.Errorf("read gemini response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return ocr.UpstreamError(providerName, string(raw)), nil
	}
	return parseResponse(raw), nil
}

// parseResponse pulls candidates[0].content.parts[0].text; any other shape
// yields NoText.
func parseResponse(raw []byte) ocr.Result {
	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil || len(out.Candidates) == 0 {
		return ocr.NoText(providerName)
	}
	var first candidate
	if err := json.Unmarshal(out.Candidates[0], &first); err != nil {
		return ocr.NoText(providerName)
	}
	if first.Content == nil || len(first.Content.Parts) == 0 {
		return ocr.NoText(providerName)
	}
	var p textPart
	if err := json.Unmarshal(first.Content.Parts[0], &p); err != nil || p.Text == nil {
		return ocr.NoText(providerName)
	}
	return ocr.Extracted(providerName, strings.TrimSpace(*p.Text))
}
