package ocr

import (
	"encoding/base64"
	"time"
)

// DefaultMIMEType is what the upstream is told the image is, regardless of
// the bytes actually fetched.
const DefaultMIMEType = "image/jpeg"

// NoTextMessage is returned to callers when the upstream answer has no usable text.
const NoTextMessage = "No text extracted."

// Image is the raw body fetched from the caller's URL. No format checks are
// made: an HTML error page is an Image too.
type Image struct {
	Data        []byte
	ContentType string // as reported by the origin, informational only
}

// EncodedImage is what gets sent upstream.
type EncodedImage struct {
	Data     string // standard base64, no line wrapping
	MIMEType string
}

// EncodeBase64 renders b as standard padded base64.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Outcome tags how an upstream call ended.
type Outcome int

const (
	OutcomeExtracted Outcome = iota
	OutcomeUpstreamError
	OutcomeNoText
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExtracted:
		return "extracted"
	case OutcomeUpstreamError:
		return "upstream_error"
	case OutcomeNoText:
		return "no_text"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of one extraction.
type Result struct {
	Outcome  Outcome
	Text     string // extracted text, or the raw upstream error body
	Provider string // display name used in diagnostics, e.g. "Gemini"
}

func Extracted(provider, text string) Result {
	return Result{Outcome: OutcomeExtracted, Text: text, Provider: provider}
}

func UpstreamError(provider, body string) Result {
	return Result{Outcome: OutcomeUpstreamError, Text: body, Provider: provider}
}

func NoText(provider string) Result {
	return Result{Outcome: OutcomeNoText, Provider: provider}
}

// WireText collapses the result into the single string the HTTP contract
// carries in extracted_text.
func (r Result) WireText() string {
	switch r.Outcome {
	case OutcomeUpstreamError:
		return r.Provider + " Error: " + r.Text
	case OutcomeNoText:
		return NoTextMessage
	default:
		return r.Text
	}
}

// ExtractionID identifier type
type ExtractionID string

// Extraction is an audit record of one served OCR request.
type Extraction struct {
	ID         ExtractionID `json:"id"`
	ImageURL   string       `json:"image_url"`
	ArchiveURL string       `json:"archive_url,omitempty"`
	Provider   string       `json:"provider"`
	Outcome    string       `json:"outcome"`
	Text       string       `json:"text"`
	CreatedAt  time.Time    `json:"created_at"`
}
