package extract

import (
	"errors"
	"fmt"
	"strings"
)

// MinTextChars is the length below which extracted text is flagged as low
// confidence. Short text is still returned.
const MinTextChars = 150

var (
	// ErrUnsupportedContentType is returned for anything that is not HTML.
	ErrUnsupportedContentType = errors.New("unsupported content type")
	// ErrParseFailure is returned when no body-equivalent region holds text.
	ErrParseFailure = errors.New("no content region found")
)

// Page is a fetched response handed to an Extractor.
type Page struct {
	URL         string
	ContentType string
	Body        []byte
}

// Document is the readable content of a page.
type Document struct {
	Title string
	Text  string
	// Strategy names the container rule that produced Text.
	Strategy      string
	LowConfidence bool
}

// Extractor defines a minimal interface for content extraction strategies.
// Implementations can swap readability tactics without changing callers.
type Extractor interface {
	Extract(page Page) (Document, error)
}

// Format selects the text rendering of the chosen container.
type Format int

const (
	FormatText Format = iota
	FormatMarkdown
)

// ParseFormat maps a config value to a Format. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return FormatText, fmt.Errorf("unknown extract format: %q", s)
}

// New returns the extractor for mode ("heuristic" or "readability").
func New(mode string, format Format) (Extractor, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "heuristic":
		return &HeuristicExtractor{Format: format}, nil
	case "readability":
		return &ReadabilityExtractor{}, nil
	}
	return nil, fmt.Errorf("unknown extract mode: %q", mode)
}

// IsHTML reports whether a declared Content-Type names an HTML document.
func IsHTML(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}

func checkContentType(contentType string) error {
	if !IsHTML(contentType) {
		return fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}
	return nil
}
