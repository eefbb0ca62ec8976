package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// ReadabilityExtractor uses the Mozilla Readability scoring port instead of
// the fixed container order. It applies the same content-type gate and
// failure signals as HeuristicExtractor.
type ReadabilityExtractor struct{}

func (ReadabilityExtractor) Extract(page Page) (Document, error) {
	if err := checkContentType(page.ContentType); err != nil {
		return Document{}, err
	}
	pageURL, err := url.Parse(page.URL)
	if err != nil || pageURL == nil {
		pageURL = &url.URL{Scheme: "http", Host: "localhost"}
	}
	doc, err := parseHTML(page.Body, page.ContentType)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
	raw, err := doc.Html()
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
	article, err := readability.FromReader(strings.NewReader(raw), pageURL)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
	if strings.TrimSpace(article.Content) == "" {
		return Document{}, ErrParseFailure
	}
	content, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(article.Content)))
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
	stripNonContent(content)
	body := content.Find("body")
	stripBanners(body)
	text := collectText(body)
	if text == "" {
		return Document{}, ErrParseFailure
	}
	d := Document{Title: strings.TrimSpace(article.Title), Text: text, Strategy: "readability"}
	flagShort(&d, page.URL)
	return d, nil
}
