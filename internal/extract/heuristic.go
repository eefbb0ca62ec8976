package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html/charset"
)

// nonContent lists elements that never carry article text.
const nonContent = "script, style, noscript, template, nav, header, footer, aside, form, " +
	"button, input, select, textarea, label, iframe, object, embed, img, picture, svg, " +
	"canvas, video, audio, source, track, map"

// Strategy is one candidate container rule. Find returns an empty selection
// when the rule does not apply to the document.
type Strategy struct {
	Name string
	Find func(doc *goquery.Document) *goquery.Selection
}

func selectorStrategy(name, selector string) Strategy {
	return Strategy{Name: name, Find: func(doc *goquery.Document) *goquery.Selection {
		return doc.Find(selector).First()
	}}
}

// DefaultStrategies is the fixed priority order for picking the content
// container. Semantic containers come before the whole body.
var DefaultStrategies = []Strategy{
	selectorStrategy("article", "article"),
	selectorStrategy("main", "main"),
	selectorStrategy("id-content", "#content"),
	selectorStrategy("id-main-content", "#main-content"),
	selectorStrategy("class-post-content", ".post-content"),
	selectorStrategy("class-entry-content", ".entry-content"),
	selectorStrategy("role-main", "[role=main]"),
	selectorStrategy("body", "body"),
}

// HeuristicExtractor strips page furniture and returns the text of the first
// container matched by Strategies.
type HeuristicExtractor struct {
	// Strategies overrides DefaultStrategies when non-empty.
	Strategies []Strategy
	Format     Format
}

func (e *HeuristicExtractor) Extract(page Page) (Document, error) {
	if err := checkContentType(page.ContentType); err != nil {
		return Document{}, err
	}
	doc, err := parseHTML(page.Body, page.ContentType)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
	title := strings.TrimSpace(doc.Find("head title").First().Text())
	stripNonContent(doc)

	strategies := e.Strategies
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}
	for _, s := range strategies {
		sel := s.Find(doc)
		if sel == nil || sel.Length() == 0 {
			continue
		}
		stripBanners(sel)
		text, err := e.render(sel)
		if err != nil {
			return Document{}, fmt.Errorf("%w: %v", ErrParseFailure, err)
		}
		if text == "" {
			return Document{}, fmt.Errorf("%w: %s container is empty", ErrParseFailure, s.Name)
		}
		d := Document{Title: title, Text: text, Strategy: s.Name}
		flagShort(&d, page.URL)
		return d, nil
	}
	return Document{}, ErrParseFailure
}

func (e *HeuristicExtractor) render(sel *goquery.Selection) (string, error) {
	if e.Format != FormatMarkdown {
		return collectText(sel), nil
	}
	raw, err := goquery.OuterHtml(sel)
	if err != nil {
		return "", err
	}
	md, err := htmltomarkdown.ConvertString(raw)
	if err != nil {
		return "", err
	}
	return normalizeMarkdown(md), nil
}

// parseHTML decodes body to UTF-8 using the declared charset (or a sniffed
// one) before building the document.
func parseHTML(body []byte, contentType string) (*goquery.Document, error) {
	var r io.Reader = bytes.NewReader(body)
	if utf8Reader, err := charset.NewReader(r, contentType); err == nil {
		r = utf8Reader
	} else {
		r = bytes.NewReader(body)
	}
	return goquery.NewDocumentFromReader(r)
}

func stripNonContent(doc *goquery.Document) {
	doc.Find(nonContent).Remove()
	doc.Find("[hidden], [aria-hidden=true]").Remove()
}

// stripBanners removes cookie and consent banners below root. It runs after
// the container is chosen, so root itself is never removed.
func stripBanners(root *goquery.Selection) {
	root.Find("[id], [class], [role], [aria-label]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return isBoilerplateContainer(s)
	}).Remove()
}

// isBoilerplateContainer returns true if the element looks like a cookie or
// consent banner. Landmark containers are never treated as banners.
func isBoilerplateContainer(s *goquery.Selection) bool {
	switch goquery.NodeName(s) {
	case "html", "body", "main", "article":
		return false
	}
	for _, key := range []string{"id", "class", "role", "aria-label"} {
		val, ok := s.Attr(key)
		if !ok {
			continue
		}
		val = strings.ToLower(val)
		if containsAny(val, "cookie", "consent", "gdpr") {
			return true
		}
	}
	return false
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func flagShort(d *Document, pageURL string) {
	if n := len([]rune(d.Text)); n < MinTextChars {
		d.LowConfidence = true
		log.Debug().Str("url", pageURL).Int("chars", n).Str("strategy", d.Strategy).Msg("extracted text is short; low confidence")
	}
}
