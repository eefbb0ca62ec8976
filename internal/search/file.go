package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// FileProvider loads search results from a local JSON file for offline/testing use.
// The JSON file format is an array of objects: {"title": "...", "url": "...", "snippet": "..."}.
// An optional "answers" file maps queries to headline answers.
type FileProvider struct {
	Path string
	// AnswersPath points at a JSON object of query -> answer. Optional.
	AnswersPath string
}

func (f *FileProvider) Name() string { return "file" }

func (f *FileProvider) Search(_ context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(f.Path) == "" {
		return nil, errors.New("file provider path is empty")
	}
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	var raw []Result
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.Path, err)
	}
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Result, 0, len(raw))
	for _, r := range raw {
		if r.URL == "" || r.Title == "" {
			continue
		}
		if q == "" || matchesTerms(q, r) {
			r.Source = f.Name()
			out = append(out, r)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// Answer looks the query up in AnswersPath. Without one it has nothing to say.
func (f *FileProvider) Answer(_ context.Context, query string) (string, error) {
	if strings.TrimSpace(f.AnswersPath) == "" {
		return "", nil
	}
	b, err := os.ReadFile(f.AnswersPath)
	if err != nil {
		return "", err
	}
	var answers map[string]string
	if err := json.Unmarshal(b, &answers); err != nil {
		return "", fmt.Errorf("parse %s: %w", f.AnswersPath, err)
	}
	if a, ok := answers[query]; ok {
		return a, nil
	}
	q := strings.ToLower(strings.TrimSpace(query))
	for k, a := range answers {
		if strings.ToLower(strings.TrimSpace(k)) == q {
			return a, nil
		}
	}
	return "", nil
}

// matchesTerms reports whether every whitespace-separated term of q appears
// in the title or snippet.
func matchesTerms(q string, r Result) bool {
	hay := strings.ToLower(r.Title + " " + r.Snippet)
	for _, term := range strings.Fields(q) {
		if !strings.Contains(hay, term) {
			return false
		}
	}
	return true
}
