package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTimeout bounds one provider call.
	DefaultTimeout = 15 * time.Second
	// DefaultConcurrency is the number of batch queries in flight.
	DefaultConcurrency = 3
)

// Client issues single and batched searches against one Provider, each call
// under its own timeout.
type Client struct {
	Provider Provider
	// Answerer supplies headline answers. Optional.
	Answerer Answerer
	Timeout  time.Duration
	// Concurrency bounds in-flight queries in SearchBatch. Zero means 3.
	Concurrency int
	Domains     *DomainPolicy
}

// Batch is the outcome of one query in SearchBatch.
type Batch struct {
	Query   string
	Results []Result
	Err     error
}

// Search returns up to max results for query in provider order.
func (c *Client) Search(ctx context.Context, query string, max int) ([]Result, error) {
	if c.Provider == nil {
		return nil, errors.New("search: no provider configured")
	}
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search: empty query")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	results, err := c.Provider.Search(ctx, query, max)
	if err != nil {
		return nil, fmt.Errorf("%s search %q: %w", c.Provider.Name(), query, err)
	}
	results = c.Domains.Filter(results)
	if max > 0 && len(results) > max {
		results = results[:max]
	}
	log.Debug().Str("provider", c.Provider.Name()).Str("query", query).Int("results", len(results)).Msg("search done")
	return results, nil
}

// SearchBatch runs every query with bounded parallelism and returns one Batch
// per query in input order. A failed query carries its error and no results.
// Queries not started before ctx ends carry the context error.
func (c *Client) SearchBatch(ctx context.Context, queries []string, max int) []Batch {
	out := make([]Batch, len(queries))
	var g errgroup.Group
	g.SetLimit(c.concurrency())
	for i, q := range queries {
		out[i].Query = q
		if err := ctx.Err(); err != nil {
			out[i].Err = err
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i].Err = err
				return nil
			}
			res, err := c.Search(ctx, q, max)
			if err != nil {
				log.Warn().Err(err).Str("query", q).Msg("search failed")
				out[i].Err = err
				return nil
			}
			out[i].Results = res
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Answer asks the Answerer for a headline answer to query under the client
// timeout. It returns "" with a nil error when there is no Answerer or the
// backend has no answer; it never runs a search.
func (c *Client) Answer(ctx context.Context, query string) (string, error) {
	if c.Answerer == nil {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()
	a, err := c.Answerer.Answer(ctx, query)
	if err != nil {
		return "", fmt.Errorf("answer %q: %w", query, err)
	}
	return strings.TrimSpace(a), nil
}

func (c *Client) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

func (c *Client) concurrency() int {
	if c.Concurrency > 0 {
		return c.Concurrency
	}
	return DefaultConcurrency
}
