package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/nordstat/pxfetch/pkg/ratelimit"
	"github.com/nordstat/pxfetch/pkg/retry"
)

// APIClient fetches raw JSON documents from the API. *pxweb.Client
// implements it.
type APIClient interface {
	Get(ctx context.Context, path string) ([]byte, error)
}

// Crawler walks the API's navigation tree and saves every document it
// finds: listings (JSON arrays of sub-nodes) are recursed into, table
// metadata documents (JSON objects) are leaves. Both are stored, so a
// later listing pass can tell tables from folders without network access.
type Crawler struct {
	client  APIClient
	store   Store
	limiter *ratelimit.Limiter
	retry   retry.Config

	// Concurrency caps simultaneous navigation fetches.
	Concurrency int

	logger zerolog.Logger
	saved  atomic.Int64
}

// NewCrawler creates a crawler sharing the downloader's rate limiter and
// retry policy.
func NewCrawler(client APIClient, store Store, limiter *ratelimit.Limiter, retryCfg retry.Config) *Crawler {
	return &Crawler{
		client:      client,
		store:       store,
		limiter:     limiter,
		retry:       retryCfg,
		Concurrency: 8,
		logger:      log.With().Str("component", "metadata-crawler").Logger(),
	}
}

// Crawl walks the tree rooted at startPath and returns the number of
// documents saved.
func (c *Crawler) Crawl(ctx context.Context, startPath string) (int64, error) {
	c.saved.Store(0)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.Concurrency)

	if err := c.crawlNode(gctx, g, strings.Trim(startPath, "/")); err != nil {
		return c.saved.Load(), err
	}
	if err := g.Wait(); err != nil {
		return c.saved.Load(), err
	}

	n := c.saved.Load()
	c.logger.Info().Int64("documents", n).Str("root", startPath).Msg("Crawl complete")
	return n, nil
}

// crawlNode fetches one node, saves it, and schedules its children.
func (c *Crawler) crawlNode(ctx context.Context, g *errgroup.Group, path string) error {
	var doc []byte
	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		if err := c.limiter.Acquire(ctx); err != nil {
			return err
		}
		var err error
		doc, err = c.client.Get(ctx, path)
		return err
	})
	if err != nil {
		return fmt.Errorf("crawl %s: %w", path, err)
	}

	if err := c.store.Save(ctx, path, doc); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	if n := c.saved.Add(1); n%100 == 0 {
		c.logger.Info().Int64("documents", n).Str("path", path).Msg("Crawl progress")
	}

	var nodes []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(doc, &nodes); err != nil {
		// A JSON object, not an array: table metadata, nothing below it.
		return nil
	}

	for _, node := range nodes {
		child := path + "/" + node.ID
		// TryGo keeps a saturated pool from deadlocking on recursive
		// scheduling: with no slot free the child is crawled inline.
		if !g.TryGo(func() error { return c.crawlNode(ctx, g, child) }) {
			if err := c.crawlNode(ctx, g, child); err != nil {
				return err
			}
		}
	}
	return nil
}
