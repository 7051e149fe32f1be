// Package fetch orchestrates a partitioned table download: it plans which
// dimensions to pin, enumerates pin-value combinations, runs the
// sub-requests concurrently through a shared rate limiter and a retry
// policy, and merges the decoded chunks into one schema-consistent stream
// of row batches.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/nordstat/pxfetch/pkg/planner"
	"github.com/nordstat/pxfetch/pkg/pxweb"
	"github.com/nordstat/pxfetch/pkg/ratelimit"
	"github.com/nordstat/pxfetch/pkg/retry"
)

// Prometheus metrics for fetch orchestration.
var (
	rowsFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pxfetch_rows_fetched_total",
		Help: "Total merged rows emitted across all tables",
	})

	chunksFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pxfetch_chunks_fetched_total",
		Help: "Total sub-request chunks fetched and merged",
	})

	tablesSkippedBudget = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pxfetch_tables_skipped_time_budget_total",
		Help: "Tables skipped because the estimated download time exceeded the budget",
	})
)

// ErrTimeBudgetExceeded is returned before any network call when the
// estimated optimal download time of a table exceeds the caller's budget.
var ErrTimeBudgetExceeded = errors.New("estimated download time exceeds budget")

// DataClient fetches the data response for one query. *pxweb.Client
// implements it.
type DataClient interface {
	TableData(ctx context.Context, tablePath string, query pxweb.Query) (*pxweb.DataResponse, error)
}

// Options configure a Fetcher.
type Options struct {
	// MaxCells is the API's cap on result cells per request.
	MaxCells int

	// BatchSize caps how many sub-requests are in flight per concurrency
	// batch.
	BatchSize int

	// TimeBudget, when positive, aborts a table before any network call if
	// the estimated optimal download time exceeds it.
	TimeBudget time.Duration

	// RequestsPerSecond is the sustained request rate assumed by the
	// time-budget estimate.
	RequestsPerSecond float64
}

// DefaultOptions returns the options used against the SCB API.
func DefaultOptions() Options {
	return Options{
		MaxCells:          107762,
		BatchSize:         90,
		RequestsPerSecond: 1,
	}
}

// Fetcher downloads tables. The rate limiter instance is shared across
// every concurrent sub-request the Fetcher issues.
type Fetcher struct {
	client  DataClient
	limiter *ratelimit.Limiter
	retry   retry.Config
	opts    Options
	logger  zerolog.Logger
}

// New creates a Fetcher.
func New(client DataClient, limiter *ratelimit.Limiter, retryCfg retry.Config, opts Options) *Fetcher {
	if opts.MaxCells <= 0 {
		opts.MaxCells = DefaultOptions().MaxCells
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions().BatchSize
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 1
	}
	if retryCfg.Retryable == nil {
		retryCfg.Retryable = pxweb.IsTransient
	}

	return &Fetcher{
		client:  client,
		limiter: limiter,
		retry:   retryCfg,
		opts:    opts,
		logger:  log.With().Str("component", "fetch").Logger(),
	}
}

// Fetch plans and starts the download of one table. Planning and the
// time-budget check run synchronously before any network call; the
// returned stream then yields the schema once followed by row batches.
// An unrecoverable sub-request failure terminates the stream with its
// error: a table is either complete or failed, never partial.
func (f *Fetcher) Fetch(ctx context.Context, tablePath string, info *pxweb.TableInfo) (*Stream, error) {
	content, err := info.ContentVariable()
	if err != nil {
		return nil, err
	}
	keys := info.KeyVariables()

	cardinalities := make([]int, len(keys))
	tableRows := 1
	for i, v := range keys {
		cardinalities[i] = len(v.Values)
		tableRows *= len(v.Values)
	}
	tableSize := tableRows * len(content.Values)

	if f.opts.TimeBudget > 0 {
		optimal := time.Duration(float64(tableSize) / (float64(f.opts.MaxCells) * f.opts.RequestsPerSecond) * float64(time.Second))
		if optimal > f.opts.TimeBudget {
			tablesSkippedBudget.Inc()
			return nil, fmt.Errorf("%w: table %s needs ~%s, budget is %s",
				ErrTimeBudgetExceeded, tablePath, optimal.Round(time.Second), f.opts.TimeBudget)
		}
	}

	var pinned []int
	if tableSize > f.opts.MaxCells {
		bound := f.opts.MaxCells / len(content.Values)
		pinned, err = planner.Plan(cardinalities, bound)
		if err != nil {
			return nil, fmt.Errorf("planning table %s: %w", tablePath, err)
		}
	}

	codes := make([]string, len(pinned))
	values := make([][]string, len(pinned))
	for i, d := range pinned {
		codes[i] = keys[d].Code
		values[i] = keys[d].Values
	}

	f.logger.Info().
		Str("table", tablePath).
		Int("table_rows", tableRows).
		Int("table_cells", tableSize).
		Int("pinned_dimensions", len(pinned)).
		Int("sub_requests", planner.SubRequests(cardinalities, pinned)).
		Msg("Starting table fetch")

	stream := newStream()
	go f.run(ctx, tablePath, info, newAssignments(codes, values), tableRows, stream)
	return stream, nil
}

// run drives the batched fan-out/fan-in loop on the producer side of the
// stream.
func (f *Fetcher) run(ctx context.Context, tablePath string, info *pxweb.TableInfo, assign *assignments, tableRows int, stream *Stream) {
	var (
		schema      Schema
		schemaFixed bool
		emittedRows int
	)

	for batchNum := 0; ; batchNum++ {
		batch := nextBatch(assign, f.opts.BatchSize)
		if len(batch) == 0 {
			break
		}

		var acc *accumulator
		if schemaFixed {
			acc = seeded(schema)
		} else {
			acc = newAccumulator()
		}

		if err := f.fetchBatch(ctx, tablePath, info, batch, acc); err != nil {
			stream.fail(fmt.Errorf("table %s: %w", tablePath, err))
			return
		}

		if !schemaFixed {
			schema = acc.schema()
			schemaFixed = true
			stream.emitSchema(schema)
		}

		rows := acc.take(schema)
		emittedRows += len(rows.Rows)
		rowsFetchedTotal.Add(float64(len(rows.Rows)))
		f.logger.Debug().
			Str("table", tablePath).
			Int("batch", batchNum).
			Int("rows", emittedRows).
			Int("table_rows", tableRows).
			Msg("Batch merged")

		if err := stream.emitBatch(ctx, rows); err != nil {
			stream.fail(err)
			return
		}
	}

	if emittedRows != tableRows {
		// Tables with suppressed cells can come back short; the writer
		// still gets a consistent stream, so this is observability only.
		f.logger.Warn().
			Str("table", tablePath).
			Int("rows", emittedRows).
			Int("table_rows", tableRows).
			Msg("Row count differs from key-dimension cross product")
	}

	f.logger.Info().
		Str("table", tablePath).
		Int("rows", emittedRows).
		Msg("Table fetch complete")
	stream.finish()
}

// fetchBatch fans out one concurrency batch and merges chunks in
// completion order. Merges are serialized here even though fetches are
// not.
func (f *Fetcher) fetchBatch(ctx context.Context, tablePath string, info *pxweb.TableInfo, batch []map[string]string, acc *accumulator) error {
	g, gctx := errgroup.WithContext(ctx)
	chunks := make(chan *Chunk, len(batch))

	for _, pin := range batch {
		g.Go(func() error {
			chunk, err := f.fetchOne(gctx, tablePath, info, pin)
			if err != nil {
				return err
			}
			select {
			case chunks <- chunk:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	waitErr := make(chan error, 1)
	go func() {
		err := g.Wait()
		close(chunks)
		waitErr <- err
	}()

	var mergeErr error
	for chunk := range chunks {
		if mergeErr != nil {
			continue
		}
		chunksFetchedTotal.Inc()
		mergeErr = acc.merge(chunk)
	}
	if err := <-waitErr; err != nil {
		return err
	}
	return mergeErr
}

// fetchOne runs one sub-request: rate-limiter gate, then the retry-wrapped
// network call, then chunk decoding. The limiter is re-acquired on every
// retry attempt, so retries count against the call quota like any other
// request.
func (f *Fetcher) fetchOne(ctx context.Context, tablePath string, info *pxweb.TableInfo, pin map[string]string) (*Chunk, error) {
	query := pxweb.BuildQuery(info, pin)

	var resp *pxweb.DataResponse
	err := retry.Do(ctx, f.retry, func(ctx context.Context) error {
		if err := f.limiter.Acquire(ctx); err != nil {
			return err
		}
		r, err := f.client.TableData(ctx, tablePath, query)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	return decodeChunk(info, resp)
}

// nextBatch drains up to n assignments from the lazy sequence.
func nextBatch(assign *assignments, n int) []map[string]string {
	batch := make([]map[string]string, 0, n)
	for len(batch) < n {
		pin, ok := assign.next()
		if !ok {
			break
		}
		batch = append(batch, pin)
	}
	return batch
}
