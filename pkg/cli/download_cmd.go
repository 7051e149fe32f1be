package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nordstat/pxfetch/pkg/fetch"
	"github.com/nordstat/pxfetch/pkg/metadata"
	"github.com/nordstat/pxfetch/pkg/parquet"
	"github.com/nordstat/pxfetch/pkg/pxweb"
	"github.com/nordstat/pxfetch/pkg/ratelimit"
	"github.com/nordstat/pxfetch/pkg/retry"
	"github.com/nordstat/pxfetch/pkg/upload"
)

type downloadFlags struct {
	out        string
	match      string
	maxCells   int
	batchSize  int
	timeBudget time.Duration
}

func newDownloadCmd(flags *rootFlags) *cobra.Command {
	df := &downloadFlags{}

	cmd := &cobra.Command{
		Use:   "download [table-path...]",
		Short: "Download tables as parquet",
		Long:  "Downloads each table as parquet files, splitting tables over the API's cell cap into multiple rate-limited queries. With no arguments, downloads every crawled table in the metadata store (narrowed by --match). A failing table is logged and skipped; the remaining tables still download.",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}
			store, err := flags.store()
			if err != nil {
				return err
			}

			var uploader *upload.Uploader
			if flags.s3Bucket != "" {
				uploader, err = upload.New(upload.Config{
					Bucket:   flags.s3Bucket,
					Prefix:   flags.s3Prefix,
					Region:   flags.s3Region,
					Endpoint: flags.s3Endpoint,
				})
				if err != nil {
					return err
				}
			}

			d := &downloader{
				client:   client,
				store:    store,
				limiter:  flags.limiter(),
				retry:    flags.retryConfig(),
				uploader: uploader,
				out:      df.out,
				opts: fetch.Options{
					MaxCells:   df.maxCells,
					BatchSize:  df.batchSize,
					TimeBudget: df.timeBudget,
				},
			}

			tables := args
			if len(tables) == 0 {
				if tables, err = d.storedTables(cmd.Context(), df.match); err != nil {
					return err
				}
			}
			if len(tables) == 0 {
				return fmt.Errorf("no tables to download; crawl first or name table paths")
			}

			return d.run(cmd.Context(), tables)
		},
	}

	cmd.Flags().StringVar(&df.out, "out", "parquet", "local output directory")
	cmd.Flags().StringVar(&df.match, "match", "", "only download stored tables whose path contains this substring")
	cmd.Flags().IntVar(&df.maxCells, "max-cells", fetch.DefaultOptions().MaxCells, "API cap on result cells per query")
	cmd.Flags().IntVar(&df.batchSize, "batch-size", fetch.DefaultOptions().BatchSize, "sub-requests in flight per concurrency batch")
	cmd.Flags().DurationVar(&df.timeBudget, "time-budget", 0, "skip tables whose estimated download time exceeds this (0: no limit)")
	return cmd
}

// downloader ties the fetch pipeline to metadata resolution, parquet
// output and upload for a batch of tables.
type downloader struct {
	client   *pxweb.Client
	store    metadata.Store
	limiter  *ratelimit.Limiter
	retry    retry.Config
	uploader *upload.Uploader
	out      string
	opts     fetch.Options
}

// storedTables lists the table paths known to the metadata store.
func (d *downloader) storedTables(ctx context.Context, match string) ([]string, error) {
	var tables []string
	err := metadata.ListTables(ctx, d.store, match, func(path string, _ *pxweb.TableInfo) error {
		tables = append(tables, path)
		return nil
	})
	return tables, err
}

// run downloads every table, isolating failures per table.
func (d *downloader) run(ctx context.Context, tables []string) error {
	fetcher := fetch.New(d.client, d.limiter, d.retry, d.opts)

	failed := 0
	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.downloadTable(ctx, fetcher, table); err != nil {
			failed++
			log.Error().Err(err).Str("table", table).Msg("Table download failed")
			continue
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d tables failed", failed, len(tables))
	}
	log.Info().Int("tables", len(tables)).Msg("Download complete")
	return nil
}

// downloadTable fetches one table and writes (and optionally uploads) its
// parquet files.
func (d *downloader) downloadTable(ctx context.Context, fetcher *fetch.Fetcher, table string) error {
	info, err := d.tableInfo(ctx, table)
	if err != nil {
		return err
	}

	stream, err := fetcher.Fetch(ctx, table, info)
	if err != nil {
		return err
	}

	base := path.Base(path.Clean("/" + table))
	dir := filepath.Join(d.out, base)
	files, rows, err := parquet.WriteStream(ctx, dir, base, stream)
	if err != nil {
		return err
	}
	log.Info().
		Str("table", table).
		Int("files", len(files)).
		Int64("rows", rows).
		Msg("Table written")

	if d.uploader != nil {
		if err := d.uploader.Directory(ctx, dir, path.Join("data", base)); err != nil {
			return err
		}
	}
	return nil
}

// tableInfo resolves table metadata from the store, falling back to the
// API and saving the result for the next run.
func (d *downloader) tableInfo(ctx context.Context, table string) (*pxweb.TableInfo, error) {
	doc, err := d.store.Load(ctx, table)
	if err == nil {
		var info pxweb.TableInfo
		if err := json.Unmarshal(doc, &info); err != nil {
			return nil, fmt.Errorf("decode stored metadata for %s: %w", table, err)
		}
		return &info, nil
	}
	if !errors.Is(err, metadata.ErrNotFound) {
		return nil, err
	}

	var raw []byte
	err = retry.Do(ctx, d.retry, func(ctx context.Context) error {
		if err := d.limiter.Acquire(ctx); err != nil {
			return err
		}
		var err error
		raw, err = d.client.Get(ctx, table)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch metadata for %s: %w", table, err)
	}

	var info pxweb.TableInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode metadata for %s: %w", table, err)
	}
	if err := d.store.Save(ctx, table, raw); err != nil {
		return nil, err
	}
	return &info, nil
}
